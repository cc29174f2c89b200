package states

import (
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/types"
)

// Idle is on the ground with nothing to do. It never finishes.
type Idle struct {
	env Env
}

func NewIdle(env Env) *Idle {
	return &Idle{env: env}
}

func (s *Idle) ID() librefsm.StateID { return fsm.StateIdle }

func (s *Idle) Enter() error { return nil }

func (s *Idle) Tick(time.Duration) types.Setpoint {
	return types.IdleSetpoint()
}

func (s *Idle) HasFinishedExecution() bool { return false }

func (s *Idle) Exit() {}
