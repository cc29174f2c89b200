package states

import (
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/types"
)

// Hold keeps the position and heading it had on entry. It never finishes.
type Hold struct {
	env      Env
	setpoint types.Setpoint
}

func NewHold(env Env) *Hold {
	return &Hold{env: env}
}

func (s *Hold) ID() librefsm.StateID { return fsm.StateHold }

func (s *Hold) Enter() error {
	pose := s.env.Vehicle.Pose()
	s.setpoint = types.Setpoint{
		TypeMask: types.MaskDefault,
		Position: pose.Position,
		Yaw:      pose.Orientation.Yaw(),
	}
	s.env.Logger.Debugf("Holding at (%.2f, %.2f, %.2f)", pose.Position.X, pose.Position.Y, pose.Position.Z)
	return nil
}

func (s *Hold) Tick(time.Duration) types.Setpoint {
	return s.setpoint
}

func (s *Hold) HasFinishedExecution() bool { return false }

func (s *Hold) Exit() {}
