package states

import (
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/types"
)

type initPhase int

const (
	phaseConnecting initPhase = iota
	phaseStreaming
	phaseArming
	phaseArmed
)

func (p initPhase) String() string {
	switch p {
	case phaseConnecting:
		return "connecting"
	case phaseStreaming:
		return "streaming"
	case phaseArming:
		return "arming"
	case phaseArmed:
		return "armed"
	}
	return "unknown"
}

// Init brings the vehicle into offboard control: wait for the link, stream
// setpoints so the flight controller accepts offboard mode, request
// offboard, then arm. Each step advances at most once per tick, and a lost
// link starts over. Without a link it waits forever; only an abort ends it.
type Init struct {
	env   Env
	phase initPhase

	streamed   int
	sinceRetry int
}

func NewInit(env Env) *Init {
	return &Init{env: env}
}

func (s *Init) ID() librefsm.StateID { return fsm.StateInit }

func (s *Init) Enter() error {
	s.phase = phaseConnecting
	s.streamed = 0
	s.sinceRetry = 0
	return nil
}

// retryTicks spaces out repeated mode and arm requests to about a second.
func (s *Init) retryTicks() int {
	n := int(s.env.Config.RefreshRate)
	if n < 1 {
		return 1
	}
	return n
}

func (s *Init) setPhase(p initPhase) {
	if p != s.phase {
		s.env.Logger.Infof("Init: %s -> %s", s.phase, p)
	}
	s.phase = p
	s.sinceRetry = 0
}

func (s *Init) Tick(time.Duration) types.Setpoint {
	// zero position target, as required before switching to offboard
	sp := types.Setpoint{TypeMask: types.MaskDefault}

	link := s.env.Vehicle.Link()
	if !link.Connected && s.phase != phaseConnecting {
		s.env.Logger.Warnf("Init: link lost during %s", s.phase)
		s.streamed = 0
		s.setPhase(phaseConnecting)
	}

	switch s.phase {
	case phaseConnecting:
		if link.Connected {
			s.setPhase(phaseStreaming)
		}
	case phaseStreaming:
		s.streamed++
		if s.streamed >= s.env.Config.Thresholds.SetpointStreamTicks {
			s.setPhase(phaseArming)
			s.sinceRetry = -1
		}
	case phaseArming:
		if link.Armed && link.Mode == types.ModeOffboard {
			s.setPhase(phaseArmed)
			break
		}
		s.sinceRetry++
		if s.sinceRetry%s.retryTicks() != 0 {
			break
		}
		if link.Mode != types.ModeOffboard {
			if err := s.env.Commander.SetMode(types.ModeOffboard); err != nil {
				s.env.Logger.Warnf("Init: failed to request %s: %v", types.ModeOffboard, err)
			}
		} else if !link.Armed {
			if err := s.env.Commander.Arm(); err != nil {
				s.env.Logger.Warnf("Init: failed to request arming: %v", err)
			}
		}
	case phaseArmed:
		if !link.Armed {
			s.setPhase(phaseArming)
		}
	}
	return sp
}

func (s *Init) HasFinishedExecution() bool {
	return s.phase == phaseArmed
}

func (s *Init) Exit() {}
