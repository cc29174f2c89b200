package states

import (
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/types"
)

// Land descends at a fixed rate over the position it had on entry until
// ground contact is detected.
type Land struct {
	env      Env
	setpoint types.Setpoint
}

func NewLand(env Env) *Land {
	return &Land{env: env}
}

func (s *Land) ID() librefsm.StateID { return fsm.StateLand }

func (s *Land) Enter() error {
	pose := s.env.Vehicle.Pose()
	s.setpoint = types.Setpoint{
		// horizontal position held, vertical by velocity
		TypeMask: types.MaskVelocity &^ (types.IgnorePX | types.IgnorePY),
		Position: pose.Position,
		Yaw:      pose.Orientation.Yaw(),
	}
	s.setpoint.Velocity.Z = -s.env.Config.Thresholds.LandVelocity
	s.env.Logger.Infof("Landing at (%.2f, %.2f)", pose.Position.X, pose.Position.Y)
	return nil
}

func (s *Land) Tick(time.Duration) types.Setpoint {
	return s.setpoint
}

func (s *Land) HasFinishedExecution() bool {
	return s.env.landed()
}

func (s *Land) Exit() {}
