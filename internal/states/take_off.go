package states

import (
	"math"
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/geometry"
	"fluid-service/internal/types"
)

// TakeOffGoal is the altitude to climb to. Values at or below 0.1 m use
// the configured default.
type TakeOffGoal struct {
	Altitude float64 `json:"altitude"`
}

// TakeOff climbs straight up from where the vehicle stands.
type TakeOff struct {
	env      Env
	goal     TakeOffGoal
	setpoint types.Setpoint
}

func NewTakeOff(env Env, goal TakeOffGoal) *TakeOff {
	return &TakeOff{env: env, goal: goal}
}

func (s *TakeOff) ID() librefsm.StateID { return fsm.StateTakeOff }

func (s *TakeOff) Enter() error {
	pose := s.env.Vehicle.Pose()
	altitude := s.goal.Altitude
	if altitude <= 0.1 {
		altitude = s.env.Config.Thresholds.DefaultTakeOffAltitude
	}
	s.setpoint = types.Setpoint{
		TypeMask: types.MaskDefault,
		Position: pose.Position,
		Yaw:      pose.Orientation.Yaw(),
	}
	s.setpoint.Position.Z = altitude
	s.env.Logger.Infof("Taking off to %.2f m", altitude)
	return nil
}

func (s *TakeOff) Tick(time.Duration) types.Setpoint {
	return s.setpoint
}

// HasFinishedExecution is true once the vehicle is within the distance
// threshold of the target (in 3D) and every linear velocity component is
// below the velocity threshold.
func (s *TakeOff) HasFinishedExecution() bool {
	th := s.env.Config.Thresholds
	pose := s.env.Vehicle.Pose()
	v := s.env.Vehicle.Twist().Linear
	return geometry.Distance3(pose.Position, s.setpoint.Position) < th.TakeOffDistance &&
		math.Abs(v.X) < th.TakeOffVelocity &&
		math.Abs(v.Y) < th.TakeOffVelocity &&
		math.Abs(v.Z) < th.TakeOffVelocity
}

func (s *TakeOff) Exit() {}
