package states

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/librescoot/librefsm"

	"fluid-service/internal/control"
	"fluid-service/internal/fsm"
	"fluid-service/internal/geometry"
	"fluid-service/internal/types"
)

// DockGoal is the pose to settle on.
type DockGoal struct {
	Target r3.Vector `json:"target"`
	Yaw    float64   `json:"yaw"`
}

// Dock glides to the goal on a trapezoidal profile bounded by the dock
// velocity and acceleration limits.
type Dock struct {
	env     Env
	goal    DockGoal
	profile *control.Profile
}

func NewDock(env Env, goal DockGoal) *Dock {
	return &Dock{env: env, goal: goal}
}

func (s *Dock) ID() librefsm.StateID { return fsm.StateDock }

func (s *Dock) Enter() error {
	cfg := s.env.Config.Dock
	pose := s.env.Vehicle.Pose()
	s.profile = control.NewProfile(pose.Position, s.goal.Target, s.env.Vehicle.Twist().Linear, cfg.MaxVelocity, cfg.MaxAcceleration)
	s.env.Logger.Infof("Docking over %.2f m", s.profile.Remaining())
	return nil
}

func (s *Dock) Tick(dt time.Duration) types.Setpoint {
	position, velocity := s.profile.Step(dt.Seconds())
	return types.Setpoint{
		TypeMask: types.MaskPositionAndVelocity,
		Position: position,
		Velocity: velocity,
		Yaw:      s.goal.Yaw,
	}
}

// HasFinishedExecution is true once the profile is exhausted, the vehicle
// is within the dock tolerance and every linear velocity component is below
// the velocity threshold.
func (s *Dock) HasFinishedExecution() bool {
	if !s.profile.Done() {
		return false
	}
	limit := s.env.Config.Thresholds.TakeOffVelocity
	v := s.env.Vehicle.Twist().Linear
	return geometry.Distance3(s.env.Vehicle.Pose().Position, s.goal.Target) < s.env.Config.Dock.Tolerance &&
		math.Abs(v.X) < limit &&
		math.Abs(v.Y) < limit &&
		math.Abs(v.Z) < limit
}

func (s *Dock) Exit() {}
