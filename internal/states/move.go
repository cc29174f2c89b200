package states

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/librescoot/librefsm"

	"fluid-service/internal/control"
	"fluid-service/internal/fsm"
	"fluid-service/internal/geometry"
	"fluid-service/internal/path"
	"fluid-service/internal/types"
)

// MoveGoal is either a ready path or waypoints to fly through from the
// current position. Altitude comes from the last waypoint, or is held when
// only a path is given.
type MoveGoal struct {
	Path      *path.Path  `json:"-"`
	Waypoints []r3.Vector `json:"waypoints"`
}

// Validate checks that the goal describes a path.
func (g MoveGoal) Validate() error {
	if g.Path == nil && len(g.Waypoints) == 0 {
		return fmt.Errorf("%w: move needs a path or at least one waypoint", ErrInvalidGoal)
	}
	return nil
}

// Move follows a path with the controller. It owns both for its lifetime.
type Move struct {
	env        Env
	goal       MoveGoal
	path       *path.Path
	controller *control.Controller
	altitude   float64

	pathError float64
	point     path.PathPoint
	ticked    bool
}

func NewMove(env Env, goal MoveGoal) *Move {
	return &Move{env: env, goal: goal}
}

func (s *Move) ID() librefsm.StateID { return fsm.StateMove }

func (s *Move) Enter() error {
	if err := s.goal.Validate(); err != nil {
		return err
	}
	pose := s.env.Vehicle.Pose()
	s.altitude = pose.Position.Z

	p := s.goal.Path
	if p == nil {
		var err error
		p, err = s.buildPath(pose.Position)
		if err != nil {
			return fmt.Errorf("build path: %w", err)
		}
		s.altitude = s.goal.Waypoints[len(s.goal.Waypoints)-1].Z
	}
	s.path = p
	s.controller = control.NewController(s.env.Config.Controller)
	s.ticked = false
	s.env.Logger.Infof("Following path of %.2f m with %d points", p.Length(), p.Len())
	return nil
}

func (s *Move) buildPath(start r3.Vector) (*path.Path, error) {
	cfg := s.env.Config.PathConfig()
	if len(s.goal.Waypoints) == 1 {
		return path.New(cfg, geometry.SplineForSetpoint(start, s.goal.Waypoints[0]))
	}
	points := make([]r2.Point, 0, len(s.goal.Waypoints)+1)
	points = append(points, r2.Point{X: start.X, Y: start.Y})
	for _, w := range s.goal.Waypoints {
		points = append(points, r2.Point{X: w.X, Y: w.Y})
	}
	return path.FromWaypoints(cfg, points)
}

func (s *Move) Tick(dt time.Duration) types.Setpoint {
	sp, pathError, point := s.controller.GetSetpoint(s.path, s.env.Vehicle.Pose(), s.env.Vehicle.Twist(), dt.Seconds())
	sp.Position.Z = s.altitude
	s.pathError = pathError
	s.point = point
	s.ticked = true
	return sp
}

// HasFinishedExecution is true once the nearest point is the end of the
// path and the vehicle is within the distance threshold of it.
func (s *Move) HasFinishedExecution() bool {
	if !s.ticked {
		return false
	}
	return s.point.Distance >= s.path.Last().Distance &&
		s.pathError < s.env.Config.Thresholds.MoveDistance
}

func (s *Move) Exit() {
	if s.controller != nil {
		s.controller.Reset()
	}
}

func (s *Move) Tracking() (float64, path.PathPoint, bool) {
	return s.pathError, s.point, s.ticked
}
