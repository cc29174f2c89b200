package control

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"fluid-service/internal/geometry"
	"fluid-service/internal/path"
	"fluid-service/internal/types"
)

// ControllerConfig holds the gains of the path follower.
type ControllerConfig struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	HeadingKp     float64 `json:"heading_kp"`
	HeadingKi     float64 `json:"heading_ki"`
	HeadingKd     float64 `json:"heading_kd"`
	TargetSpeed   float64 `json:"target_speed"`
	CurvatureGain float64 `json:"curvature_gain"`
	MaxSpeed      float64 `json:"max_speed"`
}

// DefaultControllerConfig returns conservative gains.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Kp:            1.0,
		Ki:            0.05,
		Kd:            0.1,
		HeadingKp:     1.5,
		HeadingKd:     0.05,
		TargetSpeed:   1.0,
		CurvatureGain: 1.0,
		MaxSpeed:      2.0,
	}
}

// Controller follows a Path. It owns one PID for cross-track error and one
// for heading error, and borrows the path and pose on every call.
type Controller struct {
	cfg        ControllerConfig
	crossTrack *PID
	heading    *PID
}

func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		cfg:        cfg,
		crossTrack: NewPID(cfg.Kp, cfg.Ki, cfg.Kd),
		heading:    NewPID(cfg.HeadingKp, cfg.HeadingKi, cfg.HeadingKd),
	}
}

// Reset clears both PID histories.
func (c *Controller) Reset() {
	c.crossTrack.Reset()
	c.heading.Reset()
}

// CrossTrackError is the signed lateral offset of position from the line
// through pt along its yaw. Positive means left of the path.
func CrossTrackError(pt path.PathPoint, position r2.Point) float64 {
	d := position.Sub(pt.Position)
	return -math.Sin(pt.Yaw)*d.X + math.Cos(pt.Yaw)*d.Y
}

// GetSetpoint computes the command for one control period of dt seconds.
// It returns the command, the distance to the nearest path point and that
// point. Altitude is held at the current pose.
func (c *Controller) GetSetpoint(p *path.Path, pose types.Pose, _ types.Twist, dt float64) (types.Setpoint, float64, path.PathPoint) {
	position := r2.Point{X: pose.Position.X, Y: pose.Position.Y}
	nearest := p.CalculateNearestPathPoint(position)
	pt := nearest.Point

	yaw := pose.Orientation.Yaw()
	headingError := geometry.AngleBetween(yaw, pt.Yaw)
	cte := CrossTrackError(pt, position)

	lateral := -c.crossTrack.Update(cte, dt)
	yawRate := c.heading.Update(headingError, dt) + pt.Curvature*pt.Speed

	tangent := r2.Point{X: math.Cos(pt.Yaw), Y: math.Sin(pt.Yaw)}
	velocity := tangent.Mul(pt.Speed).Add(tangent.Ortho().Mul(lateral))
	if n := velocity.Norm(); c.cfg.MaxSpeed > 0 && n > c.cfg.MaxSpeed {
		velocity = velocity.Mul(c.cfg.MaxSpeed / n)
	}

	sp := types.Setpoint{
		TypeMask: types.MaskPathFollowing,
		Position: r3.Vector{X: pose.Position.X, Y: pose.Position.Y, Z: pose.Position.Z},
		Velocity: r3.Vector{X: velocity.X, Y: velocity.Y},
		Yaw:      pt.Yaw,
		YawRate:  yawRate,
	}
	return sp, nearest.Error, pt
}
