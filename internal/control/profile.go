package control

import (
	"math"

	"github.com/golang/geo/r3"
)

// Profile moves a setpoint along a straight line from start to target with
// a trapezoidal speed profile: accelerate at MaxAcceleration up to
// MaxVelocity, cruise, then brake so that it stops on the target.
type Profile struct {
	start, target r3.Vector
	direction     r3.Vector
	length        float64

	maxVelocity     float64
	maxAcceleration float64

	travelled float64
	speed     float64
}

// NewProfile starts at start moving with startVelocity. Only the component
// of startVelocity along the line is kept, and never backwards.
func NewProfile(start, target, startVelocity r3.Vector, maxVelocity, maxAcceleration float64) *Profile {
	p := &Profile{
		start:           start,
		target:          target,
		length:          target.Sub(start).Norm(),
		maxVelocity:     maxVelocity,
		maxAcceleration: maxAcceleration,
	}
	if p.length > 0 {
		p.direction = target.Sub(start).Mul(1 / p.length)
		p.speed = math.Min(math.Max(startVelocity.Dot(p.direction), 0), maxVelocity)
	}
	return p
}

func (p *Profile) brakingDistance(v float64) float64 {
	if p.maxAcceleration <= 0 {
		return 0
	}
	return v * v / (2 * p.maxAcceleration)
}

// Step advances the profile by dt seconds and returns the new position and
// velocity.
func (p *Profile) Step(dt float64) (r3.Vector, r3.Vector) {
	if p.Done() || dt <= 0 {
		return p.Position(), p.Velocity()
	}

	remaining := p.length - p.travelled
	var dist, v float64
	switch {
	case p.maxAcceleration <= 0:
		v = p.maxVelocity
		dist = v * dt
	case p.brakingDistance(p.speed) >= remaining:
		dist, v = p.decelerate(dt)
	default:
		dist, v = p.accelerate(dt)
	}

	if dist >= remaining || (v == 0 && remaining < 1e-6) {
		p.travelled = p.length
		p.speed = 0
	} else {
		p.travelled += dist
		p.speed = v
	}
	return p.Position(), p.Velocity()
}

func (p *Profile) accelerate(dt float64) (float64, float64) {
	v, a := p.speed, p.maxAcceleration
	if v >= p.maxVelocity {
		return p.maxVelocity * dt, p.maxVelocity
	}
	tToMax := (p.maxVelocity - v) / a
	if tToMax <= dt {
		s1 := v*tToMax + 0.5*a*tToMax*tToMax
		return s1 + p.maxVelocity*(dt-tToMax), p.maxVelocity
	}
	return v*dt + 0.5*a*dt*dt, v + a*dt
}

func (p *Profile) decelerate(dt float64) (float64, float64) {
	v, a := p.speed, p.maxAcceleration
	tToStop := v / a
	if tToStop <= dt {
		// stops inside this step; creep the rest of the way
		return math.Max(v*tToStop-0.5*a*tToStop*tToStop, p.length-p.travelled), 0
	}
	return math.Max(0, v*dt-0.5*a*dt*dt), v - a*dt
}

// Position is the current setpoint on the line.
func (p *Profile) Position() r3.Vector {
	if p.Done() {
		return p.target
	}
	return p.start.Add(p.direction.Mul(p.travelled))
}

// Velocity is the current velocity along the line.
func (p *Profile) Velocity() r3.Vector {
	return p.direction.Mul(p.speed)
}

// Done reports whether the target has been reached.
func (p *Profile) Done() bool {
	return p.travelled >= p.length
}

// Remaining is the distance left to travel.
func (p *Profile) Remaining() float64 {
	return p.length - p.travelled
}
