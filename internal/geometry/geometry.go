// Package geometry holds the small numeric helpers shared by the path,
// controller and states: angle wrapping, quaternion yaw, polynomial
// evaluation and straight-line splines.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Quaternion is an orientation in w, x, y, z order.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion has zero roll, pitch and yaw.
var IdentityQuaternion = Quaternion{W: 1}

// QuaternionFromYaw returns a rotation of yaw radians around z.
func QuaternionFromYaw(yaw float64) Quaternion {
	return Quaternion{W: math.Cos(yaw / 2), Z: math.Sin(yaw / 2)}
}

// Yaw extracts the heading around z. A degenerate quaternion (all zero or
// non-finite) yields 0.
func (q Quaternion) Yaw() float64 {
	siny := 2 * (q.W*q.Z + q.X*q.Y)
	cosy := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
		return 0
	}
	yaw := math.Atan2(siny, cosy)
	if math.IsNaN(yaw) || math.IsInf(yaw, 0) {
		return 0
	}
	return yaw
}

// Distance is the euclidean distance between two points.
func Distance(a, b r2.Point) float64 {
	return a.Sub(b).Norm()
}

// Distance3 is the euclidean distance between two vectors.
func Distance3(a, b r3.Vector) float64 {
	return a.Sub(b).Norm()
}

// WrapAngle maps angle into [-pi, pi].
func WrapAngle(angle float64) float64 {
	return math.Atan2(math.Sin(angle), math.Cos(angle))
}

// AngleBetween returns the shortest signed rotation from a to b. NaN
// inputs count as zero.
func AngleBetween(a, b float64) float64 {
	if math.IsNaN(a) {
		a = 0
	}
	if math.IsNaN(b) {
		b = 0
	}
	return WrapAngle(b - a)
}

// Polynomial coefficients are ordered highest degree first, so
// {2, 0, 1} is 2t^2 + 1.
type Polynomial []float64

// Evaluate computes p(t) with Horner's method. An empty polynomial is 0.
func (p Polynomial) Evaluate(t float64) float64 {
	result := 0.0
	for _, c := range p {
		result = result*t + c
	}
	return result
}

// Derive returns the first derivative. Constants derive to the empty
// polynomial.
func (p Polynomial) Derive() Polynomial {
	if len(p) <= 1 {
		return Polynomial{}
	}
	degree := len(p) - 1
	d := make(Polynomial, degree)
	for i := 0; i < degree; i++ {
		d[i] = p[i] * float64(degree-i)
	}
	return d
}

// Spline is a curve over t in [0, 1] with one polynomial per axis.
type Spline struct {
	X, Y, Z Polynomial
}

// At evaluates the spline at t.
func (s Spline) At(t float64) r3.Vector {
	return r3.Vector{X: s.X.Evaluate(t), Y: s.Y.Evaluate(t), Z: s.Z.Evaluate(t)}
}

// SplineForSetpoint is the straight line from start to end, one linear
// polynomial {end-start, start} per axis.
func SplineForSetpoint(start, end r3.Vector) Spline {
	d := end.Sub(start)
	return Spline{
		X: Polynomial{d.X, start.X},
		Y: Polynomial{d.Y, start.Y},
		Z: Polynomial{d.Z, start.Z},
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
