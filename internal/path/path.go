// Package path turns a parametric curve into a dense sequence of points
// carrying yaw, curvature and a target speed, and answers nearest-point
// queries against it.
package path

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"

	"fluid-service/internal/geometry"
)

var (
	ErrNoSegments    = errors.New("path needs at least one segment")
	ErrInvalidConfig = errors.New("invalid path config")
)

// subdivisions per segment used to integrate arc length
const subdivisions = 256

// Config shapes the sampling and the speed profile.
type Config struct {
	CruiseSpeed         float64 `json:"cruise_speed"`
	Step                float64 `json:"step"`
	MinSpeed            float64 `json:"min_speed"`
	CurvatureGain       float64 `json:"curvature_gain"`
	BrakingDeceleration float64 `json:"braking_deceleration"`
}

// DefaultConfig returns the sampling used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		CruiseSpeed:         1.0,
		Step:                0.1,
		MinSpeed:            0.1,
		CurvatureGain:       1.0,
		BrakingDeceleration: 0.5,
	}
}

func (c Config) validate() error {
	switch {
	case c.Step <= 0:
		return fmt.Errorf("%w: step must be positive, got %v", ErrInvalidConfig, c.Step)
	case c.CruiseSpeed < 0:
		return fmt.Errorf("%w: cruise speed must not be negative, got %v", ErrInvalidConfig, c.CruiseSpeed)
	case c.MinSpeed < 0:
		return fmt.Errorf("%w: min speed must not be negative, got %v", ErrInvalidConfig, c.MinSpeed)
	case c.CurvatureGain < 0:
		return fmt.Errorf("%w: curvature gain must not be negative, got %v", ErrInvalidConfig, c.CurvatureGain)
	case c.BrakingDeceleration < 0:
		return fmt.Errorf("%w: braking deceleration must not be negative, got %v", ErrInvalidConfig, c.BrakingDeceleration)
	}
	return nil
}

// PathPoint is one sample. Distance is the arc length from the start.
type PathPoint struct {
	Position  r2.Point
	Speed     float64
	Yaw       float64
	Curvature float64
	Distance  float64
}

// PathPointResult is the answer to a nearest-point query.
type PathPointResult struct {
	Point PathPoint
	Index int
	Error float64
}

// Path is an immutable, non-empty sequence of points in travel order.
type Path struct {
	points []PathPoint
	length float64
}

type arcEntry struct {
	segment int
	t       float64
	s       float64
}

// New samples the horizontal projection of the given segments every
// cfg.Step metres of arc length. The last sample always sits on the end of
// the curve, so a straight segment of length L gives ceil(L/step)+1 points.
func New(cfg Config, segments ...geometry.Spline) (*Path, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	table := arcLengthTable(segments)
	length := table[len(table)-1].s

	var distances []float64
	if length < 1e-9 {
		distances = []float64{0}
	} else {
		n := int(math.Ceil(length/cfg.Step-1e-6)) + 1
		distances = make([]float64, n)
		for i := 0; i < n-1; i++ {
			distances[i] = float64(i) * cfg.Step
		}
		distances[n-1] = length
	}

	floor := math.Min(cfg.MinSpeed, cfg.CruiseSpeed)
	points := make([]PathPoint, len(distances))
	for i, d := range distances {
		seg, t := locate(table, d)
		spline := segments[seg]

		dx := spline.X.Derive()
		dy := spline.Y.Derive()
		vx, vy := dx.Evaluate(t), dy.Evaluate(t)
		ax, ay := dx.Derive().Evaluate(t), dy.Derive().Evaluate(t)

		speedSq := vx*vx + vy*vy
		var yaw, curvature float64
		switch {
		case speedSq > 1e-18:
			yaw = math.Atan2(vy, vx)
			curvature = (vx*ay - vy*ax) / math.Pow(speedSq, 1.5)
		case i > 0:
			yaw = points[i-1].Yaw
		}
		if i > 0 {
			yaw = points[i-1].Yaw + geometry.WrapAngle(yaw-points[i-1].Yaw)
		}

		speed := cfg.CruiseSpeed / (1 + cfg.CurvatureGain*math.Abs(curvature))
		if cfg.BrakingDeceleration > 0 {
			speed = math.Min(speed, math.Sqrt(2*cfg.BrakingDeceleration*(length-d)))
		}
		speed = math.Max(speed, floor)

		points[i] = PathPoint{
			Position:  r2.Point{X: spline.X.Evaluate(t), Y: spline.Y.Evaluate(t)},
			Speed:     speed,
			Yaw:       yaw,
			Curvature: curvature,
			Distance:  d,
		}
	}

	return &Path{points: points, length: length}, nil
}

// NewStraight is a single segment from one point to another.
func NewStraight(cfg Config, from, to r2.Point) (*Path, error) {
	return New(cfg, geometry.Spline{
		X: geometry.Polynomial{to.X - from.X, from.X},
		Y: geometry.Polynomial{to.Y - from.Y, from.Y},
	})
}

// FromWaypoints fits cubic Catmull-Rom segments through the waypoints.
func FromWaypoints(cfg Config, waypoints []r2.Point) (*Path, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: need two waypoints, got %d", ErrNoSegments, len(waypoints))
	}
	last := len(waypoints) - 1
	tangent := func(i int) r2.Point {
		switch i {
		case 0:
			return waypoints[1].Sub(waypoints[0])
		case last:
			return waypoints[last].Sub(waypoints[last-1])
		default:
			return waypoints[i+1].Sub(waypoints[i-1]).Mul(0.5)
		}
	}

	segments := make([]geometry.Spline, 0, last)
	for i := 0; i < last; i++ {
		p0, p1 := waypoints[i], waypoints[i+1]
		m0, m1 := tangent(i), tangent(i+1)
		segments = append(segments, geometry.Spline{
			X: hermite(p0.X, p1.X, m0.X, m1.X),
			Y: hermite(p0.Y, p1.Y, m0.Y, m1.Y),
		})
	}
	return New(cfg, segments...)
}

func hermite(p0, p1, m0, m1 float64) geometry.Polynomial {
	return geometry.Polynomial{
		2*p0 - 2*p1 + m0 + m1,
		-3*p0 + 3*p1 - 2*m0 - m1,
		m0,
		p0,
	}
}

func arcLengthTable(segments []geometry.Spline) []arcEntry {
	table := make([]arcEntry, 0, len(segments)*subdivisions+1)
	s := 0.0
	for i, seg := range segments {
		prev := r2.Point{X: seg.X.Evaluate(0), Y: seg.Y.Evaluate(0)}
		if i == 0 {
			table = append(table, arcEntry{segment: 0, t: 0, s: 0})
		}
		for k := 1; k <= subdivisions; k++ {
			t := float64(k) / subdivisions
			p := r2.Point{X: seg.X.Evaluate(t), Y: seg.Y.Evaluate(t)}
			s += geometry.Distance(prev, p)
			table = append(table, arcEntry{segment: i, t: t, s: s})
			prev = p
		}
	}
	return table
}

// locate maps an arc length to a segment index and curve parameter.
func locate(table []arcEntry, d float64) (int, float64) {
	i := sort.Search(len(table), func(i int) bool { return table[i].s >= d })
	if i == 0 {
		return table[0].segment, table[0].t
	}
	if i >= len(table) {
		e := table[len(table)-1]
		return e.segment, e.t
	}
	hi, lo := table[i], table[i-1]
	if hi.segment != lo.segment {
		lo = arcEntry{segment: hi.segment, t: 0, s: lo.s}
	}
	span := hi.s - lo.s
	if span <= 0 {
		return hi.segment, hi.t
	}
	frac := (d - lo.s) / span
	return hi.segment, lo.t + frac*(hi.t-lo.t)
}

// CalculateNearestPathPoint scans every point and returns the closest one
// to position. Equidistant points resolve to the lowest index.
func (p *Path) CalculateNearestPathPoint(position r2.Point) PathPointResult {
	best := 0
	bestDist := math.Inf(1)
	for i, pt := range p.points {
		if d := geometry.Distance(pt.Position, position); d < bestDist {
			best, bestDist = i, d
		}
	}
	return PathPointResult{Point: p.points[best], Index: best, Error: bestDist}
}

// Len is the number of sampled points.
func (p *Path) Len() int { return len(p.points) }

// Last returns the final point.
func (p *Path) Last() PathPoint { return p.points[len(p.points)-1] }

// Length is the arc length of the curve.
func (p *Path) Length() float64 { return p.length }

// Points returns a copy of the samples.
func (p *Path) Points() []PathPoint {
	out := make([]PathPoint, len(p.points))
	copy(out, p.points)
	return out
}
