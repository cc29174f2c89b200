package types

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"fluid-service/internal/geometry"
)

// Pose is the vehicle position in the local frame plus its orientation.
type Pose struct {
	Position    r3.Vector           `json:"position"`
	Orientation geometry.Quaternion `json:"orientation"`
}

// Twist is the vehicle's linear and angular velocity.
type Twist struct {
	Linear  r3.Vector `json:"linear"`
	Angular r3.Vector `json:"angular"`
}

// LinkState is what the flight-control link reports about itself.
type LinkState struct {
	Connected bool   `json:"connected"`
	Armed     bool   `json:"armed"`
	Mode      string `json:"mode"`
	Landed    bool   `json:"landed"`
}

// Flight-controller mode names.
const (
	ModeOffboard = "OFFBOARD"
)

// Status is the snapshot published once per control cycle.
type Status struct {
	State     string  `json:"state"`
	Operation string  `json:"operation"`
	Linked    bool    `json:"linked"`
	Armed     bool    `json:"armed"`
	Mode      string  `json:"mode"`
	PathError float64 `json:"path_error"`
}

// Fields flattens the status for a hash publisher.
func (s Status) Fields() map[string]any {
	return map[string]any{
		"state":      s.State,
		"operation":  s.Operation,
		"linked":     s.Linked,
		"armed":      s.Armed,
		"mode":       s.Mode,
		"path_error": s.PathError,
	}
}

// TrackingSample is one record of how well the active path is followed.
type TrackingSample struct {
	State     string
	Operation string
	Position  r3.Vector
	Nearest   r2.Point
	PathError float64
	Speed     float64
}

// Fields flattens the sample for a stream entry.
func (t TrackingSample) Fields() map[string]any {
	return map[string]any{
		"state":      t.State,
		"operation":  t.Operation,
		"x":          t.Position.X,
		"y":          t.Position.Y,
		"z":          t.Position.Z,
		"nearest_x":  t.Nearest.X,
		"nearest_y":  t.Nearest.Y,
		"path_error": t.PathError,
		"speed":      t.Speed,
	}
}
