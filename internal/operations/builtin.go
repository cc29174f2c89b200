package operations

import (
	"github.com/golang/geo/r3"

	"fluid-service/internal/fsm"
	"fluid-service/internal/path"
	"fluid-service/internal/states"
)

// Operation identifiers
const (
	IDInit    = "init"
	IDTakeOff = "take_off"
	IDMove    = "move"
	IDLand    = "land"
	IDHold    = "hold"
	IDDock    = "dock"
)

// NewInit connects, streams and arms. Idle to idle.
func NewInit() *Operation {
	return New(IDInit, fsm.StateIdle, fsm.StateInit, fsm.StateIdle, nil)
}

// NewTakeOff climbs to altitude and holds.
func NewTakeOff(altitude float64) *Operation {
	return New(IDTakeOff, fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold, states.TakeOffGoal{Altitude: altitude})
}

// NewMove follows the path or waypoints in goal and holds at the end. It is
// admissible wherever the graph has an edge into move.
func NewMove(goal states.MoveGoal) (*Operation, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	return New(IDMove, fsm.AnyState, fsm.StateMove, fsm.StateHold, goal), nil
}

// NewMoveTo flies a straight line to target.
func NewMoveTo(target r3.Vector) *Operation {
	return New(IDMove, fsm.AnyState, fsm.StateMove, fsm.StateHold, states.MoveGoal{Waypoints: []r3.Vector{target}})
}

// NewMoveAlong follows a ready path.
func NewMoveAlong(p *path.Path) *Operation {
	return New(IDMove, fsm.AnyState, fsm.StateMove, fsm.StateHold, states.MoveGoal{Path: p})
}

// NewLand descends until touchdown and idles. Valid from any state.
func NewLand() *Operation {
	return New(IDLand, fsm.AnyState, fsm.StateLand, fsm.StateIdle, nil)
}

// NewHold stops where the vehicle is. It stays active until replaced.
func NewHold() *Operation {
	return New(IDHold, fsm.AnyState, fsm.StateHold, fsm.StateHold, nil)
}

// NewDock settles on target from hold.
func NewDock(goal states.DockGoal) *Operation {
	return New(IDDock, fsm.StateHold, fsm.StateDock, fsm.StateHold, goal)
}
