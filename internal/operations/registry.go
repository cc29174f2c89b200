package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/states"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Kind describes an operation a front-end can ask for by name.
type Kind struct {
	Identifier   string
	Precondition librefsm.StateID
	Transitional librefsm.StateID
	Target       librefsm.StateID

	// DecodeGoal turns the request payload into the goal handed to the
	// transitional state. Nil means the kind takes no goal.
	DecodeGoal func(raw json.RawMessage) (any, error)
}

// Registry holds the operation kinds known to the service.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.Identifier] = k
}

// New decodes raw and returns a fresh operation of the named kind.
func (r *Registry) New(identifier string, raw json.RawMessage) (*Operation, error) {
	r.mu.RLock()
	k, ok := r.kinds[identifier]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, identifier)
	}

	var goal any
	if k.DecodeGoal != nil {
		var err error
		if goal, err = k.DecodeGoal(raw); err != nil {
			return nil, fmt.Errorf("decode %s goal: %w", identifier, err)
		}
	}
	return New(k.Identifier, k.Precondition, k.Transitional, k.Target, goal), nil
}

// Completions lists the completion route of every kind, sorted by name.
func (r *Registry) Completions() []fsm.Completion {
	r.mu.RLock()
	out := make([]fsm.Completion, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, fsm.Completion{Operation: k.Identifier, Transitional: k.Transitional, Target: k.Target})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func decodeJSON[T any](validate func(T) error) func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		var goal T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &goal); err != nil {
				return nil, err
			}
		}
		if validate != nil {
			if err := validate(goal); err != nil {
				return nil, err
			}
		}
		return goal, nil
	}
}

// moveRequest is the wire form of a move goal: either waypoints or a single
// target.
type moveRequest struct {
	Waypoints []r3.Vector `json:"waypoints"`
	Target    *r3.Vector  `json:"target"`
}

func decodeMove(raw json.RawMessage) (any, error) {
	var req moveRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
	}
	goal := states.MoveGoal{Waypoints: req.Waypoints}
	if req.Target != nil {
		goal.Waypoints = append(goal.Waypoints, *req.Target)
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	return goal, nil
}

// DefaultRegistry knows the built-in operations.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Kind{Identifier: IDInit, Precondition: fsm.StateIdle, Transitional: fsm.StateInit, Target: fsm.StateIdle})
	r.Register(Kind{
		Identifier: IDTakeOff, Precondition: fsm.StateIdle, Transitional: fsm.StateTakeOff, Target: fsm.StateHold,
		DecodeGoal: decodeJSON[states.TakeOffGoal](nil),
	})
	r.Register(Kind{
		Identifier: IDMove, Precondition: fsm.AnyState, Transitional: fsm.StateMove, Target: fsm.StateHold,
		DecodeGoal: decodeMove,
	})
	r.Register(Kind{Identifier: IDLand, Precondition: fsm.AnyState, Transitional: fsm.StateLand, Target: fsm.StateIdle})
	r.Register(Kind{Identifier: IDHold, Precondition: fsm.AnyState, Transitional: fsm.StateHold, Target: fsm.StateHold})
	r.Register(Kind{
		Identifier: IDDock, Precondition: fsm.StateHold, Transitional: fsm.StateDock, Target: fsm.StateHold,
		DecodeGoal: decodeJSON[states.DockGoal](nil),
	})
	return r
}
