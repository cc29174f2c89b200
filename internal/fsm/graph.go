package fsm

import (
	"sort"
	"sync"

	"github.com/librescoot/librefsm"
)

// Transition is a legal (precondition, transitional) edge.
type Transition struct {
	Precondition librefsm.StateID
	Transitional librefsm.StateID
}

// Admissible is what the graph needs to know about an operation.
type Admissible interface {
	Precondition() librefsm.StateID
	Transitional() librefsm.StateID
}

// StateGraph is the set of legal edges. Registration happens at startup;
// validation may run concurrently afterwards.
type StateGraph struct {
	mu    sync.RWMutex
	edges map[Transition]struct{}
}

func NewStateGraph() *StateGraph {
	return &StateGraph{edges: make(map[Transition]struct{})}
}

// AddTransition registers an edge. Registering it twice is a no-op.
func (g *StateGraph) AddTransition(precondition, transitional librefsm.StateID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[Transition{Precondition: precondition, Transitional: transitional}] = struct{}{}
}

func (g *StateGraph) has(precondition, transitional librefsm.StateID) bool {
	_, ok := g.edges[Transition{Precondition: precondition, Transitional: transitional}]
	return ok
}

// IsValid reports whether op may start while current is active: the edge
// (current, transitional) or (any, transitional) must be registered, and
// the operation's precondition must be current or any.
func (g *StateGraph) IsValid(current librefsm.StateID, op Admissible) bool {
	pre := op.Precondition()
	if pre != current && pre != AnyState {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.has(current, op.Transitional()) || g.has(AnyState, op.Transitional())
}

// Transitions returns the registered edges in a stable order.
func (g *StateGraph) Transitions() []Transition {
	g.mu.RLock()
	out := make([]Transition, 0, len(g.edges))
	for t := range g.edges {
		out = append(out, t)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Precondition != out[j].Precondition {
			return out[i].Precondition < out[j].Precondition
		}
		return out[i].Transitional < out[j].Transitional
	})
	return out
}

// States lists every concrete state named by an edge.
func (g *StateGraph) States() []librefsm.StateID {
	seen := make(map[librefsm.StateID]bool)
	var out []librefsm.StateID
	add := func(id librefsm.StateID) {
		if id != AnyState && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, t := range g.Transitions() {
		add(t.Precondition)
		add(t.Transitional)
	}
	return out
}

// RegisterDefaultTransitions adds the edges of the built-in flight states.
func RegisterDefaultTransitions(g *StateGraph) {
	g.AddTransition(StateIdle, StateInit)
	g.AddTransition(StateIdle, StateTakeOff)

	g.AddTransition(StateTakeOff, StateHold)

	g.AddTransition(StateHold, StateMove)
	g.AddTransition(StateHold, StateDock)
	g.AddTransition(StateHold, StateHold)

	g.AddTransition(StateMove, StateMove)
	g.AddTransition(StateMove, StateHold)

	g.AddTransition(StateDock, StateHold)

	// Land is an emergency stop, legal from anywhere.
	g.AddTransition(AnyState, StateLand)
}
