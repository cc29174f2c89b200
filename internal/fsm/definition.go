package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition builds the mode machine from the state graph. Each edge
// becomes a request transition, each completion a transition to the target,
// and every state can be cancelled into its rest state. The machine starts
// in Idle.
func NewDefinition(actions Actions, graph *StateGraph, completions []Completion) *librefsm.Definition {
	def := librefsm.NewDefinition()

	states := []librefsm.StateID{StateIdle, StateHold}
	states = append(states, graph.States()...)
	for _, c := range completions {
		states = append(states, c.Transitional, c.Target)
	}

	declared := make(map[librefsm.StateID]bool)
	for _, id := range states {
		if declared[id] {
			continue
		}
		declared[id] = true
		def.State(id,
			librefsm.WithOnEnter(actions.EnterState),
			librefsm.WithOnExit(actions.ExitState),
		)
	}

	for _, t := range graph.Transitions() {
		if t.Precondition == AnyState {
			def.AnyStateTransition(RequestEvent(t.Transitional), t.Transitional)
			continue
		}
		def.Transition(t.Precondition, RequestEvent(t.Transitional), t.Transitional)
	}

	for _, c := range completions {
		def.Transition(c.Transitional, CompleteEvent(c.Operation), c.Target)
	}

	for id := range declared {
		def.Transition(id, EvCancel, RestState(id))
	}

	return def.Initial(StateIdle)
}
