package fsm

import "github.com/librescoot/librefsm"

// Flight states
const (
	StateIdle    librefsm.StateID = "idle"
	StateInit    librefsm.StateID = "init"
	StateTakeOff librefsm.StateID = "take_off"
	StateMove    librefsm.StateID = "move"
	StateLand    librefsm.StateID = "land"
	StateHold    librefsm.StateID = "hold"
	StateDock    librefsm.StateID = "dock"

	// AnyState as a precondition admits an operation from every state.
	AnyState librefsm.StateID = librefsm.WildcardState
)

// EvCancel drops the running behavior and falls back to the rest state.
const EvCancel librefsm.EventID = "cancel"

const (
	requestPrefix  = "request:"
	completePrefix = "complete:"
)

// RequestEvent enters the transitional state of an accepted operation.
func RequestEvent(transitional librefsm.StateID) librefsm.EventID {
	return librefsm.EventID(requestPrefix + string(transitional))
}

// CompleteEvent moves from an operation's transitional state to its target.
func CompleteEvent(operation string) librefsm.EventID {
	return librefsm.EventID(completePrefix + operation)
}

// RestState is where the machine settles when the behavior in state is
// cancelled without a successor. Anything that may be airborne holds.
func RestState(state librefsm.StateID) librefsm.StateID {
	switch state {
	case StateIdle, StateInit:
		return StateIdle
	default:
		return StateHold
	}
}
