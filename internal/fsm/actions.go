package fsm

import "github.com/librescoot/librefsm"

// Actions is implemented by the coordinator. Every state shares the same
// hooks; the hook looks at c.ToState or c.FromState to know which state is
// affected, and at c.Event.Payload for the operation that caused it.
type Actions interface {
	EnterState(c *librefsm.Context) error
	ExitState(c *librefsm.Context) error
}

// Completion routes an operation's transitional state to its target.
type Completion struct {
	Operation    string
	Transitional librefsm.StateID
	Target       librefsm.StateID
}
