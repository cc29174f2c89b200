// Package operations describes requests to move the flight machine from
// the current state, through a transitional state, to a target state.
package operations

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/states"
)

// Outcome is how an operation ended.
type Outcome int

const (
	Pending Outcome = iota
	Completed
	Aborted
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Operation is a single request. It is created by a front-end, validated
// and run by the coordinator, and finished exactly once.
type Operation struct {
	id           uuid.UUID
	identifier   string
	precondition librefsm.StateID
	transitional librefsm.StateID
	target       librefsm.StateID
	goal         any

	aborted atomic.Bool

	finishOnce sync.Once
	done       chan struct{}
	outcome    atomic.Int32
}

// New creates an operation from its triple and goal.
func New(identifier string, precondition, transitional, target librefsm.StateID, goal any) *Operation {
	return &Operation{
		id:           uuid.New(),
		identifier:   identifier,
		precondition: precondition,
		transitional: transitional,
		target:       target,
		goal:         goal,
		done:         make(chan struct{}),
	}
}

// WithID replaces the generated id, for requests that bring their own.
func (o *Operation) WithID(id uuid.UUID) *Operation {
	o.id = id
	return o
}

func (o *Operation) ID() uuid.UUID                  { return o.id }
func (o *Operation) Identifier() string             { return o.identifier }
func (o *Operation) Precondition() librefsm.StateID { return o.precondition }
func (o *Operation) Transitional() librefsm.StateID { return o.transitional }
func (o *Operation) Target() librefsm.StateID       { return o.target }
func (o *Operation) Goal() any                      { return o.goal }

// ValidateFromCurrentState reports whether the operation may start now.
// It has no side effects.
func (o *Operation) ValidateFromCurrentState(current librefsm.StateID, graph *fsm.StateGraph) bool {
	return graph.IsValid(current, o)
}

// NewTransitionalState builds the state that runs while the operation
// executes.
func (o *Operation) NewTransitionalState(registry *states.Registry, env states.Env) (states.State, error) {
	return registry.New(o.transitional, env, o.goal)
}

// Completion is the route the mode machine takes when the operation
// finishes.
func (o *Operation) Completion() fsm.Completion {
	return fsm.Completion{Operation: o.identifier, Transitional: o.transitional, Target: o.target}
}

// RequestAbort asks the coordinator to stop the operation within one
// control period.
func (o *Operation) RequestAbort() {
	o.aborted.Store(true)
}

func (o *Operation) HasBeenAborted() bool {
	return o.aborted.Load()
}

// Finish records the outcome. Only the first call has an effect; it
// returns whether this call was the one.
func (o *Operation) Finish(outcome Outcome) bool {
	finished := false
	o.finishOnce.Do(func() {
		o.outcome.Store(int32(outcome))
		close(o.done)
		finished = true
	})
	return finished
}

// Done is closed once the operation has an outcome.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

func (o *Operation) Outcome() Outcome {
	return Outcome(o.outcome.Load())
}

// Wait blocks until the operation finishes or ctx is done.
func (o *Operation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-o.done:
		return o.Outcome(), nil
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}
