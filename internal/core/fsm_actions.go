package core

import (
	"context"
	"fmt"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/fsm"
	"fluid-service/internal/operations"
	"fluid-service/internal/states"
)

// Ensure FlightSystem implements fsm.Actions
var _ fsm.Actions = (*FlightSystem)(nil)

// initFSM builds the mode machine from the session graph and the known
// operations, and enters Idle.
func (v *FlightSystem) initFSM(ctx context.Context) error {
	graph := v.session.Graph()
	completions := v.opRegistry.Completions()

	v.edges = make(map[fsm.Transition]bool)
	for _, t := range graph.Transitions() {
		v.edges[t] = true
	}
	v.completions = make(map[fsm.Completion]bool, len(completions))
	for _, c := range completions {
		v.completions[c] = true
	}

	def := fsm.NewDefinition(v, graph, completions)
	machine, err := def.Build(
		librefsm.WithLogger(v.logger.WithTag("fsm").Slog()),
		librefsm.WithEventQueueSize(v.session.Config().MessageQueueSize),
	)
	if err != nil {
		return err
	}
	v.machine = machine

	// Runs under the machine lock: use v.current, never machine.CurrentState().
	v.machine.OnStateChange(func(from, to librefsm.StateID) {
		v.logger.Infof("State transition: %s -> %s", from, to)
		v.metrics.ObserveTransition(string(from), string(to))
		v.publishStatus()
	})

	if err := v.machine.Start(ctx); err != nil {
		return err
	}

	v.logger.Infof("librefsm state machine started")
	return nil
}

// sendEvent sends an event to the FSM and waits until it is processed
func (v *FlightSystem) sendEvent(event librefsm.Event) error {
	return v.machine.SendSync(event)
}

func (v *FlightSystem) env(id librefsm.StateID) states.Env {
	return states.Env{
		Vehicle:   v.redis,
		Commander: v.redis,
		Landed:    v.landed,
		Config:    v.session.Config(),
		Logger:    v.logger.WithTag(string(id)),
	}
}

// EnterState builds and enters the behavior of the state being entered.
// When the event carries an operation whose transitional state this is,
// the operation's goal configures the behavior.
func (v *FlightSystem) EnterState(c *librefsm.Context) error {
	// Self transitions skip OnExit.
	v.exitActive()

	v.mu.Lock()
	v.current = c.ToState
	v.mu.Unlock()

	var (
		st  states.State
		err error
	)
	if op, ok := operationOf(c); ok && op.Transitional() == c.ToState {
		st, err = op.NewTransitionalState(v.stateRegistry, v.env(c.ToState))
	} else {
		st, err = v.stateRegistry.New(c.ToState, v.env(c.ToState), nil)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", c.ToState, err)
	}

	if err := st.Enter(); err != nil {
		return fmt.Errorf("enter %s: %w", c.ToState, err)
	}

	v.mu.Lock()
	v.active = st
	v.mu.Unlock()

	v.logger.Debugf("FSM: entered %s", c.ToState)
	return nil
}

func (v *FlightSystem) ExitState(c *librefsm.Context) error {
	v.exitActive()
	return nil
}

// exitActive exits the active behavior once. Later calls do nothing until
// another state is entered.
func (v *FlightSystem) exitActive() {
	v.mu.Lock()
	st := v.active
	v.active = nil
	v.mu.Unlock()

	if st == nil {
		return
	}
	st.Exit()
	v.logger.Debugf("FSM: exited %s", st.ID())
}

func operationOf(c *librefsm.Context) (*operations.Operation, bool) {
	if c.Event == nil {
		return nil, false
	}
	op, ok := c.Event.Payload.(*operations.Operation)
	return op, ok && op != nil
}
