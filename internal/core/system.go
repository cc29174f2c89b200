package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	"go.uber.org/multierr"

	"fluid-service/internal/fsm"
	"fluid-service/internal/logger"
	"fluid-service/internal/metrics"
	"fluid-service/internal/operations"
	"fluid-service/internal/states"
	"fluid-service/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotRunning        = errors.New("flight system not running")
	ErrOperationAborted  = errors.New("operation aborted")
)

// request reaches the control loop through FlightSystem.requests. A nil
// operation cancels the running one.
type request struct {
	op    *operations.Operation
	reply chan error
}

// FlightSystem runs the control loop. It owns the active state and the
// running operation; both change only on the loop goroutine.
type FlightSystem struct {
	session *Session
	redis   MessagingClient
	landed  states.LandedDetector
	metrics *metrics.Metrics
	logger  *logger.Logger

	stateRegistry *states.Registry
	opRegistry    *operations.Registry
	machine       *librefsm.Machine

	// routes the machine was built with; fixed once initFSM returns
	edges       map[fsm.Transition]bool
	completions map[fsm.Completion]bool

	requests chan request
	running  chan struct{}
	stopped  chan struct{}

	// onComplete is called once per operation with its final outcome.
	onComplete func(op *operations.Operation)

	mu        sync.RWMutex
	current   librefsm.StateID
	active    states.State
	operation *operations.Operation
}

// NewFlightSystem wires the coordinator. landed may be nil, in which case
// the flight controller's own landed flag is used.
func NewFlightSystem(session *Session, redis MessagingClient, landed states.LandedDetector, m *metrics.Metrics, l *logger.Logger) *FlightSystem {
	v := &FlightSystem{
		session:       session,
		redis:         redis,
		landed:        landed,
		metrics:       m,
		logger:        l,
		stateRegistry: states.DefaultRegistry(),
		opRegistry:    operations.DefaultRegistry(),
		requests:      make(chan request, session.Config().MessageQueueSize),
		running:       make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	v.onComplete = v.notifyCompletion
	return v
}

// States is the registry the transitional and target states are built from.
// Register custom behaviors before Start.
func (v *FlightSystem) States() *states.Registry {
	return v.stateRegistry
}

// Operations is the registry front-end requests are decoded with.
func (v *FlightSystem) Operations() *operations.Registry {
	return v.opRegistry
}

// Start connects the transport, starts the mode machine in Idle and begins
// listening for requests. Run must be called afterwards.
func (v *FlightSystem) Start(ctx context.Context) error {
	v.logger.Infof("Starting flight system")

	v.redis.SetCallbacks(v.callbacks(ctx))
	if err := v.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := v.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	if err := v.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	v.logger.Infof("Flight system started in %s", v.CurrentState())
	return nil
}

// Run drives the fixed-rate loop until ctx is done, then tears down.
func (v *FlightSystem) Run(ctx context.Context) error {
	cfg := v.session.Config()
	period := cfg.Period()
	v.logger.Infof("Control loop running at %.1f Hz", cfg.RefreshRate)

	close(v.running)
	defer close(v.stopped)

	if cfg.AutoInit {
		if err := v.accept(operations.NewInit()); err != nil {
			v.logger.Warnf("Auto init rejected: %v", err)
		}
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return v.shutdown()
		case req := <-v.requests:
			if req.op == nil {
				req.reply <- v.cancel()
			} else {
				req.reply <- v.accept(req.op)
			}
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			v.step(dt)
		}
	}
}

// RequestOperation validates op against the current state and, when
// admissible, preempts the running operation and enters op's transitional
// state. It returns nil when op was accepted and an error wrapping
// ErrInvalidTransition when it was rejected. The outcome is delivered
// later through op.Done.
func (v *FlightSystem) RequestOperation(ctx context.Context, op *operations.Operation) error {
	return v.submit(ctx, request{op: op, reply: make(chan error, 1)})
}

// Cancel aborts the running operation without a successor. The machine
// settles in the rest state of the aborted behavior.
func (v *FlightSystem) Cancel(ctx context.Context) error {
	return v.submit(ctx, request{reply: make(chan error, 1)})
}

func (v *FlightSystem) submit(ctx context.Context, req request) error {
	select {
	case <-v.running:
	default:
		return ErrNotRunning
	}

	select {
	case v.requests <- req:
	case <-v.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-v.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// accept runs on the loop goroutine.
func (v *FlightSystem) accept(op *operations.Operation) error {
	current := v.CurrentState()
	if !op.ValidateFromCurrentState(current, v.session.Graph()) {
		v.logger.Warnf("Rejected operation %s (%s) in state %s", op.Identifier(), op.ID(), current)
		v.finish(op, operations.Rejected)
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op.Identifier(), current)
	}

	if !v.routable(current, op) {
		v.logger.Warnf("Rejected operation %s (%s): no route from %s through %s to %s",
			op.Identifier(), op.ID(), current, op.Transitional(), op.Target())
		v.finish(op, operations.Rejected)
		return fmt.Errorf("%w: %s has no route from %s", ErrInvalidTransition, op.Identifier(), current)
	}

	if prev := v.Operation(); prev != nil {
		prev.RequestAbort()
		v.logger.Infof("Operation %s preempted by %s", prev.Identifier(), op.Identifier())
		v.exitActive()
		v.finish(prev, operations.Aborted)
	}

	v.setOperation(op)
	v.logger.Infof("Accepted operation %s (%s): %s -> %s -> %s",
		op.Identifier(), op.ID(), current, op.Transitional(), op.Target())

	err := v.sendEvent(librefsm.Event{ID: fsm.RequestEvent(op.Transitional()), Payload: op})
	if err == nil && v.CurrentState() != op.Transitional() {
		err = fmt.Errorf("machine stayed in %s", v.CurrentState())
	}
	if err != nil {
		v.logger.Errorf("Failed to enter %s: %v", op.Transitional(), err)
		v.setOperation(nil)
		v.finish(op, operations.Aborted)
		v.settle()
		return fmt.Errorf("%w: %s: %v", ErrOperationAborted, op.Identifier(), err)
	}
	return nil
}

// routable reports whether the machine has both the request transition
// from current and the completion transition of op. Edges added to the
// graph after the machine was built are not routable.
func (v *FlightSystem) routable(current librefsm.StateID, op *operations.Operation) bool {
	if !v.completions[op.Completion()] {
		return false
	}
	return v.edges[fsm.Transition{Precondition: current, Transitional: op.Transitional()}] ||
		v.edges[fsm.Transition{Precondition: fsm.AnyState, Transitional: op.Transitional()}]
}

func (v *FlightSystem) cancel() error {
	op := v.Operation()
	if op == nil {
		v.logger.Debugf("Cancel requested without a running operation")
		return nil
	}
	op.RequestAbort()
	return nil
}

// step is one control cycle.
func (v *FlightSystem) step(dt time.Duration) {
	start := time.Now()

	if op := v.Operation(); op != nil && op.HasBeenAborted() {
		v.abort(op)
	}

	sp := types.IdleSetpoint()
	active := v.activeState()
	if active != nil {
		sp = active.Tick(dt)
	}
	if err := v.redis.PublishSetpoint(sp); err != nil {
		v.logger.Warnf("Failed to publish setpoint: %v", err)
	}

	if active != nil && active.HasFinishedExecution() {
		v.complete()
	}

	v.publishStatus()
	v.recordTracking()
	v.metrics.ObserveTick(time.Since(start))
}

// complete moves a finished transitional state to its target.
func (v *FlightSystem) complete() {
	op := v.Operation()
	if op == nil {
		return
	}
	v.setOperation(nil)
	err := v.sendEvent(librefsm.Event{ID: fsm.CompleteEvent(op.Identifier())})
	if err == nil && v.CurrentState() != op.Target() {
		err = fmt.Errorf("machine stayed in %s", v.CurrentState())
	}
	if err != nil {
		v.logger.Errorf("Failed to enter %s: %v", op.Target(), err)
		v.finish(op, operations.Aborted)
		v.settle()
		return
	}
	v.logger.Infof("Operation %s completed in %s", op.Identifier(), v.CurrentState())
	v.finish(op, operations.Completed)
}

// abort tears down an operation whose abort flag is set and falls back to
// the rest state. The target state is not entered.
func (v *FlightSystem) abort(op *operations.Operation) {
	v.logger.Infof("Operation %s aborted", op.Identifier())
	v.setOperation(nil)
	v.exitActive()
	v.finish(op, operations.Aborted)
	v.settle()
}

// settle sends the machine to the rest state of the current state.
func (v *FlightSystem) settle() {
	if err := v.sendEvent(librefsm.Event{ID: fsm.EvCancel}); err != nil {
		v.logger.Errorf("Failed to settle from %s: %v", v.CurrentState(), err)
	}
}

func (v *FlightSystem) finish(op *operations.Operation, outcome operations.Outcome) {
	if !op.Finish(outcome) {
		return
	}
	v.metrics.ObserveOperation(op.Identifier(), outcome.String())
	if v.onComplete != nil {
		v.onComplete(op)
	}
}

func (v *FlightSystem) status() types.Status {
	v.mu.RLock()
	st := types.Status{State: string(v.current)}
	if v.operation != nil {
		st.Operation = v.operation.Identifier()
	}
	active := v.active
	v.mu.RUnlock()

	link := v.redis.Link()
	st.Linked = link.Connected
	st.Armed = link.Armed
	st.Mode = link.Mode

	if tr, ok := active.(states.Tracker); ok {
		if e, _, ok := tr.Tracking(); ok {
			st.PathError = e
		}
	}
	return st
}

func (v *FlightSystem) publishStatus() {
	st := v.status()
	v.metrics.SetPathError(st.PathError)
	if err := v.session.Status().Publish(st); err != nil {
		v.logger.Warnf("Failed to publish status: %v", err)
	}
}

func (v *FlightSystem) recordTracking() {
	tr, ok := v.activeState().(states.Tracker)
	if !ok {
		return
	}
	e, pt, ok := tr.Tracking()
	if !ok {
		return
	}

	st := v.session.Status().Last()
	sample := types.TrackingSample{
		State:     st.State,
		Operation: st.Operation,
		Position:  v.redis.Pose().Position,
		Nearest:   pt.Position,
		PathError: e,
		Speed:     pt.Speed,
	}
	if err := v.redis.RecordTracking(sample); err != nil {
		v.logger.Debugf("Failed to record tracking: %v", err)
	}
}

func (v *FlightSystem) shutdown() error {
	v.logger.Infof("Shutting down flight system")
	var err error

	if op := v.Operation(); op != nil {
		op.RequestAbort()
		v.setOperation(nil)
		v.finish(op, operations.Aborted)
	}
	v.exitActive()

	err = multierr.Append(err, v.redis.PublishSetpoint(types.IdleSetpoint()))
	if v.machine != nil {
		err = multierr.Append(err, v.machine.Stop())
	}
	err = multierr.Append(err, v.redis.Close())
	return err
}

// CurrentState is the mode machine's state as seen by the coordinator.
// Safe to call from state-change callbacks.
func (v *FlightSystem) CurrentState() librefsm.StateID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Operation is the running operation, or nil.
func (v *FlightSystem) Operation() *operations.Operation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.operation
}

func (v *FlightSystem) setOperation(op *operations.Operation) {
	v.mu.Lock()
	v.operation = op
	v.mu.Unlock()
}

func (v *FlightSystem) activeState() states.State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active
}

// Status is the last published status snapshot.
func (v *FlightSystem) Status() types.Status {
	return v.session.Status().Last()
}
