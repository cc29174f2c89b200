package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/librescoot/librefsm"
	"github.com/prometheus/client_golang/prometheus"

	"fluid-service/internal/config"
	"fluid-service/internal/fsm"
	"fluid-service/internal/geometry"
	"fluid-service/internal/logger"
	"fluid-service/internal/messaging"
	"fluid-service/internal/metrics"
	"fluid-service/internal/operations"
	"fluid-service/internal/path"
	"fluid-service/internal/states"
	"fluid-service/internal/types"
)

// Mock MessagingClient. With simulate set, position setpoints move the
// vehicle there at once.
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks
	simulate  bool

	pose  types.Pose
	twist types.Twist
	link  types.LinkState

	// Track method calls
	setpoints []types.Setpoint
	statuses  []types.Status
	results   []messaging.OperationResult
	tracking  []types.TrackingSample
	modes     []string
	arms      int
	closed    int
}

func newMockMessagingClient() *mockMessagingClient {
	return &mockMessagingClient{
		simulate: true,
		pose:     types.Pose{Orientation: geometry.IdentityQuaternion},
	}
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) Connect() error                             { return nil }
func (m *mockMessagingClient) StartListening() error                      { return nil }

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockMessagingClient) Pose() types.Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose
}

func (m *mockMessagingClient) Twist() types.Twist {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.twist
}

func (m *mockMessagingClient) Link() types.LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

func (m *mockMessagingClient) SetMode(mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, mode)
	return nil
}

func (m *mockMessagingClient) Arm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arms++
	return nil
}

func (m *mockMessagingClient) PublishSetpoint(sp types.Setpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setpoints = append(m.setpoints, sp)
	if m.simulate && !sp.TypeMask.Has(types.Idle) && !sp.TypeMask.Has(types.IgnorePX) {
		m.pose.Position = sp.Position
		m.twist = types.Twist{}
	}
	return nil
}

func (m *mockMessagingClient) PublishStatus(st types.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, st)
	return nil
}

func (m *mockMessagingClient) PublishOperationResult(res messaging.OperationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *mockMessagingClient) RecordTracking(s types.TrackingSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = append(m.tracking, s)
	return nil
}

func (m *mockMessagingClient) lastResult() (messaging.OperationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return messaging.OperationResult{}, false
	}
	return m.results[len(m.results)-1], true
}

type mockLanded struct {
	mu     sync.Mutex
	landed bool
}

func (d *mockLanded) Landed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.landed
}

func (d *mockLanded) set(v bool) {
	d.mu.Lock()
	d.landed = v
	d.mu.Unlock()
}

// stateRecorder wraps the built-in factories and records every state
// entered and every exit. live counts states entered and not yet exited;
// an Enter while another state is live is an overlap.
type stateRecorder struct {
	mu       sync.Mutex
	entered  []librefsm.StateID
	exits    map[librefsm.StateID]int
	live     int
	overlaps []string
}

type recordedState struct {
	states.State
	rec *stateRecorder
}

func (s *recordedState) Enter() error {
	s.rec.mu.Lock()
	s.rec.entered = append(s.rec.entered, s.ID())
	if s.rec.live > 0 {
		s.rec.overlaps = append(s.rec.overlaps, fmt.Sprintf("%s entered with %d live", s.ID(), s.rec.live))
	}
	s.rec.mu.Unlock()

	if err := s.State.Enter(); err != nil {
		return err
	}
	s.rec.mu.Lock()
	s.rec.live++
	s.rec.mu.Unlock()
	return nil
}

func (s *recordedState) Exit() {
	s.rec.mu.Lock()
	s.rec.exits[s.ID()]++
	s.rec.live--
	s.rec.mu.Unlock()
	s.State.Exit()
}

// Tracking forwards to the wrapped state when it follows a path.
func (s *recordedState) Tracking() (float64, path.PathPoint, bool) {
	if tr, ok := s.State.(states.Tracker); ok {
		return tr.Tracking()
	}
	return 0, path.PathPoint{}, false
}

func (r *stateRecorder) sequence() []librefsm.StateID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]librefsm.StateID(nil), r.entered...)
}

func (r *stateRecorder) exitCount(id librefsm.StateID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exits[id]
}

// assertSingleActive fails when a state was entered before the previous
// one exited, or when more than one state is live now.
func assertSingleActive(t *testing.T, r *stateRecorder) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.overlaps {
		t.Errorf("Overlapping states: %s", o)
	}
	if r.live != 1 {
		t.Errorf("Expected exactly one live state, got %d", r.live)
	}
}

func recordStates(v *FlightSystem) *stateRecorder {
	rec := &stateRecorder{exits: make(map[librefsm.StateID]int)}
	base := states.DefaultRegistry()
	wrapped := states.NewRegistry()
	ids := []librefsm.StateID{fsm.StateIdle, fsm.StateInit, fsm.StateTakeOff, fsm.StateMove, fsm.StateLand, fsm.StateHold, fsm.StateDock}
	for _, id := range ids {
		id := id
		wrapped.Register(id, func(env states.Env, goal any) (states.State, error) {
			st, err := base.New(id, env, goal)
			if err != nil {
				return nil, err
			}
			return &recordedState{State: st, rec: rec}, nil
		})
	}
	v.stateRegistry = wrapped
	return rec
}

const testTick = time.Second / 30

func newTestFlightSystem(t *testing.T) (*FlightSystem, *mockMessagingClient, *mockLanded, *stateRecorder) {
	t.Helper()
	return newTestFlightSystemWith(t, nil)
}

// newTestFlightSystemWith runs setup before the mode machine is built.
func newTestFlightSystemWith(t *testing.T, setup func(*FlightSystem)) (*FlightSystem, *mockMessagingClient, *mockLanded, *stateRecorder) {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelError)
	mockRedis := newMockMessagingClient()
	landed := &mockLanded{}
	system := NewFlightSystem(NewSession(config.Default(), mockRedis), mockRedis, landed, metrics.New(prometheus.NewRegistry()), l)
	rec := recordStates(system)
	if setup != nil {
		setup(system)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := system.initFSM(ctx); err != nil {
		t.Fatalf("initFSM failed: %v", err)
	}
	return system, mockRedis, landed, rec
}

func stepUntil(v *FlightSystem, state librefsm.StateID, max int) {
	for i := 0; i < max && v.CurrentState() != state; i++ {
		v.step(testTick)
	}
}

func assertSequence(t *testing.T, got []librefsm.StateID, want ...librefsm.StateID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected states %v, got %v", want, got)
		}
	}
}

func takeOff(t *testing.T, v *FlightSystem) *operations.Operation {
	t.Helper()
	op := operations.NewTakeOff(1.0)
	if err := v.accept(op); err != nil {
		t.Fatalf("TakeOff rejected: %v", err)
	}
	stepUntil(v, fsm.StateHold, 10)
	if v.CurrentState() != fsm.StateHold {
		t.Fatalf("Expected hold after take off, got %s", v.CurrentState())
	}
	return op
}

func TestNewFlightSystemStartsIdle(t *testing.T) {
	system, _, _, rec := newTestFlightSystem(t)

	if system.CurrentState() != fsm.StateIdle {
		t.Errorf("Expected initial state idle, got %s", system.CurrentState())
	}
	if system.Operation() != nil {
		t.Error("Expected no running operation")
	}
	assertSequence(t, rec.sequence(), fsm.StateIdle)
}

func TestTakeOffScenario(t *testing.T) {
	system, mockRedis, _, rec := newTestFlightSystem(t)

	op := takeOff(t, system)

	assertSequence(t, rec.sequence(), fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold)
	assertSingleActive(t, rec)
	if op.Outcome() != operations.Completed {
		t.Errorf("Expected completed, got %s", op.Outcome())
	}
	if system.Operation() != nil {
		t.Error("Expected no running operation after completion")
	}
	if got := mockRedis.Pose().Position.Z; got != 1.0 {
		t.Errorf("Expected vehicle at 1.0 m, got %v", got)
	}

	res, ok := mockRedis.lastResult()
	if !ok || res.ID != op.ID().String() || res.Outcome != "completed" || res.Operation != operations.IDTakeOff {
		t.Errorf("Expected completed take_off result, got %+v", res)
	}
}

func TestRejectedOperationChangesNothing(t *testing.T) {
	system, mockRedis, _, rec := newTestFlightSystem(t)

	op := operations.NewDock(states.DockGoal{Target: r3.Vector{X: 1}})
	err := system.accept(op)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if system.CurrentState() != fsm.StateIdle {
		t.Errorf("Expected idle, got %s", system.CurrentState())
	}
	assertSequence(t, rec.sequence(), fsm.StateIdle)
	if op.Outcome() != operations.Rejected {
		t.Errorf("Expected rejected, got %s", op.Outcome())
	}
	if res, _ := mockRedis.lastResult(); res.Outcome != "rejected" {
		t.Errorf("Expected rejected result, got %+v", res)
	}

	// Move is admissible from any state only where the graph has an edge.
	if err := system.accept(operations.NewMoveTo(r3.Vector{X: 1})); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected move from idle to be rejected, got %v", err)
	}
}

func TestPreemptionAbortsAndExitsOnce(t *testing.T) {
	system, _, landed, rec := newTestFlightSystem(t)
	takeOff(t, system)

	move := operations.NewMoveTo(r3.Vector{X: 10, Z: 1})
	if err := system.accept(move); err != nil {
		t.Fatalf("Move rejected: %v", err)
	}
	system.step(testTick)
	system.step(testTick)
	if system.CurrentState() != fsm.StateMove {
		t.Fatalf("Expected move, got %s", system.CurrentState())
	}

	land := operations.NewLand()
	if err := system.accept(land); err != nil {
		t.Fatalf("Land rejected: %v", err)
	}

	if !move.HasBeenAborted() {
		t.Error("Expected move to be aborted")
	}
	if move.Outcome() != operations.Aborted {
		t.Errorf("Expected aborted, got %s", move.Outcome())
	}
	if n := rec.exitCount(fsm.StateMove); n != 1 {
		t.Errorf("Expected move exited once, got %d", n)
	}
	assertSequence(t, rec.sequence(),
		fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold, fsm.StateMove, fsm.StateLand)
	assertSingleActive(t, rec)

	landed.set(true)
	stepUntil(system, fsm.StateIdle, 5)
	assertSequence(t, rec.sequence(),
		fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold, fsm.StateMove, fsm.StateLand, fsm.StateIdle)
	if land.Outcome() != operations.Completed {
		t.Errorf("Expected land completed, got %s", land.Outcome())
	}
	if n := rec.exitCount(fsm.StateMove); n != 1 {
		t.Errorf("Expected move exited once, got %d", n)
	}
	assertSingleActive(t, rec)
}

func TestCancelInitWithoutLink(t *testing.T) {
	system, mockRedis, _, rec := newTestFlightSystem(t)

	op := operations.NewInit()
	if err := system.accept(op); err != nil {
		t.Fatalf("Init rejected: %v", err)
	}
	for i := 0; i < 20; i++ {
		system.step(testTick)
	}
	if system.CurrentState() != fsm.StateInit {
		t.Fatalf("Expected init to wait for the link, got %s", system.CurrentState())
	}

	if err := system.cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !op.HasBeenAborted() {
		t.Error("Expected abort flag after cancel")
	}
	system.step(testTick)

	if system.CurrentState() != fsm.StateIdle {
		t.Errorf("Expected idle after cancel, got %s", system.CurrentState())
	}
	if op.Outcome() != operations.Aborted {
		t.Errorf("Expected aborted, got %s", op.Outcome())
	}
	if n := rec.exitCount(fsm.StateInit); n != 1 {
		t.Errorf("Expected init exited once, got %d", n)
	}
	assertSequence(t, rec.sequence(), fsm.StateIdle, fsm.StateInit, fsm.StateIdle)
	assertSingleActive(t, rec)
	if mockRedis.arms != 0 {
		t.Errorf("Expected no arm request without link, got %d", mockRedis.arms)
	}
}

func TestInitCompletesWhenArmed(t *testing.T) {
	system, mockRedis, _, rec := newTestFlightSystem(t)

	op := operations.NewInit()
	if err := system.accept(op); err != nil {
		t.Fatalf("Init rejected: %v", err)
	}

	mockRedis.mu.Lock()
	mockRedis.link = types.LinkState{Connected: true}
	mockRedis.mu.Unlock()

	for i := 0; i < 500 && op.Outcome() == operations.Pending; i++ {
		system.step(testTick)
		mockRedis.mu.Lock()
		if len(mockRedis.modes) > 0 {
			mockRedis.link.Mode = types.ModeOffboard
		}
		if mockRedis.arms > 0 {
			mockRedis.link.Armed = true
		}
		mockRedis.mu.Unlock()
	}

	if op.Outcome() != operations.Completed {
		t.Fatalf("Expected init completed, got %s", op.Outcome())
	}
	assertSequence(t, rec.sequence(), fsm.StateIdle, fsm.StateInit, fsm.StateIdle)

	st := system.Status()
	if !st.Linked || !st.Armed || st.Mode != types.ModeOffboard {
		t.Errorf("Expected linked, armed, offboard status, got %+v", st)
	}
}

func TestMoveRecordsTrackingAndStatus(t *testing.T) {
	system, mockRedis, _, _ := newTestFlightSystem(t)
	takeOff(t, system)

	if err := system.accept(operations.NewMoveTo(r3.Vector{X: 10, Z: 1})); err != nil {
		t.Fatalf("Move rejected: %v", err)
	}
	system.step(testTick)

	st := system.Status()
	if st.State != string(fsm.StateMove) || st.Operation != operations.IDMove {
		t.Errorf("Expected move status, got %+v", st)
	}

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if len(mockRedis.tracking) == 0 {
		t.Fatal("Expected a tracking sample")
	}
	sample := mockRedis.tracking[len(mockRedis.tracking)-1]
	if sample.PathError > 1e-6 {
		t.Errorf("Expected zero path error on the path start, got %v", sample.PathError)
	}
	sp := mockRedis.setpoints[len(mockRedis.setpoints)-1]
	if sp.TypeMask != types.MaskPathFollowing {
		t.Errorf("Expected path following mask, got %#x", sp.TypeMask)
	}
}

func TestIdleStreamsIdleSetpoint(t *testing.T) {
	system, mockRedis, _, _ := newTestFlightSystem(t)
	system.step(testTick)

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if len(mockRedis.setpoints) != 1 || mockRedis.setpoints[0].TypeMask != types.Idle {
		t.Errorf("Expected one idle setpoint, got %+v", mockRedis.setpoints)
	}
}

func TestRequestOperationNotRunning(t *testing.T) {
	system, _, _, _ := newTestFlightSystem(t)
	err := system.RequestOperation(context.Background(), operations.NewTakeOff(1))
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestHandleOperationRequestUnknown(t *testing.T) {
	system, mockRedis, _, _ := newTestFlightSystem(t)

	err := system.handleOperationRequest(context.Background(), messaging.OperationRequest{ID: "x", Operation: "loop"})
	if !errors.Is(err, operations.ErrUnknownOperation) {
		t.Fatalf("Expected ErrUnknownOperation, got %v", err)
	}
	res, ok := mockRedis.lastResult()
	if !ok || res.ID != "x" || res.Outcome != "rejected" || res.Error == "" {
		t.Errorf("Expected rejected result with error, got %+v", res)
	}
}

func TestRunServesRequests(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelError)
	mockRedis := newMockMessagingClient()
	cfg := config.Default()
	cfg.RefreshRate = 200
	system := NewFlightSystem(NewSession(cfg, mockRedis), mockRedis, nil, nil, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := system.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- system.Run(ctx) }()
	<-system.running

	id := uuid.New()
	goal, _ := json.Marshal(states.TakeOffGoal{Altitude: 1.5})
	req := messaging.OperationRequest{ID: id.String(), Operation: operations.IDTakeOff, Goal: goal}
	if err := mockRedis.callbacks.OperationCallback(req); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if res, ok := mockRedis.lastResult(); ok && res.ID == id.String() {
			if res.Outcome != "completed" {
				t.Errorf("Expected completed, got %+v", res)
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if res, _ := mockRedis.lastResult(); res.ID != id.String() {
		t.Fatal("Timed out waiting for take off result")
	}
	if got := mockRedis.Pose().Position.Z; got != 1.5 {
		t.Errorf("Expected vehicle at 1.5 m, got %v", got)
	}

	err := system.RequestOperation(ctx, operations.NewDock(states.DockGoal{Target: r3.Vector{X: 0.5, Z: 1.5}}))
	if err != nil {
		t.Fatalf("Dock rejected: %v", err)
	}
	if err := system.Cancel(ctx); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if mockRedis.closed != 1 {
		t.Errorf("Expected messaging closed once, got %d", mockRedis.closed)
	}
	if err := system.RequestOperation(context.Background(), operations.NewHold()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning after shutdown, got %v", err)
	}
}

func TestMoveReplacesMove(t *testing.T) {
	system, _, _, rec := newTestFlightSystem(t)
	takeOff(t, system)

	first := operations.NewMoveTo(r3.Vector{X: 10, Z: 1})
	if err := system.accept(first); err != nil {
		t.Fatalf("Move rejected: %v", err)
	}
	system.step(testTick)

	second := operations.NewMoveTo(r3.Vector{Y: 5, Z: 1})
	if err := system.accept(second); err != nil {
		t.Fatalf("Second move rejected: %v", err)
	}
	system.step(testTick)

	if first.Outcome() != operations.Aborted {
		t.Errorf("Expected first move aborted, got %s", first.Outcome())
	}
	if system.Operation() != second {
		t.Error("Expected second move running")
	}
	if n := rec.exitCount(fsm.StateMove); n != 1 {
		t.Errorf("Expected one move exit, got %d", n)
	}
	assertSequence(t, rec.sequence(),
		fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold, fsm.StateMove, fsm.StateMove)
	assertSingleActive(t, rec)
}

func survey(goal any) *operations.Operation {
	return operations.New("survey", fsm.StateHold, fsm.StateDock, fsm.StateHold, goal)
}

func TestOperationWithoutCompletionRouteRejected(t *testing.T) {
	system, _, _, rec := newTestFlightSystem(t)
	takeOff(t, system)

	op := survey(states.DockGoal{Target: r3.Vector{X: 0.5, Z: 1}})
	if err := system.accept(op); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if op.Outcome() != operations.Rejected {
		t.Errorf("Expected rejected, got %s", op.Outcome())
	}
	if system.CurrentState() != fsm.StateHold {
		t.Errorf("Expected hold, got %s", system.CurrentState())
	}
	if n := rec.exitCount(fsm.StateHold); n != 0 {
		t.Errorf("Expected hold untouched, got %d exits", n)
	}
	assertSequence(t, rec.sequence(), fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold)
	assertSingleActive(t, rec)
}

func TestRegisteredCustomOperationReachesTarget(t *testing.T) {
	system, _, _, rec := newTestFlightSystemWith(t, func(v *FlightSystem) {
		v.Operations().Register(operations.Kind{
			Identifier:   "survey",
			Precondition: fsm.StateHold,
			Transitional: fsm.StateDock,
			Target:       fsm.StateHold,
		})
	})
	takeOff(t, system)

	op := survey(states.DockGoal{Target: r3.Vector{X: 0.5, Z: 1}})
	if err := system.accept(op); err != nil {
		t.Fatalf("Survey rejected: %v", err)
	}
	for i := 0; i < 1000 && op.Outcome() == operations.Pending; i++ {
		system.step(testTick)
	}

	if op.Outcome() != operations.Completed {
		t.Fatalf("Expected completed, got %s", op.Outcome())
	}
	if system.CurrentState() != fsm.StateHold {
		t.Errorf("Expected hold after survey, got %s", system.CurrentState())
	}
	assertSequence(t, rec.sequence(),
		fsm.StateIdle, fsm.StateTakeOff, fsm.StateHold, fsm.StateDock, fsm.StateHold)
	assertSingleActive(t, rec)
}

func TestEdgeAddedAfterStartRejected(t *testing.T) {
	system, _, _, rec := newTestFlightSystemWith(t, func(v *FlightSystem) {
		v.Operations().Register(operations.Kind{
			Identifier:   "park",
			Precondition: fsm.StateHold,
			Transitional: fsm.StateIdle,
			Target:       fsm.StateIdle,
		})
	})
	takeOff(t, system)
	system.session.Graph().AddTransition(fsm.StateHold, fsm.StateIdle)

	op := operations.New("park", fsm.StateHold, fsm.StateIdle, fsm.StateIdle, nil)
	if !op.ValidateFromCurrentState(fsm.StateHold, system.session.Graph()) {
		t.Fatal("Expected the graph to admit park")
	}
	if err := system.accept(op); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if system.CurrentState() != fsm.StateHold {
		t.Errorf("Expected hold, got %s", system.CurrentState())
	}
	if n := rec.exitCount(fsm.StateHold); n != 0 {
		t.Errorf("Expected hold untouched, got %d exits", n)
	}
	assertSingleActive(t, rec)
}

func TestHandleOperationRequestBeforeRun(t *testing.T) {
	system, mockRedis, _, _ := newTestFlightSystem(t)

	id := uuid.New()
	goal, _ := json.Marshal(states.TakeOffGoal{Altitude: 1})
	req := messaging.OperationRequest{ID: id.String(), Operation: operations.IDTakeOff, Goal: goal}
	if err := system.handleOperationRequest(context.Background(), req); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Expected ErrNotRunning, got %v", err)
	}

	res, ok := mockRedis.lastResult()
	if !ok || res.ID != id.String() || res.Outcome != "rejected" || res.Error == "" {
		t.Errorf("Expected rejected result with error, got %+v", res)
	}
	if system.CurrentState() != fsm.StateIdle {
		t.Errorf("Expected idle, got %s", system.CurrentState())
	}
}
