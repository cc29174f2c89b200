// Package states holds the flight behaviors. A State is created when the
// coordinator enters it, ticked once per control period, and exited once.
package states

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"fluid-service/internal/config"
	"fluid-service/internal/fsm"
	"fluid-service/internal/logger"
	"fluid-service/internal/path"
	"fluid-service/internal/types"
)

var (
	ErrUnknownState = errors.New("unknown state")
	ErrInvalidGoal  = errors.New("invalid goal")
)

// State is one behavior. Tick must not block and returns the single
// command to send for this period.
type State interface {
	ID() librefsm.StateID
	Enter() error
	Tick(dt time.Duration) types.Setpoint
	HasFinishedExecution() bool
	Exit()
}

// Tracker is implemented by states that follow a path.
type Tracker interface {
	Tracking() (pathError float64, point path.PathPoint, ok bool)
}

// Vehicle is the latest telemetry from the flight controller.
type Vehicle interface {
	Pose() types.Pose
	Twist() types.Twist
	Link() types.LinkState
}

// Commander sends mode and arming requests to the flight controller.
type Commander interface {
	SetMode(mode string) error
	Arm() error
}

// LandedDetector reports ground contact.
type LandedDetector interface {
	Landed() bool
}

// LinkLanded uses the flight controller's own landed flag.
type LinkLanded struct {
	Vehicle Vehicle
}

func (l LinkLanded) Landed() bool {
	return l.Vehicle.Link().Landed
}

// Env is what a state may use while it is active.
type Env struct {
	Vehicle   Vehicle
	Commander Commander
	Landed    LandedDetector
	Config    config.Config
	Logger    *logger.Logger
}

func (e Env) landed() bool {
	if e.Landed != nil {
		return e.Landed.Landed()
	}
	return e.Vehicle.Link().Landed
}

// Factory creates a state for an optional goal.
type Factory func(env Env, goal any) (State, error)

// Registry maps state identifiers to factories. Custom behaviors register
// here next to the built-in ones.
type Registry struct {
	mu        sync.RWMutex
	factories map[librefsm.StateID]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[librefsm.StateID]Factory)}
}

// DefaultRegistry knows every built-in state.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(fsm.StateIdle, func(env Env, _ any) (State, error) { return NewIdle(env), nil })
	r.Register(fsm.StateInit, func(env Env, _ any) (State, error) { return NewInit(env), nil })
	r.Register(fsm.StateHold, func(env Env, _ any) (State, error) { return NewHold(env), nil })
	r.Register(fsm.StateLand, func(env Env, _ any) (State, error) { return NewLand(env), nil })
	r.Register(fsm.StateTakeOff, func(env Env, goal any) (State, error) {
		g, err := goalAs[TakeOffGoal](goal)
		if err != nil {
			return nil, err
		}
		return NewTakeOff(env, g), nil
	})
	r.Register(fsm.StateMove, func(env Env, goal any) (State, error) {
		g, err := goalAs[MoveGoal](goal)
		if err != nil {
			return nil, err
		}
		return NewMove(env, g), nil
	})
	r.Register(fsm.StateDock, func(env Env, goal any) (State, error) {
		g, err := goalAs[DockGoal](goal)
		if err != nil {
			return nil, err
		}
		return NewDock(env, g), nil
	})
	return r
}

// goalAs accepts a T, a *T, or nil for the zero T.
func goalAs[T any](goal any) (T, error) {
	var zero T
	switch g := goal.(type) {
	case nil:
		return zero, nil
	case T:
		return g, nil
	case *T:
		if g == nil {
			return zero, nil
		}
		return *g, nil
	default:
		return zero, fmt.Errorf("%w: %T", ErrInvalidGoal, goal)
	}
}

func (r *Registry) Register(id librefsm.StateID, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

func (r *Registry) New(id librefsm.StateID, env Env, goal any) (State, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, id)
	}
	return f(env, goal)
}

// Known reports whether id has a factory.
func (r *Registry) Known(id librefsm.StateID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}
