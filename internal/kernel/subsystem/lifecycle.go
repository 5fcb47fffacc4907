package subsystem

import (
	"fmt"
	"sync"
)

// State is one stage of a subsystem's life, from the kernel's view.
type State string

const (
	StateUnregistered State = "unregistered"
	StateBuilt        State = "built"
	StateRegistered   State = "registered"
	StateDisposed     State = "disposed"
)

// ErrInvalidTransition is returned by Lifecycle.Advance for any
// transition outside Unregistered->Built->Registered->Disposed.
var ErrInvalidTransition = fmt.Errorf("subsystem: invalid state transition")

var nextState = map[State]State{
	StateUnregistered: StateBuilt,
	StateBuilt:        StateRegistered,
	StateRegistered:   StateDisposed,
}

// Lifecycle tracks one subsystem's position in the kernel's state
// machine and rejects any transition other than the single legal next
// step.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// NewLifecycle starts a lifecycle at StateUnregistered.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUnregistered}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Advance moves the lifecycle to `to`, failing if `to` is not the
// single legal successor of the current state.
func (l *Lifecycle) Advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	want, ok := nextState[l.state]
	if !ok || want != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
	}
	l.state = to
	return nil
}
