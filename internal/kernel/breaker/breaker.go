// Package breaker implements a three-state circuit breaker the kernel
// trips per subsystem when its handler fails repeatedly, so messages for a
// wedged subsystem fail fast with ErrOpen instead of invoking a handler
// that is going to fail anyway. The subsystem keeps its time slices.
package breaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrOpen           = errors.New("breaker: subsystem circuit is open")
	ErrTooManyProbes  = errors.New("breaker: too many half-open probes in flight")
)

// State is one of the three circuit states.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker's tripping behavior.
type Settings struct {
	// MaxProbes bounds concurrent half-open probe calls.
	MaxProbes uint32
	// Interval periodically clears counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ReadyToTrip decides, given counts after a failure, whether to open.
	ReadyToTrip func(counts Counts) bool
	// OnStateChange notifies callers (typically for logging/metrics) of
	// every transition.
	OnStateChange func(subsystem string, from, to State)
}

// Counts tracks call outcomes within the breaker's current generation.
type Counts struct {
	Calls                uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards one subsystem's handler invocations.
type Breaker struct {
	subsystem string
	settings  Settings

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New constructs a breaker for subsystem. Zero-valued Settings fields
// fall back to defaults matching a conservative five-consecutive-failure
// trip threshold.
func New(subsystem string, settings Settings) *Breaker {
	if settings.MaxProbes == 0 {
		settings.MaxProbes = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	return &Breaker{
		subsystem: subsystem,
		settings:  settings,
		state:     StateClosed,
		expiry:    time.Now().Add(settings.Interval),
	}
}

// Subsystem returns the name this breaker guards.
func (b *Breaker) Subsystem() string { return b.subsystem }

// State returns the current circuit state, advancing open->half-open if
// the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

// Counts returns a snapshot of the current generation's call counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reports whether a handler call may proceed right now, and if so
// returns an opaque generation token that must be passed to Record.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)

	if state == StateOpen {
		return generation, ErrOpen
	}
	if state == StateHalfOpen && b.counts.Calls >= b.settings.MaxProbes {
		return generation, ErrTooManyProbes
	}

	b.counts.Calls++
	return generation, nil
}

// Record reports the outcome of a call previously admitted by Allow. A
// result for a stale generation (the breaker transitioned state mid-call)
// is discarded.
func (b *Breaker) Record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.currentState(now)
	if current != generation {
		return
	}
	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

// Call is a convenience wrapper combining Allow/Record around fn.
func (b *Breaker) Call(fn func() error) error {
	generation, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	b.Record(generation, err == nil)
	return err
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.counts.ConsecutiveSuccesses >= b.settings.MaxProbes {
			b.setState(StateClosed, now)
		}
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.settings.ReadyToTrip(b.counts) {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.resetCounts()
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, uint64(b.expiry.UnixNano())
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.resetCounts()

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.settings.Interval)
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.subsystem, prev, state)
	}
}

func (b *Breaker) resetCounts() { b.counts = Counts{} }

// Registry holds one Breaker per subsystem, created lazily.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*Breaker
}

// NewRegistry constructs a registry that applies settings to every
// breaker it creates.
func NewRegistry(settings Settings) *Registry {
	return &Registry{settings: settings, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for subsystem, creating it on first access.
func (r *Registry) For(subsystem string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[subsystem]
	if !ok {
		b = New(subsystem, r.settings)
		r.breakers[subsystem] = b
	}
	return b
}
