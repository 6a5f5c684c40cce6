// Package breaker sheds calls to an upstream dependency after consecutive
// failures and lets a single trial call through once a cooldown passes.
// The agent guards Binance market data and Redis fan-out with it.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the upstream while the breaker is
// open, or while a half-open trial call is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

// State of a Breaker. The numeric values are exported as a gauge.
type State int

const (
	Closed   State = 0
	Open     State = 1
	HalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config tunes a Breaker. Zero values take the defaults noted per field.
type Config struct {
	Name        string
	MaxFailures int           // consecutive failures that open the breaker (5)
	Cooldown    time.Duration // time spent open before a trial call (10s)

	// IsFailure decides which errors count against the upstream. Errors it
	// rejects still prove the upstream answered and reset the count.
	// Default: every error except context.Canceled.
	IsFailure func(error) bool

	// Now overrides the clock.
	Now func() time.Time
}

// Listener is notified after every state change, outside the breaker lock.
type Listener func(name string, from, to State)

// Stats is a point-in-time view of a Breaker.
type Stats struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Failures  int       `json:"failures"`
	Trips     uint64    `json:"trips"`
	LastError string    `json:"last_error,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
}

type change struct{ from, to State }

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	trips     uint64
	openedAt  time.Time
	trial     bool
	lastErr   error
	listeners []Listener
	pending   []change
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.cfg.Name }

// OnStateChange adds a listener.
func (b *Breaker) OnStateChange(fn Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Do runs fn unless the breaker sheds the call with ErrOpen, and records
// the outcome. fn's error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.set(HalfOpen)
		b.trial = true
	case HalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.unlock()

	failed := err != nil && b.cfg.IsFailure(err)
	if failed {
		b.lastErr = err
	}

	if b.state == HalfOpen {
		b.trial = false
		if failed {
			b.trip()
		} else {
			b.failures = 0
			b.set(Closed)
		}
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == Closed && b.failures >= b.cfg.MaxFailures {
		b.trip()
	}
}

// trip opens the breaker. Callers hold mu.
func (b *Breaker) trip() {
	b.openedAt = b.cfg.Now()
	b.trips++
	b.set(Open)
}

// set records a transition for delivery once mu is released.
func (b *Breaker) set(to State) {
	if b.state == to {
		return
	}
	b.pending = append(b.pending, change{b.state, to})
	b.state = to
}

func (b *Breaker) unlock() {
	pending := b.pending
	b.pending = nil
	listeners := b.listeners
	b.mu.Unlock()

	for _, c := range pending {
		for _, fn := range listeners {
			fn(b.cfg.Name, c.from, c.to)
		}
	}
}

// State returns the current state. An open breaker whose cooldown has
// passed still reports Open until the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot for health and debugging output.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		Name:     b.cfg.Name,
		State:    b.state.String(),
		Failures: b.failures,
		Trips:    b.trips,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	if b.state != Closed {
		s.OpenedAt = b.openedAt
	}
	return s
}
