// Package breaker provides a thread-safe circuit breaker that stops the
// client from hammering the Amari API while it is failing.
//
// States:
//   - Closed: calls flow normally; consecutive failures are counted.
//   - Open: calls are rejected with ErrOpen; after OpenTimeout the breaker
//     moves to HalfOpen.
//   - HalfOpen: up to HalfOpenMaxSuccess probe calls are let through; if
//     all succeed the breaker closes, any failure reopens it.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int

	// IsFailure decides whether an error returned through Do counts against
	// the breaker. When nil every non-nil error counts.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition with the
	// breaker lock held.
	OnStateChange func(from, to State)
}

// DefaultConfig trips after five consecutive failures and probes again after
// thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        30 * time.Second,
		HalfOpenMaxSuccess: 1,
	}
}

// Breaker is a circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg   Config
	clock clock.Clock

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	probes    int // HalfOpen calls allowed but not yet reported
	openedAt  time.Time
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	return NewWithClock(cfg, clock.New())
}

// NewWithClock creates a Breaker that reads time from c.
func NewWithClock(cfg Config, c clock.Clock) *Breaker {
	return &Breaker{cfg: cfg, clock: c, state: Closed}
}

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a call may go through: always when Closed, while
// probe slots remain when HalfOpen, never when Open. In HalfOpen a true
// result reserves a probe slot until OnSuccess or OnFailure is called.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.successes+b.probes >= b.cfg.HalfOpenMaxSuccess {
			return false
		}
		b.probes++
		return true
	default: // Open
		return false
	}
}

// Do runs fn when the breaker allows it and records the outcome. Errors for
// which Config.IsFailure returns false are passed through but recorded as
// successes, so a 404 does not trip the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	if err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err)) {
		b.OnFailure()
	} else {
		b.OnSuccess()
	}
	return err
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probes = max(b.probes-1, 0)
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.failures = 0
			b.successes = 0
			b.transition(Closed)
		}
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// checkOpenTimeout moves Open to HalfOpen once the timeout has elapsed.
// Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.clock.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.successes = 0
		b.transition(HalfOpen)
	}
}

func (b *Breaker) toOpen() {
	b.openedAt = b.clock.Now()
	b.successes = 0
	b.transition(Open)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.probes = 0
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
