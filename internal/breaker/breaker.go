// Package breaker implements a circuit breaker for the external vision
// dependency. A single instance is shared across all course jobs and is
// passed explicitly to every call site.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit breaker is open")

// State is the current breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Breaker guards calls to a flaky dependency. After FailureThreshold
// consecutive failures it opens and rejects calls until Cooldown elapses,
// then allows exactly one trial call.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state        State
	failures     int
	openedAt     time.Time
	trialPending bool

	// now is swappable for tests.
	now func() time.Time
}

// Config configures a new Breaker.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker (default 5).
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a
	// trial call (default 60s).
	Cooldown time.Duration
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In half-open state only the
// first caller after the cooldown gets through; the outcome of that trial
// call decides the next state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trialPending = true
		return nil
	case StateHalfOpen:
		if b.trialPending {
			// A trial call is already in flight.
			return ErrOpen
		}
		b.trialPending = true
		return nil
	}
	return nil
}

// RecordSuccess reports a successful call. In half-open state this closes
// the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialPending = false
	b.state = StateClosed
}

// RecordFailure reports a failed call. In half-open state the breaker
// reopens and the cooldown restarts; in closed state the consecutive
// failure count advances toward the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trialPending = false
		b.state = StateOpen
		b.openedAt = b.now()
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// CancelTrial returns a granted half-open trial slot without recording a
// verdict. For calls that ended without proving the dependency healthy or
// unhealthy (canceled mid-flight, or failed for a reason the breaker does
// not track), this lets the next caller take a fresh trial instead of
// leaving the slot held forever. No-op outside half-open.
func (b *Breaker) CancelTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialPending = false
	}
}

// Call runs fn through the breaker. The breaker-open rejection does not
// invoke fn at all.
func (b *Breaker) Call(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Reset forces the breaker closed unconditionally. Used before an
// operator-triggered bulk reanalysis.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.trialPending = false
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Surface the half-open transition to observers without requiring
	// an Allow call.
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// SetNowFunc overrides the clock. Tests only.
func (b *Breaker) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
