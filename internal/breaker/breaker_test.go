package breaker

import (
	"errors"
	"testing"
	"time"
)

// TestBreaker_OpensAfterThreshold tests that N consecutive failures open
// the breaker and the next call is rejected without invoking the dependency.
func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Cooldown: time.Minute})

	failing := errors.New("dependency down")
	for i := 0; i < 3; i++ {
		err := b.Call(func() error { return failing })
		if !errors.Is(err, failing) {
			t.Fatalf("call %d: error = %v, want %v", i, err, failing)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want %s", got, StateOpen)
	}

	invoked := false
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("dependency invoked while breaker open")
	}
}

// TestBreaker_SuccessResetsFailureCount tests that a success between
// failures keeps the breaker closed.
func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Cooldown: time.Minute})

	failing := errors.New("flaky")
	b.Call(func() error { return failing })
	b.Call(func() error { return failing })
	b.Call(func() error { return nil })
	b.Call(func() error { return failing })
	b.Call(func() error { return failing })

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
	if got := b.Failures(); got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}
}

// TestBreaker_HalfOpenTrialSuccess tests the half-open trial call path:
// exactly one call is allowed after the cooldown, and its success closes
// the breaker.
func TestBreaker_HalfOpenTrialSuccess(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})

	base := time.Now()
	now := base
	b.SetNowFunc(func() time.Time { return now })

	b.Call(func() error { return errors.New("down") })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want %s", got, StateOpen)
	}

	// Still inside the cooldown window.
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow() during cooldown = %v, want ErrOpen", err)
	}

	now = base.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil (trial call)", err)
	}
	// Second caller must not slip through while the trial is in flight.
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("second Allow() in half-open = %v, want ErrOpen", err)
	}

	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after trial success = %s, want %s", got, StateClosed)
	}
	if got := b.Failures(); got != 0 {
		t.Errorf("failures after close = %d, want 0", got)
	}
}

// TestBreaker_HalfOpenTrialFailureReopens tests that a failed trial call
// reopens the breaker and restarts the cooldown.
func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})

	base := time.Now()
	now := base
	b.SetNowFunc(func() time.Time { return now })

	b.Call(func() error { return errors.New("down") })

	now = base.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil", err)
	}
	b.RecordFailure()

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after trial failure = %s, want %s", got, StateOpen)
	}

	// Cooldown restarted from the trial failure, not the original open.
	now = base.Add(2*time.Minute + 30*time.Second)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() inside restarted cooldown = %v, want ErrOpen", err)
	}
}

// TestBreaker_Reset tests the unconditional reset used before bulk
// reanalysis.
func TestBreaker_Reset(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Hour})

	b.Call(func() error { return errors.New("down") })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want %s", got, StateOpen)
	}

	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after reset = %s, want %s", got, StateClosed)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after reset = %v, want nil", err)
	}
}

// TestBreaker_CancelTrialReleasesSlot tests that a trial call ending
// without a verdict (canceled, or failed for an untracked reason) gives
// the slot back instead of wedging the breaker in half-open.
func TestBreaker_CancelTrialReleasesSlot(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})

	base := time.Now()
	now := base
	b.SetNowFunc(func() time.Time { return now })

	b.Call(func() error { return errors.New("down") })

	now = base.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil (trial call)", err)
	}

	// The trial ended with no verdict; without the release every later
	// caller would see ErrOpen forever.
	b.CancelTrial()

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after canceled trial = %v, want nil (fresh trial)", err)
	}
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after trial success = %s, want %s", got, StateClosed)
	}
}

// TestBreaker_CancelTrialOutsideHalfOpen tests that the release is a
// no-op in closed and open states.
func TestBreaker_CancelTrialOutsideHalfOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Minute})

	b.CancelTrial()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %s, want %s", got, StateClosed)
	}

	b.Call(func() error { return errors.New("down") })
	b.CancelTrial()
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() while open = %v, want ErrOpen", err)
	}
}
