package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_PermanentShortCircuits(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("err = %v, want the unwrapped sentinel", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancel)", calls)
	}
}

func TestDo_AttemptFloor(t *testing.T) {
	sentinel := errors.New("fails")
	calls := 0
	err := Do(context.Background(), 0, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (zero attempts rounds up)", calls)
	}
}

func TestBackoff_DoublesPerAttempt(t *testing.T) {
	cases := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 75 * time.Millisecond, 125 * time.Millisecond},
		{2, 150 * time.Millisecond, 250 * time.Millisecond},
		{3, 300 * time.Millisecond, 500 * time.Millisecond},
	}
	for _, tc := range cases {
		got := backoff(100*time.Millisecond, tc.attempt)
		if got < tc.min || got > tc.max {
			t.Errorf("backoff(100ms, %d) = %v, want within [%v, %v]", tc.attempt, got, tc.min, tc.max)
		}
	}
}

func TestBackoff_CapsGrowth(t *testing.T) {
	// Attempt 63 overflows the shift; the cap must hold regardless.
	got := backoff(time.Second, 63)
	lo := maxDelay - maxDelay/4
	hi := maxDelay + maxDelay/4
	if got < lo || got > hi {
		t.Errorf("backoff(1s, 63) = %v, want within [%v, %v]", got, lo, hi)
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	got := backoff(0, 1)
	if got < 75*time.Millisecond || got > 125*time.Millisecond {
		t.Errorf("backoff(0, 1) = %v, want the 100ms default window", got)
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(Permanent(inner), inner) {
		t.Error("Permanent should unwrap to the inner error")
	}
}
