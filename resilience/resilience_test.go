package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestJitterBackoffRange(t *testing.T) {
	b := NewJitterBackoff(10 * time.Millisecond)
	for i := 1; i <= 200; i++ {
		d := b.Next(i)
		if d < 11*time.Millisecond || d > 30*time.Millisecond {
			t.Fatalf("Next(%d) = %v outside [11ms, 30ms]", i, d)
		}
	}
}

func TestJitterBackoffZeroSpan(t *testing.T) {
	b := &JitterBackoff{Base: time.Millisecond, MinJitter: 2 * time.Millisecond, MaxJitter: 2 * time.Millisecond}
	if d := b.Next(1); d != 3*time.Millisecond {
		t.Errorf("expected 3ms, got %v", d)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := b.Next(tc.attempt); got != tc.want {
			t.Errorf("Next(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var attempts []int
	var waits []time.Duration
	got, err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 4,
		Backoff:     NoBackoff,
		OnRetry:     func(_ int, _ error, d time.Duration) { waits = append(waits, d) },
	}, func(attempt int) (string, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return "", errBoom
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Retry() = %q, %v", got, err)
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Errorf("unexpected attempts %v", attempts)
	}
	if len(waits) != 2 {
		t.Errorf("expected 2 OnRetry calls, got %d", len(waits))
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{MaxAttempts: 3, Backoff: NoBackoff}, func(int) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{
		MaxAttempts: 5,
		Backoff:     NoBackoff,
		RetryIf:     func(err error) bool { return !errors.Is(err, fatal) },
	}, func(int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Errorf("expected single call with fatal error, got %d calls, %v", calls, err)
	}
}

func TestRetryUsesBackoff(t *testing.T) {
	var asked []int
	backoff := BackoffFunc(func(attempt int) time.Duration {
		asked = append(asked, attempt)
		return 0
	})
	_ = RetryFunc(context.Background(), RetryConfig{MaxAttempts: 3, Backoff: backoff}, func(int) error {
		return errBoom
	})
	if len(asked) != 2 || asked[0] != 1 || asked[1] != 2 {
		t.Errorf("unexpected backoff calls %v", asked)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryFunc(ctx, RetryConfig{MaxAttempts: 3}, func(int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Errorf("expected cancellation before first call, got %v after %d calls", err, calls)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "writer",
		MaxFailures:   2,
		Cooldown:      20 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerFailureIf(t *testing.T) {
	ignored := errors.New("client error")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		FailureIf:   func(err error) bool { return err != nil && !errors.Is(err, ignored) },
	})
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return ignored }); !errors.Is(err, ignored) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("ignored errors must not trip the breaker: %s, %d", cb.State(), cb.Failures())
	}
}

func TestRateLimiter(t *testing.T) {
	limited := 0
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1000, Burst: 2, OnLimit: func(string) { limited++ }})

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst should allow two calls")
	}
	if err := rl.Take(); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if limited < 1 {
		t.Error("expected OnLimit callback")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	rl.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
