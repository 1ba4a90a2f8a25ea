package resilience

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff decides how long to wait before retry attempt n (1-based: the
// wait after the first failure is Next(1)).
type Backoff interface {
	Next(attempt int) time.Duration
}

// BackoffFunc adapts a function to Backoff.
type BackoffFunc func(attempt int) time.Duration

// Next implements Backoff.
func (f BackoffFunc) Next(attempt int) time.Duration { return f(attempt) }

// NoBackoff retries immediately.
var NoBackoff Backoff = BackoffFunc(func(int) time.Duration { return 0 })

// JitterBackoff waits Base plus a uniformly random jitter in
// [MinJitter, MaxJitter] before every retry. Merge actions use it to spread
// concurrent writers that lost an optimistic lock.
type JitterBackoff struct {
	Base      time.Duration
	MinJitter time.Duration
	MaxJitter time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitterBackoff returns a JitterBackoff with 1-20ms of jitter over base.
func NewJitterBackoff(base time.Duration) *JitterBackoff {
	return &JitterBackoff{
		Base:      base,
		MinJitter: time.Millisecond,
		MaxJitter: 20 * time.Millisecond,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next implements Backoff.
func (b *JitterBackoff) Next(int) time.Duration {
	span := int64(b.MaxJitter - b.MinJitter)
	if span <= 0 {
		return b.Base + b.MinJitter
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b.Base + b.MinJitter + time.Duration(b.rnd.Int63n(span+1))
}

// ExponentialBackoff grows Initial by Factor per attempt, capped at Max,
// with a relative Jitter in [0, 1].
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// Next implements Backoff.
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	backoffFloat := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))

	if b.Jitter > 0 {
		jitterRange := backoffFloat * b.Jitter
		backoffFloat += (rand.Float64()*2 - 1) * jitterRange
	}

	if backoffFloat > float64(b.Max) {
		backoffFloat = float64(b.Max)
	}
	if backoffFloat < 0 {
		backoffFloat = float64(b.Initial)
	}
	return time.Duration(backoffFloat)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
