package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Take when no token is available.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	// Name identifies this rate limiter in logs.
	Name string
	// Rate is the number of calls allowed per second.
	Rate float64
	// Burst is the maximum burst size.
	Burst int
	// OnLimit is called when a call has to wait or is rejected.
	OnLimit func(name string)
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{Name: name, Rate: 10.0, Burst: 20}
}

// RateLimiter is a token bucket. External writers use it to cap the call
// rate against a single endpoint.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst <= 0 {
		config.Burst = int(config.Rate)
	}
	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Allow takes a token without blocking and reports whether one was available.
func (rl *RateLimiter) Allow() bool {
	return rl.reserve(false) == 0
}

// Take is Allow returning ErrRateLimited on refusal.
func (rl *RateLimiter) Take() error {
	if !rl.Allow() {
		return ErrRateLimited
	}
	return nil
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return Sleep(ctx, rl.reserve(true))
}

// reserve takes one token. When none is left it either borrows one and
// returns the time until it is repaid, or refuses with a negative duration.
func (rl *RateLimiter) reserve(borrow bool) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.config.Rate
	rl.lastRefill = now
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	if rl.config.OnLimit != nil {
		rl.config.OnLimit(rl.config.Name)
	}
	if !borrow {
		return -1
	}
	wait := time.Duration((1 - rl.tokens) / rl.config.Rate * float64(time.Second))
	rl.tokens--
	return wait
}
