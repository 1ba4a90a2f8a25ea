// Package resilience provides retry, backoff, circuit breaking and rate
// limiting.
//
// Merge actions retry optimistic lock conflicts through Retry with a
// JitterBackoff; external writers wrap their HTTP calls in a
// CircuitBreaker and a RateLimiter.
//
//	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    Backoff:     resilience.NewJitterBackoff(10 * time.Millisecond),
//	    RetryIf:     isVersionConflict,
//	}, func(attempt int) error {
//	    return mergeOnce(ctx)
//	})
package resilience
