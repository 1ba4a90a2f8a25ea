package httpclient

import (
	"fmt"
	"time"

	"github.com/watchmen-go/kernel/resilience"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client. Nil resilience sections are disabled.
type Config struct {
	Timeout time.Duration
	Auth    Auth
	TLS     *TLSConfig
	// Headers are sent with every request.
	Headers map[string]string
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreakerConfig
	Limiter *resilience.RateLimiterConfig
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	if c.Auth.Scheme != SchemeNone && c.Auth.Token == "" {
		return fmt.Errorf("httpclient: %s auth requires a token", c.Auth.Scheme)
	}
	return c.TLS.Validate()
}

// DefaultRetryConfig retries only retryable failures.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}

// DefaultCircuitBreakerConfig counts only retryable failures, so a
// rejected payload never opens the circuit.
func DefaultCircuitBreakerConfig(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.FailureIf = IsRetryable
	return &cfg
}
