package resilience

import (
	"errors"
	"sync"
	"time"
)

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned while the circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int
	// Cooldown is how long an open circuit rejects calls before letting
	// one probe through.
	Cooldown time.Duration
	// FailureIf decides whether an error counts against the circuit.
	// Nil counts every error.
	FailureIf func(error) bool
	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig opens after 5 failures for 30 seconds.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{Name: name, MaxFailures: 5, Cooldown: 30 * time.Second}
}

// CircuitBreaker fails fast once an endpoint keeps failing. After the
// cooldown a single probe decides between closing and reopening.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.FailureIf == nil {
		cfg.FailureIf = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.acquire() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.release(cb.cfg.FailureIf(err))
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) release(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.probing = false
		if failed {
			cb.open()
		} else {
			cb.failures = 0
			cb.set(StateClosed)
		}
		return
	}
	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = time.Now()
	cb.set(StateOpen)
}

func (cb *CircuitBreaker) expire() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Cooldown {
		cb.set(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) set(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
