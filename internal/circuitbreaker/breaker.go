package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State represents the breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call outright.
var ErrOpen = fmt.Errorf("circuit breaker open")

// Config configures a circuit breaker
type Config struct {
	Name        string
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // how long to stay open before probing
	MaxRequests int           // probe budget while half-open
	Logger      zerolog.Logger
}

// CircuitBreaker protects a dependency from repeated failing calls.
type CircuitBreaker struct {
	config Config
	logger zerolog.Logger

	mu              sync.Mutex
	state           State
	failures        int
	halfOpenCalls   int
	openedAt        time.Time
	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// New creates a circuit breaker in the closed state.
func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		logger: config.Logger.With().Str("breaker", config.Name).Logger(),
		state:  StateClosed,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.Timeout {
			cb.totalRejections++
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.logger.Info().Msg("Circuit breaker half-open, probing")
		fallthrough

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.MaxRequests {
			cb.totalRejections++
			return ErrOpen
		}
		cb.halfOpenCalls++
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.logger.Info().Msg("Probe succeeded, closing circuit breaker")
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.totalFailures++
	cb.failures++

	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.logger.Warn().
			Int("failures", cb.failures).
			Msg("Circuit breaker opened")
	}
}

// Metrics describes a breaker's counters.
type Metrics struct {
	State           State `json:"state"`
	TotalCalls      int64 `json:"total_calls"`
	TotalFailures   int64 `json:"total_failures"`
	TotalRejections int64 `json:"total_rejections"`
}

// GetMetrics returns the breaker counters.
func (cb *CircuitBreaker) GetMetrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Metrics{
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
	}
}
