// Package resilience wraps outbound provider calls with circuit breakers,
// retries, and per-provider health tracking. Every upstream the service
// depends on (TomTom flow, Mappls incidents, Google Directions) goes
// through a Client from this package.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Trip threshold: a breaker opens once it has seen at least tripMinRequests
// calls with tripFailureRatio or more of them failing.
const (
	tripMinRequests  = 5
	tripFailureRatio = 0.5

	defaultBreakerTimeout = 60 * time.Second
)

// CircuitBreakerConfig holds the tunable breaker settings.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and the ops status payload.
	Name string

	// MaxRequests is how many probe requests the half-open state allows.
	MaxRequests uint32

	// Interval is the closed-state counter reset period. Zero disables
	// the reset, so the failure ratio accumulates until the state flips.
	Interval time.Duration

	// Timeout is how long an open breaker waits before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides when a closed breaker opens. Nil means
	// DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange, if set, is invoked on every state transition.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker settings used for all
// traffic and routing providers: a single half-open probe and a 60-second
// cool-off, which matches the poll cadence well enough that an outage
// costs at most one cycle of stale data.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     defaultBreakerTimeout,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the breaker at a 50% failure rate once at least
// five requests have been observed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRatio
}

// NewCircuitBreaker builds a gobreaker instance from the config.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}
