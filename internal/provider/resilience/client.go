package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// without attempting it. Callers should treat it as "provider down" and
// fall back to cached or alternate data rather than retrying.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Client defaults. Traffic feeds refresh every couple of minutes, so a
// request that cannot complete inside 10 seconds is not worth waiting for.
const (
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig configures a resilient HTTP client for one upstream provider.
type ClientConfig struct {
	// Name identifies the provider ("tomtom", "mappls", "googlemaps").
	// Used for circuit breaker naming and registry lookups.
	Name string

	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration

	// MaxRetries is how many times a failed attempt is retried.
	MaxRetries uint64

	// InitialInterval and MaxInterval bound the exponential backoff
	// between retry attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker overrides the breaker settings. Nil means
	// DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client at construction time so
	// the ops endpoints can report its breaker state.
	Registry *Registry
}

// DefaultClientConfig returns the standard provider client configuration.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &cbConfig,
	}
}

// Client wraps http.Client with a circuit breaker and exponential-backoff
// retries. One Client per upstream provider; the breaker state is shared
// across all requests to that provider.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	config  ClientConfig
}

// NewClient builds a resilient client and, if cfg.Registry is set,
// registers it under cfg.Name.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaultMaxInterval
	}

	cbConfig := cfg.CircuitBreaker
	if cbConfig == nil {
		d := DefaultCircuitBreakerConfig(cfg.Name)
		cbConfig = &d
	}

	c := &Client{
		name:    cfg.Name,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](*cbConfig), //nolint:bodyclose // type parameter, not a live response
		config:  cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the provider name this client was built for.
func (c *Client) Name() string {
	return c.name
}

// Do executes the request with breaker protection and retries. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// 4xx responses are returned as-is without retrying. When the breaker is
// open the request fails immediately with ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context governing the retry loop.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries, not wall clock

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			// Clone per attempt so retries do not reuse a consumed request.
			r, doErr := c.http.Do(req.Clone(ctx))
			if doErr != nil {
				return nil, doErr
			}
			// 5xx counts as a breaker failure even though we got a response.
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				// Drop the body of the attempt this one supersedes, or
				// every retry of a failing call leaks a connection.
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil && lastResp != resp {
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		// A 5xx that exhausted retries still carries a usable response;
		// hand it back and let the caller decide.
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}

	return lastResp, nil
}

// CircuitBreakerState reports the breaker's current state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts reports the breaker's request/failure counters.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

// ServerError marks an HTTP 5xx so the breaker counts it as a failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
