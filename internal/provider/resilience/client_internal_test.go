package resilience

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackedBody counts Close calls so leak behavior is observable.
type trackedBody struct {
	io.Reader
	closes int
}

func (b *trackedBody) Close() error {
	b.closes++
	return nil
}

// failingTransport returns a 5xx with a fresh tracked body per attempt.
type failingTransport struct {
	bodies []*trackedBody
}

func (t *failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body := &trackedBody{Reader: strings.NewReader("upstream overloaded")}
	t.bodies = append(t.bodies, body)
	return &http.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{},
		Body:       body,
		Request:    req,
	}, nil
}

func TestDoWithContext_ClosesSupersededRetryBodies(t *testing.T) {
	client := NewClient(ClientConfig{
		Name:            "tomtom",
		MaxRetries:      3,
		InitialInterval: 1,
		MaxInterval:     1,
		CircuitBreaker: &CircuitBreakerConfig{
			Name:        "tomtom",
			ReadyToTrip: func(gobreaker.Counts) bool { return false },
		},
	})

	transport := &failingTransport{}
	client.http.Transport = transport

	req, err := http.NewRequest(http.MethodGet, "http://upstream.test/flow", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	require.Len(t, transport.bodies, 4) // initial attempt + 3 retries

	// Every superseded attempt's body was closed; only the returned
	// response's body is the caller's to close.
	for i, body := range transport.bodies[:3] {
		assert.Equal(t, 1, body.closes, "attempt %d body not closed", i)
	}
	assert.Equal(t, 0, transport.bodies[3].closes)
	assert.Same(t, transport.bodies[3], resp.Body)
}
