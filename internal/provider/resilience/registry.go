package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a point-in-time view of one upstream provider,
// combining breaker state with the last observed success and failure.
// It feeds the providers section of GET /v1/ops/status.
type ProviderHealth struct {
	Name string

	// CircuitState is the breaker state at the time of the snapshot.
	CircuitState gobreaker.State

	// Counts are the breaker's request/failure counters.
	Counts gobreaker.Counts

	// LastSuccessAt and LastFailureAt are set by RecordSuccess and
	// RecordFailure; nil until the first matching call.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the message of the most recent recorded failure.
	LastError string
}

// IsHealthy reports whether the breaker is closed.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports whether the breaker is half-open (probing recovery).
func (h *ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports whether the breaker is open.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

type providerRecord struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// Registry tracks the resilient clients in use and the outcome of their
// most recent calls. Clients register themselves via ClientConfig.Registry;
// the fetch paths report outcomes with RecordSuccess and RecordFailure.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*providerRecord
}

// GlobalRegistry is the process-wide default registry.
var GlobalRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*providerRecord)}
}

// Register adds a client under the given provider name, replacing any
// previous registration.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[name] = &providerRecord{client: client}
}

// Unregister drops a provider from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, name)
}

// RecordSuccess stamps the provider's last successful call. Unknown
// names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		now := time.Now()
		rec.lastSuccessAt = &now
	}
}

// RecordFailure stamps the provider's last failed call and keeps the
// error message for the status payload. Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return
	}
	now := time.Now()
	rec.lastFailureAt = &now
	if err != nil {
		rec.lastError = err.Error()
	}
}

// GetHealth returns the health snapshot for one provider, or nil if the
// name is not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return nil
	}
	return snapshotHealth(name, rec)
}

// GetAllHealth returns health snapshots for every registered provider.
// Order is not deterministic; callers that need stable output sort it.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProviderHealth, 0, len(r.records))
	for name, rec := range r.records {
		out = append(out, snapshotHealth(name, rec))
	}
	return out
}

// GetProviderNames returns the registered provider names.
func (r *Registry) GetProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	return names
}

// ProviderCount returns how many providers are registered.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// snapshotHealth copies a record into a ProviderHealth. Caller holds the lock.
func snapshotHealth(name string, rec *providerRecord) *ProviderHealth {
	return &ProviderHealth{
		Name:          name,
		CircuitState:  rec.client.CircuitBreakerState(),
		Counts:        rec.client.CircuitBreakerCounts(),
		LastSuccessAt: rec.lastSuccessAt,
		LastFailureAt: rec.lastFailureAt,
		LastError:     rec.lastError,
	}
}
