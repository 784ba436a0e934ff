// Package handler provides HTTP handlers for the TrafficSense API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/trafficsense/trafficsense/internal/api/models"
	"github.com/trafficsense/trafficsense/internal/api/response"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PipelineStats exposes counters from the ingestion pipeline.
type PipelineStats interface {
	Cycles() int64
}

// SubscriberCounter exposes the number of connected hub subscribers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	registry  *resilience.Registry
	poller    PipelineStats
	hub       SubscriberCounter
}

// OpsConfig holds dependencies for the OpsHandler. DB, Poller, and Hub
// are optional; nil dependencies are reported as absent rather than
// failing.
type OpsConfig struct {
	Version   string
	BuildTime string
	DB        Pinger
	Registry  *resilience.Registry
	Poller    PipelineStats
	Hub       SubscriberCounter
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	registry := cfg.Registry
	if registry == nil {
		registry = resilience.NewRegistry()
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		db:        cfg.DB,
		registry:  registry,
		poller:    cfg.Poller,
		hub:       cfg.Hub,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Not ready when the backing store is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details = map[string]any{"database": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and pipeline status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       now,
		Subsystems: h.subsystems(r.Context()),
		Providers:  h.providers(),
	}

	if h.poller != nil {
		status.Pipeline.PollCycles = h.poller.Cycles()
	}
	if h.hub != nil {
		status.Pipeline.Subscribers = h.hub.SubscriberCount()
	}

	for _, sub := range status.Subsystems {
		if sub.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}
	if status.Status == models.HealthStatusOK {
		for _, p := range status.Providers {
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
				break
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	subsystems := []models.SubsystemStatus{}

	if h.db != nil {
		dbStatus := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.db.Ping(pingCtx); err != nil {
			detail := err.Error()
			dbStatus.Status = models.HealthStatusFail
			dbStatus.Detail = &detail
		}
		subsystems = append(subsystems, dbStatus)
	}

	return subsystems
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	all := h.registry.GetAllHealth()
	providers := make([]models.ProviderStatus, 0, len(all))

	for _, ph := range all {
		p := models.ProviderStatus{
			Provider:     ph.Name,
			CircuitState: ph.CircuitState.String(),
		}

		switch {
		case ph.IsUnhealthy():
			p.Status = models.HealthStatusFail
		case ph.IsDegraded():
			p.Status = models.HealthStatusDegraded
		default:
			p.Status = models.HealthStatusOK
		}
		// A closed breaker with a recorded failure after the last
		// success still warrants a degraded flag.
		if p.Status == models.HealthStatusOK && ph.CircuitState == gobreaker.StateClosed &&
			ph.LastFailureAt != nil &&
			(ph.LastSuccessAt == nil || ph.LastFailureAt.After(*ph.LastSuccessAt)) {
			p.Status = models.HealthStatusDegraded
		}

		if ph.LastSuccessAt != nil {
			ts := models.Timestamp(*ph.LastSuccessAt)
			p.LastSuccessAt = &ts
		}
		if ph.LastFailureAt != nil {
			ts := models.Timestamp(*ph.LastFailureAt)
			p.LastFailureAt = &ts
		}
		if ph.LastError != "" {
			msg := ph.LastError
			p.Message = &msg
		}

		providers = append(providers, p)
	}

	return providers
}
