package handler

import (
	"context"
	"net/http"

	"github.com/trafficsense/trafficsense/internal/api/models"
	"github.com/trafficsense/trafficsense/internal/api/response"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

// TrafficSource resolves live traffic and incident data.
type TrafficSource interface {
	Snapshot(ctx context.Context) (*traffic.Snapshot, error)
	ResolveIncidents(ctx context.Context) []traffic.Incident
}

// TrafficHandler serves live traffic and accident reads.
type TrafficHandler struct {
	source TrafficSource
}

// NewTrafficHandler creates a new TrafficHandler.
func NewTrafficHandler(source TrafficSource) *TrafficHandler {
	return &TrafficHandler{source: source}
}

// Snapshot handles GET /v1/traffic. Provider outages degrade first to
// the last known-good snapshot, then to an empty one, never an error.
func (h *TrafficHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.source.Snapshot(r.Context())
	if err != nil {
		snap = &traffic.Snapshot{Traffic: []traffic.Sample{}, Accidents: []traffic.Incident{}}
	}
	response.JSON(w, r, http.StatusOK, snap)
}

// Accidents handles GET /v1/accidents.
func (h *TrafficHandler) Accidents(w http.ResponseWriter, r *http.Request) {
	incidents := h.source.ResolveIncidents(r.Context())
	response.JSON(w, r, http.StatusOK, models.NewCollection(incidents, len(incidents)))
}
