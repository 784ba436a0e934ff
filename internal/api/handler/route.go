package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/api/models"
	"github.com/trafficsense/trafficsense/internal/api/response"
	"github.com/trafficsense/trafficsense/internal/route"
)

// RoutePlanner computes traffic-aware route options.
type RoutePlanner interface {
	Plan(ctx context.Context, req route.Request) (*route.Result, error)
}

// RouteHandler serves route computation.
type RouteHandler struct {
	planner RoutePlanner
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(planner RoutePlanner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: planner, logger: logger}
}

// Get handles GET /v1/routes?origin=...&destination=...
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	req := models.RouteComputeRequest{
		Origin:      r.URL.Query().Get("origin"),
		Destination: r.URL.Query().Get("destination"),
	}
	h.plan(w, r, req)
}

// Compute handles POST /v1/routes:compute with a JSON body.
func (h *RouteHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	h.plan(w, r, req)
}

func (h *RouteHandler) plan(w http.ResponseWriter, r *http.Request, req models.RouteComputeRequest) {
	if h.planner == nil {
		response.ServiceUnavailable(w, r, "route computation is not configured")
		return
	}

	if fieldErrs := req.Validate(); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "origin and destination are required", fieldErrs)
		return
	}

	result, err := h.planner.Plan(r.Context(), route.Request{
		Origin:      req.Origin,
		Destination: req.Destination,
	})
	if err != nil {
		h.writePlanError(w, r, req, err)
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}

func (h *RouteHandler) writePlanError(w http.ResponseWriter, r *http.Request, req models.RouteComputeRequest, err error) {
	switch {
	case errors.Is(err, route.ErrInvalidRequest):
		response.BadRequest(w, r, "origin and destination are required", nil)
	case errors.Is(err, route.ErrNoRouteFound):
		response.NotFound(w, r, "no route found between origin and destination")
	case errors.Is(err, route.ErrRateLimited):
		response.TooManyRequests(w, r, "routing provider quota exceeded, try again later")
	case errors.Is(err, route.ErrProviderUnavailable):
		h.logger.Error().Err(err).
			Str("origin", req.Origin).
			Str("destination", req.Destination).
			Msg("routing provider unavailable")
		response.BadGateway(w, r, "routing provider unavailable")
	default:
		h.logger.Error().Err(err).
			Str("origin", req.Origin).
			Str("destination", req.Destination).
			Msg("route computation failed")
		response.InternalError(w, r, "route computation failed")
	}
}
