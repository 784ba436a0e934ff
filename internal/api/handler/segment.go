package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/api/models"
	"github.com/trafficsense/trafficsense/internal/api/response"
	"github.com/trafficsense/trafficsense/internal/segment"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

const maxSegmentLimit = 500

// SpeedIngester folds one speed observation into segment state.
type SpeedIngester interface {
	Upsert(ctx context.Context, sample traffic.Sample) (*segment.State, error)
}

// SegmentHandler serves road segment state and history.
type SegmentHandler struct {
	repo     segment.Repository
	ingester SpeedIngester
	logger   zerolog.Logger
}

// NewSegmentHandler creates a new SegmentHandler.
func NewSegmentHandler(repo segment.Repository, ingester SpeedIngester, logger zerolog.Logger) *SegmentHandler {
	return &SegmentHandler{repo: repo, ingester: ingester, logger: logger}
}

// List handles GET /v1/segments - most recently updated segments.
// Query params: limit (default 50, max 500), source.
func (h *SegmentHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptionsFromQuery(w, r)
	if !ok {
		return
	}

	states, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list segments")
		response.InternalError(w, r, "failed to list segments")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewCollection(states, len(states)))
}

// ListInArea handles GET /v1/segments/area - bounding box query.
// Query params: minLat, maxLat, minLng, maxLng, plus limit and source.
func (h *SegmentHandler) ListInArea(w http.ResponseWriter, r *http.Request) {
	box, fieldErrs := geoBoxFromQuery(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid bounding box", fieldErrs)
		return
	}

	opts, ok := listOptionsFromQuery(w, r)
	if !ok {
		return
	}

	area := segment.Area{
		MinLat: box.MinLat,
		MaxLat: box.MaxLat,
		MinLng: box.MinLng,
		MaxLng: box.MaxLng,
	}

	states, err := h.repo.ListInArea(r.Context(), area, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list segments in area")
		response.InternalError(w, r, "failed to list segments")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewCollection(states, len(states)))
}

// Get handles GET /v1/segments/{segmentId}.
func (h *SegmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segmentId")

	state, err := h.repo.Get(r.Context(), segmentID)
	if err != nil {
		if errors.Is(err, segment.ErrSegmentNotFound) {
			response.NotFound(w, r, "segment not found")
			return
		}
		h.logger.Error().Err(err).Str("segment_id", segmentID).Msg("failed to get segment")
		response.InternalError(w, r, "failed to get segment")
		return
	}

	response.JSON(w, r, http.StatusOK, state)
}

// History handles GET /v1/segments/{segmentId}/history - recent speed
// observations, newest first. Query param: limit (default 50, max 500).
func (h *SegmentHandler) History(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segmentId")

	opts, ok := listOptionsFromQuery(w, r)
	if !ok {
		return
	}

	// A 404 for unknown segments beats an empty history response.
	if _, err := h.repo.Get(r.Context(), segmentID); err != nil {
		if errors.Is(err, segment.ErrSegmentNotFound) {
			response.NotFound(w, r, "segment not found")
			return
		}
		h.logger.Error().Err(err).Str("segment_id", segmentID).Msg("failed to get segment")
		response.InternalError(w, r, "failed to get segment history")
		return
	}

	limit := opts.Limit
	if limit == 0 {
		limit = 50
	}

	entries, err := h.repo.RecentHistory(r.Context(), segmentID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("segment_id", segmentID).Msg("failed to get segment history")
		response.InternalError(w, r, "failed to get segment history")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewCollection(entries, len(entries)))
}

// Delete handles DELETE /v1/segments/{segmentId}. History rows are
// removed together with the segment.
func (h *SegmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segmentId")

	if err := h.repo.Delete(r.Context(), segmentID); err != nil {
		if errors.Is(err, segment.ErrSegmentNotFound) {
			response.NotFound(w, r, "segment not found")
			return
		}
		h.logger.Error().Err(err).Str("segment_id", segmentID).Msg("failed to delete segment")
		response.InternalError(w, r, "failed to delete segment")
		return
	}

	response.NoContent(w, r)
}

// Report handles POST /v1/segments - a manual speed observation folded
// into segment state through the same path as polled provider data.
func (h *SegmentHandler) Report(w http.ResponseWriter, r *http.Request) {
	var report models.SpeedReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if fieldErrs := report.Validate(); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid speed report", fieldErrs)
		return
	}

	source := report.Source
	if source == "" {
		source = "manual"
	}

	sample := traffic.Sample{
		SegmentID:    report.SegmentID,
		Location:     report.Location,
		Coordinates:  traffic.Coordinate{Lat: report.Coordinates.Lat, Lng: report.Coordinates.Lng},
		CurrentSpeed: report.Speed,
		Source:       source,
		ObservedAt:   time.Now(),
	}

	state, err := h.ingester.Upsert(r.Context(), sample)
	if err != nil {
		h.logger.Error().Err(err).Str("location", report.Location).Msg("failed to ingest speed report")
		response.InternalError(w, r, "failed to ingest speed report")
		return
	}

	response.Created(w, r, "/v1/segments/"+state.SegmentID, state)
}

func listOptionsFromQuery(w http.ResponseWriter, r *http.Request) (segment.ListOptions, bool) {
	opts := segment.ListOptions{Source: r.URL.Query().Get("source")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxSegmentLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "limit must be an integer between 1 and 500", Code: "invalid_range"},
			})
			return opts, false
		}
		opts.Limit = limit
	}

	return opts, true
}

func geoBoxFromQuery(r *http.Request) (models.GeoBox, []models.FieldError) {
	var box models.GeoBox
	var fieldErrs []models.FieldError

	parse := func(name string, dst *float64) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			fieldErrs = append(fieldErrs, models.FieldError{Field: name, Message: name + " is required", Code: "required"})
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: name, Message: name + " must be a number", Code: "invalid_type"})
			return
		}
		*dst = v
	}

	parse("minLat", &box.MinLat)
	parse("maxLat", &box.MaxLat)
	parse("minLng", &box.MinLng)
	parse("maxLng", &box.MaxLng)

	if len(fieldErrs) == 0 {
		fieldErrs = box.Validate()
	}
	return box, fieldErrs
}
