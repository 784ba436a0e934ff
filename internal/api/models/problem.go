package models

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs. The documents behind them describe each failure
// mode and how clients should react.
const (
	ProblemTypeValidation      = "https://api.trafficsense.in/problems/validation-error"
	ProblemTypeNotFound        = "https://api.trafficsense.in/problems/not-found"
	ProblemTypeTooManyRequests = "https://api.trafficsense.in/problems/too-many-requests"
	ProblemTypeInternal        = "https://api.trafficsense.in/problems/internal-error"
	ProblemTypeUnavailable     = "https://api.trafficsense.in/problems/service-unavailable"
	ProblemTypeUpstream        = "https://api.trafficsense.in/problems/upstream-error"
)

// Problem is the RFC 7807 error body every non-2xx response uses,
// served as application/problem+json. TraceID carries the request ID so
// a client-reported error can be matched to server logs.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId"`

	// Errors holds per-field validation failures on 400 responses.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError describes one invalid field in a request body or query.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewProblem builds a Problem with the required members set.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets the occurrence-specific detail message.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field validation errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write serializes the problem to the response with the matching
// content type and status.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest builds a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID).
		WithDetail(detail).WithErrors(errors)
}

// NewNotFound builds a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID).
		WithDetail(detail)
}

// NewBadGateway builds a 502 problem for upstream provider failures.
func NewBadGateway(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUpstream, "Upstream provider error", http.StatusBadGateway, traceID).
		WithDetail(detail)
}

// NewTooManyRequests builds a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID).
		WithDetail(detail)
}

// NewInternalError builds a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID).
		WithDetail(detail)
}

// NewServiceUnavailable builds a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID).
		WithDetail(detail)
}
