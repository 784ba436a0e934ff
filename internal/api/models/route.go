package models

import "strings"

// RouteComputeRequest is the request body for computing routes between
// two free-text places.
type RouteComputeRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Validate returns field errors for missing route endpoints.
func (r *RouteComputeRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Origin) == "" {
		errs = append(errs, FieldError{
			Field:   "origin",
			Message: "origin is required",
			Code:    "required",
		})
	}
	if strings.TrimSpace(r.Destination) == "" {
		errs = append(errs, FieldError{
			Field:   "destination",
			Message: "destination is required",
			Code:    "required",
		})
	}
	return errs
}
