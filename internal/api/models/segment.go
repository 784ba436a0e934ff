package models

import "strings"

// SpeedReport is the request body for a manual speed observation on a
// road segment. When SegmentID is empty the server derives one from the
// coordinates.
type SpeedReport struct {
	SegmentID   string  `json:"segmentId,omitempty"`
	Location    string  `json:"location"`
	Coordinates Point   `json:"coordinates"`
	Speed       float64 `json:"speed"`
	Source      string  `json:"source,omitempty"`
}

// Validate returns field errors for a malformed speed report.
func (r *SpeedReport) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Location) == "" {
		errs = append(errs, FieldError{
			Field:   "location",
			Message: "location is required",
			Code:    "required",
		})
	}
	if r.Speed < 0 {
		errs = append(errs, FieldError{
			Field:   "speed",
			Message: "speed must be non-negative",
			Code:    "invalid_range",
		})
	}
	if r.Coordinates.Lat < -90 || r.Coordinates.Lat > 90 {
		errs = append(errs, FieldError{
			Field:   "coordinates.lat",
			Message: "latitude must be between -90 and 90",
			Code:    "invalid_range",
		})
	}
	if r.Coordinates.Lng < -180 || r.Coordinates.Lng > 180 {
		errs = append(errs, FieldError{
			Field:   "coordinates.lng",
			Message: "longitude must be between -180 and 180",
			Code:    "invalid_range",
		})
	}
	return errs
}
