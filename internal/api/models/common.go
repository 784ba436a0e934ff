// Package models provides request and response models for the TrafficSense API.
package models

import "time"

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoBox represents a geographic bounding box.
type GeoBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Validate returns field errors for a malformed bounding box.
func (b GeoBox) Validate() []FieldError {
	var errs []FieldError
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLat > b.MaxLat {
		errs = append(errs, FieldError{
			Field:   "minLat",
			Message: "latitude bounds must satisfy -90 <= minLat <= maxLat <= 90",
			Code:    "invalid_range",
		})
	}
	if b.MinLng < -180 || b.MaxLng > 180 || b.MinLng > b.MaxLng {
		errs = append(errs, FieldError{
			Field:   "minLng",
			Message: "longitude bounds must satisfy -180 <= minLng <= maxLng <= 180",
			Code:    "invalid_range",
		})
	}
	return errs
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// CollectionMeta contains metadata for list responses.
type CollectionMeta struct {
	Count int `json:"count"`
}

// Collection is a generic list response envelope.
type Collection struct {
	Data any            `json:"data"`
	Meta CollectionMeta `json:"meta"`
}

// NewCollection wraps a slice for a list response.
func NewCollection(data any, count int) Collection {
	return Collection{Data: data, Meta: CollectionMeta{Count: count}}
}

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	// Remove quotes
	s := string(data[1 : len(data)-1])
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
