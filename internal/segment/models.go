// Package segment maintains per-road-segment speed state aggregated
// from incoming traffic samples, plus a bounded speed history.
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/trafficsense/trafficsense/internal/traffic"
)

// Repository errors.
var (
	ErrSegmentNotFound = errors.New("segment not found")
)

// MovingSpeedThreshold is the speed in km/h above which a segment is
// considered moving.
const MovingSpeedThreshold = 5.0

// AverageWindow is the number of recent history entries folded into
// the rolling average alongside the newest speed.
const AverageWindow = 10

// SegmentID derives a stable identifier from a coordinate pair
// quantized to four decimal places (roughly 11 m at the equator).
// Distinct roads closer than the quantum collapse to one segment;
// acceptable at city-monitoring resolution.
func SegmentID(lat, lng float64) string {
	return fmt.Sprintf("segment_%.4f_%.4f", lat, lng)
}

// State is the current aggregated view of one road segment.
type State struct {
	SegmentID    string             `json:"segmentId"`
	Location     string             `json:"location"`
	Coordinates  traffic.Coordinate `json:"coordinates"`
	CurrentSpeed float64            `json:"currentSpeed"`
	AverageSpeed float64            `json:"averageSpeed"`
	MaxSpeed     float64            `json:"maxSpeed"`
	IsMoving     bool               `json:"isMoving"`
	Source       string             `json:"source"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// HistoryEntry is one recorded speed observation for a segment.
type HistoryEntry struct {
	SegmentID   string             `json:"segmentId"`
	Speed       float64            `json:"speed"`
	Coordinates traffic.Coordinate `json:"coordinates"`
	RecordedAt  time.Time          `json:"recordedAt"`
}

// Area is a geographic bounding box for segment queries.
type Area struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the coordinate falls inside the box,
// boundaries included.
func (a Area) Contains(c traffic.Coordinate) bool {
	return c.Lat >= a.MinLat && c.Lat <= a.MaxLat &&
		c.Lng >= a.MinLng && c.Lng <= a.MaxLng
}
