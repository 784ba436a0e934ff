// Package congestion provides pure classifiers mapping speed and duration
// ratios to a three-level congestion scale.
package congestion

import "math"

// Level is a coarse congestion classification.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Speed-ratio thresholds. The ratio is the fraction of free-flow speed
// lost to traffic; boundaries are exclusive, so a ratio of exactly 0.5
// classifies as medium.
const (
	speedHighThreshold   = 0.5
	speedMediumThreshold = 0.2
)

// Duration-ratio thresholds for in-traffic vs. free-flow travel time.
const (
	durationHighThreshold   = 1.5
	durationMediumThreshold = 1.15
)

// FromSpeed classifies congestion from a current speed against the
// free-flow speed for the same segment. It returns the level and the
// speed-loss ratio, clamped to 0 when freeFlowSpeed is not positive.
func FromSpeed(currentSpeed, freeFlowSpeed float64) (Level, float64) {
	ratio := 0.0
	if freeFlowSpeed > 0 {
		ratio = (freeFlowSpeed - currentSpeed) / freeFlowSpeed
	}

	switch {
	case ratio > speedHighThreshold:
		return LevelHigh, ratio
	case ratio > speedMediumThreshold:
		return LevelMedium, ratio
	default:
		return LevelLow, ratio
	}
}

// FromDuration classifies congestion from the in-traffic duration of a
// route against its free-flow duration. A non-positive base duration
// clamps the ratio to 0.
func FromDuration(trafficDuration, baseDuration float64) (Level, float64) {
	ratio := 0.0
	if baseDuration > 0 {
		ratio = trafficDuration / baseDuration
	}

	switch {
	case ratio > durationHighThreshold:
		return LevelHigh, ratio
	case ratio > durationMediumThreshold:
		return LevelMedium, ratio
	default:
		return LevelLow, ratio
	}
}

// Severity returns the level's rank for monotonicity comparisons:
// low < medium < high.
func (l Level) Severity() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// EstimateVehicleCount derives a rough vehicle count for a road segment
// from its speed-loss ratio. The constants come from calibrating against
// manual counts at the monitored intersections.
func EstimateVehicleCount(speedLossRatio float64) int {
	if speedLossRatio < 0 {
		speedLossRatio = 0
	}
	return int(math.Round(speedLossRatio*200)) + 10
}
