package segment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/traffic"
)

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	// Repository persists segment states and history.
	Repository Repository

	// Logger for aggregation operations.
	Logger zerolog.Logger
}

// Aggregator folds incoming traffic samples into per-segment state.
// Updates to the same segment are serialized; distinct segments may
// be processed concurrently.
type Aggregator struct {
	repo   Repository
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator creates a new segment aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Upsert applies one traffic sample to its segment: first sight
// creates the state, later samples keep maxSpeed monotonic and
// recompute the rolling average over the new speed plus the most
// recent history entries. Every sample appends one history row.
func (a *Aggregator) Upsert(ctx context.Context, sample traffic.Sample) (*State, error) {
	segmentID := sample.SegmentID
	if segmentID == "" {
		segmentID = SegmentID(sample.Coordinates.Lat, sample.Coordinates.Lng)
	}

	lock := a.segmentLock(segmentID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	observedAt := sample.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}

	state, err := a.repo.Get(ctx, segmentID)
	switch {
	case errors.Is(err, ErrSegmentNotFound):
		state = &State{
			SegmentID:    segmentID,
			Location:     sample.Location,
			Coordinates:  sample.Coordinates,
			CurrentSpeed: sample.CurrentSpeed,
			AverageSpeed: sample.CurrentSpeed,
			MaxSpeed:     sample.CurrentSpeed,
			IsMoving:     sample.CurrentSpeed > MovingSpeedThreshold,
			Source:       sample.Source,
			UpdatedAt:    observedAt,
			CreatedAt:    now,
		}
	case err != nil:
		return nil, err
	default:
		history, err := a.repo.RecentHistory(ctx, segmentID, AverageWindow)
		if err != nil {
			return nil, err
		}

		state.Location = sample.Location
		state.Coordinates = sample.Coordinates
		state.CurrentSpeed = sample.CurrentSpeed
		state.AverageSpeed = rollingAverage(sample.CurrentSpeed, history)
		if sample.CurrentSpeed > state.MaxSpeed {
			state.MaxSpeed = sample.CurrentSpeed
		}
		state.IsMoving = sample.CurrentSpeed > MovingSpeedThreshold
		state.Source = sample.Source
		state.UpdatedAt = observedAt
	}

	if err := a.repo.Upsert(ctx, state); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		SegmentID:   segmentID,
		Speed:       sample.CurrentSpeed,
		Coordinates: sample.Coordinates,
		RecordedAt:  observedAt,
	}
	if err := a.repo.AppendHistory(ctx, entry); err != nil {
		return nil, err
	}

	return state, nil
}

// UpsertAll applies a batch of samples. A failure on one segment is
// logged and does not stop the rest of the batch; the number of
// successfully applied samples is returned.
func (a *Aggregator) UpsertAll(ctx context.Context, samples []traffic.Sample) int {
	applied := 0
	for _, sample := range samples {
		if _, err := a.Upsert(ctx, sample); err != nil {
			a.logger.Error().
				Err(err).
				Str("segment_id", sample.SegmentID).
				Str("location", sample.Location).
				Msg("failed to upsert segment")
			continue
		}
		applied++
	}
	return applied
}

// segmentLock returns the mutex serializing updates for one segment,
// creating it on first use. Locks are never removed; the monitored
// segment set is small and stable.
func (a *Aggregator) segmentLock(segmentID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[segmentID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[segmentID] = lock
	}
	return lock
}

// rollingAverage is the mean of the new speed and the recent history
// speeds.
func rollingAverage(speed float64, history []*HistoryEntry) float64 {
	sum := speed
	for _, h := range history {
		sum += h.Speed
	}
	return sum / float64(len(history)+1)
}
