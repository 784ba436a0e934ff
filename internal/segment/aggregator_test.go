package segment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/trafficsense/internal/segment"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

func newAggregator(repo segment.Repository) *segment.Aggregator {
	return segment.NewAggregator(segment.AggregatorConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
	})
}

func sampleAt(lat, lng, speed float64) traffic.Sample {
	return traffic.Sample{
		Location:     "MP Nagar",
		Coordinates:  traffic.Coordinate{Lat: lat, Lng: lng},
		CurrentSpeed: speed,
		Source:       "tomtom",
		ObservedAt:   time.Now(),
	}
}

func TestSegmentID_Quantization(t *testing.T) {
	assert.Equal(t, "segment_23.2332_77.4342", segment.SegmentID(23.23317, 77.43423))

	// Points within the quantum collapse to the same segment.
	assert.Equal(t,
		segment.SegmentID(23.23311, 77.43421),
		segment.SegmentID(23.23314, 77.43419),
	)
}

func TestAggregator_Upsert_FirstSight(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)

	state, err := agg.Upsert(context.Background(), sampleAt(23.2332, 77.4343, 42))
	require.NoError(t, err)

	assert.Equal(t, "segment_23.2332_77.4343", state.SegmentID)
	assert.Equal(t, 42.0, state.CurrentSpeed)
	assert.Equal(t, 42.0, state.AverageSpeed)
	assert.Equal(t, 42.0, state.MaxSpeed)
	assert.True(t, state.IsMoving)

	history, err := repo.RecentHistory(context.Background(), state.SegmentID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 42.0, history[0].Speed)
}

func TestAggregator_Upsert_HistoryRecordsCoordinates(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)

	state, err := agg.Upsert(context.Background(), sampleAt(23.2599, 77.4126, 28))
	require.NoError(t, err)

	history, err := repo.RecentHistory(context.Background(), state.SegmentID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, traffic.Coordinate{Lat: 23.2599, Lng: 77.4126}, history[0].Coordinates)
}

func TestAggregator_Upsert_StoppedSegment(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)

	state, err := agg.Upsert(context.Background(), sampleAt(23.2332, 77.4343, 5))
	require.NoError(t, err)

	// Exactly the threshold is not moving.
	assert.False(t, state.IsMoving)
}

func TestAggregator_Upsert_MaxSpeedMonotonic(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)
	ctx := context.Background()

	_, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 60))
	require.NoError(t, err)

	state, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 20))
	require.NoError(t, err)

	assert.Equal(t, 20.0, state.CurrentSpeed)
	assert.Equal(t, 60.0, state.MaxSpeed, "max speed never decreases")

	state, err = agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 75))
	require.NoError(t, err)
	assert.Equal(t, 75.0, state.MaxSpeed)
}

func TestAggregator_Upsert_RollingAverage(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)
	ctx := context.Background()

	// Three observations: average is the mean of the new speed and
	// the prior history entries.
	_, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 30))
	require.NoError(t, err)
	_, err = agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 40))
	require.NoError(t, err)
	state, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 50))
	require.NoError(t, err)

	assert.InDelta(t, 40.0, state.AverageSpeed, 1e-9)
}

func TestAggregator_Upsert_AverageWindowBounded(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)
	ctx := context.Background()

	// Fill well past the window with a constant speed, then push one
	// outlier: only the last 10 history entries plus the new speed
	// contribute.
	for i := 0; i < 25; i++ {
		_, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 20))
		require.NoError(t, err)
	}

	state, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 86))
	require.NoError(t, err)

	// (10*20 + 86) / 11
	assert.InDelta(t, 26.0, state.AverageSpeed, 1e-9)
}

func TestAggregator_UpsertAll_IsolatesFailures(t *testing.T) {
	repo := &failingRepo{
		Repository: segment.NewInMemoryRepository(),
		failFor:    segment.SegmentID(23.2500, 77.4100),
	}
	agg := newAggregator(repo)

	applied := agg.UpsertAll(context.Background(), []traffic.Sample{
		sampleAt(23.2332, 77.4343, 30),
		sampleAt(23.2500, 77.4100, 40),
		sampleAt(23.2599, 77.4126, 50),
	})

	assert.Equal(t, 2, applied)

	_, err := repo.Get(context.Background(), segment.SegmentID(23.2599, 77.4126))
	assert.NoError(t, err, "segments after the failing one are still applied")
}

func TestRecentHistory_NewestFirstBounded(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		err := repo.AppendHistory(ctx, &segment.HistoryEntry{
			SegmentID:  "segment_23.2332_77.4343",
			Speed:      float64(i),
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	history, err := repo.RecentHistory(ctx, "segment_23.2332_77.4343", 10)
	require.NoError(t, err)
	require.Len(t, history, 10)

	assert.Equal(t, 14.0, history[0].Speed, "newest entry first")
	assert.Equal(t, 5.0, history[9].Speed)
}

func TestRepository_DeleteCascadesHistory(t *testing.T) {
	repo := segment.NewInMemoryRepository()
	agg := newAggregator(repo)
	ctx := context.Background()

	state, err := agg.Upsert(ctx, sampleAt(23.2332, 77.4343, 30))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, state.SegmentID))

	_, err = repo.Get(ctx, state.SegmentID)
	assert.ErrorIs(t, err, segment.ErrSegmentNotFound)

	history, err := repo.RecentHistory(ctx, state.SegmentID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

// failingRepo wraps a repository and fails upserts for one segment.
type failingRepo struct {
	segment.Repository
	failFor string
}

func (r *failingRepo) Upsert(ctx context.Context, state *segment.State) error {
	if state.SegmentID == r.failFor {
		return errors.New("connection reset")
	}
	return r.Repository.Upsert(ctx, state)
}
