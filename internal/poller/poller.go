// Package poller drives the periodic ingestion cycle: fetch the
// current traffic picture and fold it into segment state.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/traffic"
)

// DefaultInterval is the default polling cadence.
const DefaultInterval = 30 * time.Second

// SnapshotSource supplies the merged traffic picture. Satisfied by
// traffic.Service.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*traffic.Snapshot, error)
}

// Aggregator folds samples into segment state. Satisfied by
// segment.Aggregator.
type Aggregator interface {
	UpsertAll(ctx context.Context, samples []traffic.Sample) int
}

// CycleObserver is notified after each completed poll cycle.
// Optional; used for metrics.
type CycleObserver interface {
	CycleCompleted(ctx context.Context, samples, incidents, applied int, duration time.Duration, err error)
}

// Config holds configuration for the poller.
type Config struct {
	// Source supplies traffic snapshots (required).
	Source SnapshotSource

	// Aggregator receives the fetched samples (required).
	Aggregator Aggregator

	// Interval between poll cycles (optional, defaults to 30s).
	Interval time.Duration

	// CycleTimeout bounds one full cycle (optional, defaults to the
	// interval).
	CycleTimeout time.Duration

	// Observer is notified after each cycle (optional).
	Observer CycleObserver

	// Logger for poller operations.
	Logger zerolog.Logger
}

// Poller periodically fetches traffic data and updates segment state.
// At most one cycle runs at a time; a cycle still in flight when the
// ticker fires again is not overlapped.
type Poller struct {
	source       SnapshotSource
	aggregator   Aggregator
	interval     time.Duration
	cycleTimeout time.Duration
	observer     CycleObserver
	logger       zerolog.Logger

	inFlight atomic.Bool
	cycles   atomic.Int64
}

// New creates a new poller.
func New(cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	cycleTimeout := cfg.CycleTimeout
	if cycleTimeout <= 0 {
		cycleTimeout = interval
	}

	return &Poller{
		source:       cfg.Source,
		aggregator:   cfg.Aggregator,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}
}

// Run polls until the context is cancelled. The first cycle runs
// immediately. Cycle failures are logged and never escape; Run only
// returns on cancellation.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info().
		Dur("interval", p.interval).
		Msg("traffic poller started")

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Int64("cycles", p.cycles.Load()).
				Msg("traffic poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Poll runs a single poll cycle. Exposed for ops-triggered refreshes.
func (p *Poller) Poll(ctx context.Context) {
	p.poll(ctx)
}

// Cycles returns the number of completed poll cycles.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

func (p *Poller) poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn().Msg("previous poll cycle still running, skipping")
		return
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	cycleCtx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()

	snapshot, err := p.source.Snapshot(cycleCtx)
	if err != nil {
		p.logger.Error().Err(err).Msg("poll cycle failed to fetch traffic")
		p.observe(ctx, 0, 0, 0, time.Since(start), err)
		return
	}

	applied := p.aggregator.UpsertAll(cycleCtx, snapshot.Traffic)
	duration := time.Since(start)
	p.cycles.Add(1)

	p.logger.Info().
		Int("samples", len(snapshot.Traffic)).
		Int("incidents", len(snapshot.Accidents)).
		Int("applied", applied).
		Dur("duration", duration).
		Msg("poll cycle completed")

	p.observe(ctx, len(snapshot.Traffic), len(snapshot.Accidents), applied, duration, nil)
}

func (p *Poller) observe(ctx context.Context, samples, incidents, applied int, duration time.Duration, err error) {
	if p.observer != nil {
		p.observer.CycleCompleted(ctx, samples, incidents, applied, duration, err)
	}
}
