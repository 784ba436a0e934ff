package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments for the ingestion and
// broadcast pipeline.
type PipelineMetrics struct {
	pollCycles      metric.Int64Counter
	pollFailures    metric.Int64Counter
	pollDuration    metric.Float64Histogram
	samplesIngested metric.Int64Counter
	broadcasts      metric.Int64Counter
	subscribers     metric.Int64UpDownCounter
}

// NewPipelineMetrics registers the pipeline instruments on the meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	pollCycles, err := meter.Int64Counter("trafficsense.poll.cycles",
		metric.WithDescription("Completed poll cycles"))
	if err != nil {
		return nil, err
	}

	pollFailures, err := meter.Int64Counter("trafficsense.poll.failures",
		metric.WithDescription("Poll cycles that failed to fetch traffic"))
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram("trafficsense.poll.duration",
		metric.WithDescription("Poll cycle duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	samplesIngested, err := meter.Int64Counter("trafficsense.samples.ingested",
		metric.WithDescription("Traffic samples applied to segment state"))
	if err != nil {
		return nil, err
	}

	broadcasts, err := meter.Int64Counter("trafficsense.hub.broadcasts",
		metric.WithDescription("Messages broadcast to subscribers"))
	if err != nil {
		return nil, err
	}

	subscribers, err := meter.Int64UpDownCounter("trafficsense.hub.subscribers",
		metric.WithDescription("Currently connected subscribers"))
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		pollCycles:      pollCycles,
		pollFailures:    pollFailures,
		pollDuration:    pollDuration,
		samplesIngested: samplesIngested,
		broadcasts:      broadcasts,
		subscribers:     subscribers,
	}, nil
}

// CycleCompleted records one poll cycle. Implements the poller's
// observer interface.
func (m *PipelineMetrics) CycleCompleted(ctx context.Context, samples, incidents, applied int, duration time.Duration, err error) {
	if err != nil {
		m.pollFailures.Add(ctx, 1)
		return
	}

	m.pollCycles.Add(ctx, 1)
	m.pollDuration.Record(ctx, duration.Seconds())
	m.samplesIngested.Add(ctx, int64(applied))
}

// BroadcastSent records one broadcast on a channel.
func (m *PipelineMetrics) BroadcastSent(ctx context.Context, channel string) {
	m.broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// SubscriberConnected adjusts the subscriber gauge.
func (m *PipelineMetrics) SubscriberConnected(ctx context.Context) {
	m.subscribers.Add(ctx, 1)
}

// SubscriberDisconnected adjusts the subscriber gauge.
func (m *PipelineMetrics) SubscriberDisconnected(ctx context.Context) {
	m.subscribers.Add(ctx, -1)
}
