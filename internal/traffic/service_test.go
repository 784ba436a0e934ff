package traffic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

// stubProvider serves canned traffic and incident results.
type stubProvider struct {
	name      string
	samples   []traffic.Sample
	incidents []traffic.Incident
	err       error
	calls     int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) FetchTraffic(_ context.Context) ([]traffic.Sample, error) {
	p.calls++
	return p.samples, p.err
}

func (p *stubProvider) FetchIncidents(_ context.Context) ([]traffic.Incident, error) {
	p.calls++
	return p.incidents, p.err
}

func sampleAt(location string, speed float64) traffic.Sample {
	return traffic.Sample{
		Location:     location,
		Coordinates:  traffic.Coordinate{Lat: 23.26, Lng: 77.42},
		CurrentSpeed: speed,
		Congestion:   congestion.LevelLow,
		Source:       "test",
		ObservedAt:   time.Now(),
	}
}

func TestService_ResolveTraffic_PriorityRespected(t *testing.T) {
	primary := &stubProvider{name: "primary", samples: []traffic.Sample{sampleAt("A", 40)}}
	secondary := &stubProvider{name: "secondary", samples: []traffic.Sample{sampleAt("B", 30)}}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders: []traffic.TrafficProvider{primary, secondary},
		Logger:           zerolog.Nop(),
	})

	got := svc.ResolveTraffic(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Location)
	assert.Equal(t, 0, secondary.calls, "secondary should not be called when primary has data")
}

func TestService_ResolveTraffic_FallsBackOnEmpty(t *testing.T) {
	primary := &stubProvider{name: "primary"}
	secondary := &stubProvider{name: "secondary", samples: []traffic.Sample{sampleAt("B", 30)}}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders: []traffic.TrafficProvider{primary, secondary},
		Logger:           zerolog.Nop(),
	})

	got := svc.ResolveTraffic(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Location)
}

func TestService_ResolveTraffic_FallsBackOnError(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("boom")}
	secondary := &stubProvider{name: "secondary", samples: []traffic.Sample{sampleAt("B", 30)}}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders: []traffic.TrafficProvider{primary, secondary},
		Logger:           zerolog.Nop(),
	})

	got := svc.ResolveTraffic(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Location)
}

func TestService_ResolveTraffic_AllEmptyYieldsEmptySlice(t *testing.T) {
	primary := &stubProvider{name: "primary"}
	secondary := &stubProvider{name: "secondary", err: traffic.ErrProviderUnavailable}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders: []traffic.TrafficProvider{primary, secondary},
		Logger:           zerolog.Nop(),
	})

	got := svc.ResolveTraffic(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_ResolveIncidents_PriorityRespected(t *testing.T) {
	incident := traffic.Incident{
		Location:    "Link Road 1",
		Description: "collision",
		Severity:    traffic.SeverityHigh,
		Coordinates: traffic.Coordinate{Lat: 23.25, Lng: 77.41},
		Count:       1,
		ObservedAt:  time.Now(),
	}
	primary := &stubProvider{name: "primary"}
	secondary := &stubProvider{name: "secondary", incidents: []traffic.Incident{incident}}

	svc := traffic.NewService(traffic.ServiceConfig{
		IncidentProviders: []traffic.IncidentProvider{primary, secondary},
		Logger:            zerolog.Nop(),
	})

	got := svc.ResolveIncidents(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, traffic.SeverityHigh, got[0].Severity)
}

func TestService_Snapshot_ServesLastKnownGoodOnOutage(t *testing.T) {
	provider := &stubProvider{
		name:      "primary",
		samples:   []traffic.Sample{sampleAt("A", 40)},
		incidents: []traffic.Incident{{Location: "X", Severity: traffic.SeverityLow}},
	}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders:  []traffic.TrafficProvider{provider},
		IncidentProviders: []traffic.IncidentProvider{provider},
		Logger:            zerolog.Nop(),
	})

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Traffic, 1)
	require.Len(t, first.Accidents, 1)

	// Provider goes dark; the snapshot still carries the previous data.
	provider.samples = nil
	provider.incidents = nil
	provider.err = traffic.ErrProviderUnavailable

	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Traffic, 1)
	assert.Equal(t, "A", second.Traffic[0].Location)
	require.Len(t, second.Accidents, 1)
}

func TestService_Snapshot_FreshDataReplacesLastKnownGood(t *testing.T) {
	provider := &stubProvider{name: "primary", samples: []traffic.Sample{sampleAt("A", 40)}}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders: []traffic.TrafficProvider{provider},
		Logger:           zerolog.Nop(),
	})

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	provider.samples = []traffic.Sample{sampleAt("B", 25)}
	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Traffic, 1)
	assert.Equal(t, "B", snap.Traffic[0].Location)

	lastGood := svc.LastKnownGood()
	require.Len(t, lastGood.Traffic, 1)
	assert.Equal(t, "B", lastGood.Traffic[0].Location)
}

func TestService_Snapshot_NoDataAnywhere(t *testing.T) {
	provider := &stubProvider{name: "primary", err: traffic.ErrProviderUnavailable}

	svc := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders:  []traffic.TrafficProvider{provider},
		IncidentProviders: []traffic.IncidentProvider{provider},
		Logger:            zerolog.Nop(),
	})

	snap, err := svc.Snapshot(context.Background())
	require.ErrorIs(t, err, traffic.ErrNoData)
	assert.Nil(t, snap)
}
