package route_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/route"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

// stubProvider returns canned route options or an error.
type stubProvider struct {
	options []route.Option
	err     error
	calls   int
}

func (p *stubProvider) Directions(_ context.Context, _, _ string) ([]route.Option, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	// Return a copy so correlation mutations don't leak into the stub.
	out := make([]route.Option, len(p.options))
	copy(out, p.options)
	return out, nil
}

func (p *stubProvider) Name() string { return "stub" }

// stubIncidents returns canned incidents.
type stubIncidents struct {
	incidents []traffic.Incident
}

func (s *stubIncidents) ResolveIncidents(_ context.Context) []traffic.Incident {
	return s.incidents
}

// The live incident resolver must keep satisfying the source contract.
var _ route.IncidentSource = (*traffic.Service)(nil)

func testOption(stepLat, stepLng float64) route.Option {
	return route.Option{
		Distance:          route.TextValue{Text: "3.4 km", Value: 3400},
		Duration:          route.TextValue{Text: "10 mins", Value: 600},
		DurationInTraffic: route.TextValue{Text: "12 mins", Value: 720},
		Summary:           "Link Road 1",
		Congestion:        congestion.LevelMedium,
		Character:         route.CharacterFor(congestion.LevelMedium),
		Steps: []route.Step{
			{EndLocation: traffic.Coordinate{Lat: stepLat, Lng: stepLng}},
		},
	}
}

func TestService_Plan_ValidatesRequest(t *testing.T) {
	svc := route.NewService(route.ServiceConfig{
		Provider: &stubProvider{},
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Plan(context.Background(), route.Request{Origin: "  ", Destination: "Indrapuri"})
	assert.ErrorIs(t, err, route.ErrInvalidRequest)

	_, err = svc.Plan(context.Background(), route.Request{Origin: "MP Nagar", Destination: ""})
	assert.ErrorIs(t, err, route.ErrInvalidRequest)
}

func TestService_Plan_CorrelatesIncidents(t *testing.T) {
	provider := &stubProvider{
		options: []route.Option{
			testOption(23.2601, 77.4201),
			testOption(23.3012, 77.3714),
		},
	}
	incidents := &stubIncidents{
		incidents: []traffic.Incident{
			{Coordinates: traffic.Coordinate{Lat: 23.2602, Lng: 77.4202}},
		},
	}

	svc := route.NewService(route.ServiceConfig{
		Provider:  provider,
		Incidents: incidents,
		Logger:    zerolog.Nop(),
	})

	result, err := svc.Plan(context.Background(), route.Request{
		Origin:      "MP Nagar",
		Destination: "Indrapuri",
	})
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)

	assert.Equal(t, 1, result.Routes[0].AccidentsInWay)
	assert.Equal(t, 0, result.Routes[1].AccidentsInWay)
	assert.Equal(t, 1, result.TotalAccidentsInWay)
	assert.Equal(t, 1, result.AccidentCount)
	assert.Equal(t, "MP Nagar", result.Origin)
	assert.Equal(t, "Indrapuri", result.Destination)
}

func TestService_Plan_NoIncidentDataYieldsZeroAccidents(t *testing.T) {
	provider := &stubProvider{options: []route.Option{testOption(23.2601, 77.4201)}}
	incidents := &stubIncidents{}

	svc := route.NewService(route.ServiceConfig{
		Provider:  provider,
		Incidents: incidents,
		Logger:    zerolog.Nop(),
	})

	result, err := svc.Plan(context.Background(), route.Request{
		Origin:      "MP Nagar",
		Destination: "Indrapuri",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Routes[0].AccidentsInWay)
	assert.Equal(t, 0, result.AccidentCount)
}

func TestService_Plan_CachesResults(t *testing.T) {
	provider := &stubProvider{options: []route.Option{testOption(23.2601, 77.4201)}}

	svc := route.NewService(route.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	req := route.Request{Origin: "MP Nagar", Destination: "Indrapuri"}

	_, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Plan(context.Background(), req)
	require.NoError(t, err)

	// Case-folded key: same entry.
	_, err = svc.Plan(context.Background(), route.Request{Origin: "mp nagar", Destination: "indrapuri"})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
}

func TestService_Plan_ServesStaleOnProviderError(t *testing.T) {
	provider := &stubProvider{options: []route.Option{testOption(23.2601, 77.4201)}}

	svc := route.NewService(route.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 1, // effectively instant expiry
	})

	req := route.Request{Origin: "MP Nagar", Destination: "Indrapuri"}

	first, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)

	provider.err = errors.New("upstream down")

	second, err := svc.Plan(context.Background(), req)
	require.NoError(t, err, "stale result served on provider error")
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
}

func TestService_Plan_ProviderErrorNoCache(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream down")}

	svc := route.NewService(route.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Plan(context.Background(), route.Request{
		Origin:      "MP Nagar",
		Destination: "Indrapuri",
	})
	assert.Error(t, err)
}
