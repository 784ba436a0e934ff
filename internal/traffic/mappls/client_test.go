package mappls_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/traffic"
	"github.com/trafficsense/trafficsense/internal/traffic/mappls"
)

func TestClient_FetchTraffic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advancedmaps/v1/traffic", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "Bearer static-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [
				{
					"geometry": {"type": "Point", "coordinates": [77.4346, 23.2331]},
					"properties": {"roadName": "Hoshangabad Road", "trafficLevel": "heavy", "speed": 18, "estimatedVehicles": 120}
				},
				{
					"geometry": {"type": "Point", "coordinates": []},
					"properties": {"roadName": "No Coords Road", "speed": 30}
				}
			]
		}`))
	}))
	defer server.Close()

	client := mappls.NewClient(mappls.ClientConfig{
		APIKey:      "test-key",
		AccessToken: "static-token",
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		Logger:      zerolog.Nop(),
	})

	samples, err := client.FetchTraffic(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, "Hoshangabad Road", s.Location)
	assert.Equal(t, 18.0, s.CurrentSpeed)
	assert.Equal(t, congestion.LevelHigh, s.Congestion)
	assert.Equal(t, 120, s.VehicleCount)
	assert.Equal(t, 23.2331, s.Coordinates.Lat)
	assert.Equal(t, 77.4346, s.Coordinates.Lng)
	assert.Equal(t, mappls.ProviderName, s.Source)
}

func TestClient_FetchIncidents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advancedmaps/v1/traffic/incidents", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"incidents": [
				{"location": "Link Road 2", "description": "Vehicle breakdown", "severity": "severe", "latitude": 23.25, "longitude": 77.41},
				{"location": "zeroed", "latitude": 0, "longitude": 0},
				{"latitude": 23.26, "longitude": 77.40, "severity": "alien"}
			]
		}`))
	}))
	defer server.Close()

	client := mappls.NewClient(mappls.ClientConfig{
		APIKey:      "test-key",
		AccessToken: "static-token",
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		Logger:      zerolog.Nop(),
	})

	incidents, err := client.FetchIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	assert.Equal(t, "Link Road 2", incidents[0].Location)
	assert.Equal(t, traffic.SeverityHigh, incidents[0].Severity)
	assert.Equal(t, "Vehicle breakdown", incidents[0].Description)

	assert.Equal(t, "Unknown", incidents[1].Location)
	assert.Equal(t, "Incident", incidents[1].Description)
	assert.Equal(t, traffic.SeverityUnknown, incidents[1].Severity)
}

func TestClient_TokenGrantAndCaching(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/security/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "granted-token", "expires_in": 3600}`))
	})
	mux.HandleFunc("/advancedmaps/v1/traffic", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer granted-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features": []}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := mappls.NewClient(mappls.ClientConfig{
		APIKey:       "test-key",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/api/security/oauth/token",
		HTTPClient:   server.Client(),
		Logger:       zerolog.Nop(),
	})

	_, err := client.FetchTraffic(context.Background())
	require.NoError(t, err)
	_, err = client.FetchTraffic(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, tokenCalls, "token should be granted once and cached")
}

func TestClient_FetchIncidents_SubscriptionMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := mappls.NewClient(mappls.ClientConfig{
		APIKey:      "test-key",
		AccessToken: "static-token",
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		Logger:      zerolog.Nop(),
	})

	_, err := client.FetchIncidents(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, traffic.ErrProviderUnavailable)
}
