// Package mappls provides a client for the Mappls (MapmyIndia) traffic
// flow and incident APIs, the secondary source in the fallback chain.
package mappls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

const (
	// ProviderName identifies this traffic provider.
	ProviderName = "mappls"

	// DefaultBaseURL is the Mappls advanced maps API base URL.
	DefaultBaseURL = "https://apis.mapmyindia.com"

	// DefaultTokenURL is the Mappls OAuth token endpoint.
	DefaultTokenURL = "https://outpost.mappls.com/api/security/oauth/token"

	// DefaultBoundingBox covers the monitored Bhopal metropolitan area.
	DefaultBoundingBox = "77.35,23.20,77.50,23.30"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 10 * time.Second

	// tokenExpirySlack refreshes the cached token this long before the
	// server-reported expiry.
	tokenExpirySlack = time.Minute
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Mappls client.
type ClientConfig struct {
	// APIKey is the REST API key passed on every data request.
	APIKey string

	// AccessToken is an explicit bearer token (optional). When set, the
	// OAuth client-credentials flow is skipped entirely.
	AccessToken string

	// ClientID and ClientSecret drive the OAuth token grant when no
	// explicit AccessToken is configured.
	ClientID     string
	ClientSecret string

	// BaseURL is the API base URL (optional, defaults to Mappls).
	BaseURL string

	// TokenURL is the OAuth token endpoint (optional).
	TokenURL string

	// BoundingBox limits queries (optional, defaults to Bhopal).
	BoundingBox string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the per-request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Mappls traffic API client. Token acquisition is lazy and
// the token is cached until shortly before expiry.
type Client struct {
	apiKey       string
	staticToken  string
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	bbox         string
	httpClient   HTTPDoer
	registry     *resilience.Registry
	logger       zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new Mappls client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	bbox := cfg.BoundingBox
	if bbox == "" {
		bbox = DefaultBoundingBox
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:       cfg.APIKey,
		staticToken:  cfg.AccessToken,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		bbox:         bbox,
		httpClient:   httpClient,
		registry:     cfg.Registry,
		logger:       cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchTraffic retrieves flow features for the bounding box and maps
// them to canonical samples.
func (c *Client) FetchTraffic(ctx context.Context) ([]traffic.Sample, error) {
	reqURL := fmt.Sprintf("%s/advancedmaps/v1/traffic?bbox=%s&key=%s",
		c.baseURL, c.bbox, url.QueryEscape(c.apiKey))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	var resp flowResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		parseErr := c.badResponse("decoding traffic flow response")
		c.recordFailure(parseErr)
		return nil, parseErr
	}

	samples := make([]traffic.Sample, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			c.logger.Warn().
				Str("road", f.Properties.RoadName).
				Msg("dropping flow feature without coordinates")
			continue
		}

		location := f.Properties.RoadName
		if location == "" {
			location = "Unknown"
		}

		count := f.Properties.EstimatedVehicles
		if count == 0 {
			count = 50
		}

		samples = append(samples, traffic.Sample{
			Location:     location,
			Coordinates:  traffic.Coordinate{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]},
			CurrentSpeed: f.Properties.Speed,
			Congestion:   levelFromTrafficLevel(f.Properties.TrafficLevel),
			VehicleCount: count,
			Source:       ProviderName,
			ObservedAt:   time.Now(),
		})
	}

	c.recordSuccess()
	c.logger.Debug().Int("samples", len(samples)).Msg("fetched traffic flow from Mappls")

	return samples, nil
}

// FetchIncidents retrieves incidents for the bounding box.
func (c *Client) FetchIncidents(ctx context.Context) ([]traffic.Incident, error) {
	reqURL := fmt.Sprintf("%s/advancedmaps/v1/traffic/incidents?bbox=%s&key=%s",
		c.baseURL, c.bbox, url.QueryEscape(c.apiKey))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	var resp incidentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		parseErr := c.badResponse("decoding incidents response")
		c.recordFailure(parseErr)
		return nil, parseErr
	}

	incidents := make([]traffic.Incident, 0, len(resp.Incidents))
	for _, item := range resp.Incidents {
		if item.Latitude == 0 && item.Longitude == 0 {
			c.logger.Warn().
				Str("location", item.Location).
				Msg("dropping incident without coordinates")
			continue
		}

		location := item.Location
		if location == "" {
			location = "Unknown"
		}

		description := item.Description
		if description == "" {
			description = "Incident"
		}

		observedAt := time.Now()
		if item.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339, item.Timestamp); err == nil {
				observedAt = t
			}
		}

		incidents = append(incidents, traffic.Incident{
			Location:    location,
			Description: description,
			Severity:    severityFromString(item.Severity),
			Coordinates: traffic.Coordinate{Lat: item.Latitude, Lng: item.Longitude},
			Count:       1,
			ObservedAt:  observedAt,
		})
	}

	c.recordSuccess()
	c.logger.Debug().Int("incidents", len(incidents)).Msg("fetched incidents from Mappls")

	return incidents, nil
}

// accessToken returns a bearer token for data requests: the configured
// static token, the cached OAuth token while still fresh, or a newly
// granted one. Returns empty (and no error) when no credentials are
// configured at all; the data endpoints may still work key-only.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.staticToken != "" {
		return c.staticToken, nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenURL+"?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &traffic.Error{
			Provider: ProviderName,
			Code:     "TOKEN_REQUEST_FAILED",
			Message:  "failed to reach Mappls token endpoint",
			Err:      traffic.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &traffic.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("TOKEN_HTTP_%d", resp.StatusCode),
			Message:  "Mappls token grant rejected",
			Err:      traffic.ErrProviderUnavailable,
		}
	}

	var grant tokenResponse
	if err := json.Unmarshal(body, &grant); err != nil || grant.AccessToken == "" {
		return "", c.badResponse("decoding token response")
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	c.token = grant.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)

	c.logger.Info().
		Int("expires_in", expiresIn).
		Msg("fetched Mappls access token")

	return c.token, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &traffic.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach Mappls",
			Err:      traffic.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode)
	}

	return body, nil
}

// handleErrorResponse maps Mappls error statuses to domain errors.
func (c *Client) handleErrorResponse(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "Mappls API rate limit exceeded",
			Err:      traffic.ErrRateLimited,
		}
	case statusCode == http.StatusNotFound:
		// The incidents endpoint 404s for keys without the traffic
		// subscription; treated as unavailability, not a caller bug.
		return &traffic.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  "Mappls endpoint not available for this key - check subscription",
			Err:      traffic.ErrProviderUnavailable,
		}
	case statusCode >= 500:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "Mappls is temporarily unavailable",
			Err:      traffic.ErrProviderUnavailable,
		}
	default:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("Mappls returned status %d", statusCode),
			Err:      traffic.ErrProviderUnavailable,
		}
	}
}

func (c *Client) badResponse(message string) error {
	return &traffic.Error{
		Provider: ProviderName,
		Code:     "DECODE_FAILED",
		Message:  message,
		Err:      traffic.ErrBadResponse,
	}
}

// levelFromTrafficLevel maps the provider's free-form traffic level
// strings onto the canonical scale, defaulting to low.
func levelFromTrafficLevel(level string) congestion.Level {
	switch strings.ToLower(level) {
	case "high", "severe", "heavy":
		return congestion.LevelHigh
	case "medium", "moderate":
		return congestion.LevelMedium
	default:
		return congestion.LevelLow
	}
}

// severityFromString normalizes the provider severity; unrecognized
// values map to unknown rather than guessing.
func severityFromString(s string) traffic.Severity {
	switch strings.ToLower(s) {
	case "low":
		return traffic.SeverityLow
	case "medium", "moderate":
		return traffic.SeverityMedium
	case "high", "severe":
		return traffic.SeverityHigh
	case "":
		return traffic.SeverityMedium
	default:
		return traffic.SeverityUnknown
	}
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(ProviderName)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(ProviderName, err)
	}
}
