// Package tomtom provides a client for the TomTom traffic flow and
// incident-details APIs, normalizing both into the canonical traffic shapes.
package tomtom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

const (
	// ProviderName identifies this traffic provider.
	ProviderName = "tomtom"

	// DefaultBaseURL is the TomTom API base URL.
	DefaultBaseURL = "https://api.tomtom.com"

	// DefaultBoundingBox covers the monitored Bhopal metropolitan area.
	DefaultBoundingBox = "77.35,23.20,77.50,23.30"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 10 * time.Second

	incidentFields = "{incidents{type,geometry{type,coordinates},properties{id,iconCategory,magnitudeOfDelay,events{description,code},startTime,endTime,from,to,length,delay,roadNumbers}}}"
)

// MonitoredPoint is a named location polled for flow-segment data.
type MonitoredPoint struct {
	Location string
	Lat      float64
	Lng      float64
}

// DefaultMonitoredPoints returns the monitored intersections and corridors
// for Bhopal. Flow-segment data is point-based, so city coverage is a
// fixed set of representative points rather than a bounding box.
func DefaultMonitoredPoints() []MonitoredPoint {
	return []MonitoredPoint{
		{"MP Nagar, Bhopal", 23.2331, 77.4346},
		{"Indrapuri, Bhopal", 23.2600, 77.4200},
		{"DB City Mall, Bhopal", 23.2594, 77.3963},
		{"Lily Square, Bhopal", 23.2400, 77.4300},
		{"Bittan Market, Bhopal", 23.2528, 77.4442},
		{"Mahu Naka, Bhopal", 23.2540, 77.4070},
		{"Shahar Bazaar, Bhopal", 23.2670, 77.4020},
		{"Ayodhya Nagar, Bhopal", 23.2720, 77.4470},
		{"New Market, Bhopal", 23.2406, 77.4023},
		{"Habibganj Railway Station, Bhopal", 23.2357, 77.4496},
		{"Bhopal Junction Railway Station", 23.2684, 77.4006},
		{"Talkatora, Bhopal", 23.2599, 77.4651},
		{"TT Nagar, Bhopal", 23.2472, 77.3995},
		{"Bairagarh, Bhopal", 23.3012, 77.3714},
		{"Kolar Road, Bhopal", 23.1850, 77.4280},
		{"Govindpura, Bhopal", 23.2595, 77.4682},
		{"Bhadbhada Road, Bhopal", 23.2050, 77.3860},
		{"Lalghati, Bhopal", 23.2907, 77.3905},
		{"Vidya Nagar, Bhopal", 23.2350, 77.4520},
		{"Bhopal Airport (Raja Bhoj)", 23.2875, 77.3375},
	}
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the TomTom client.
type ClientConfig struct {
	// APIKey is the TomTom API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to the TomTom API).
	BaseURL string

	// BoundingBox limits incident queries (optional, defaults to Bhopal).
	BoundingBox string

	// Points are the monitored flow locations (optional, defaults to
	// DefaultMonitoredPoints).
	Points []MonitoredPoint

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a TomTom traffic API client.
type Client struct {
	apiKey     string
	baseURL    string
	bbox       string
	points     []MonitoredPoint
	httpClient HTTPDoer
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new TomTom client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	bbox := cfg.BoundingBox
	if bbox == "" {
		bbox = DefaultBoundingBox
	}

	points := cfg.Points
	if len(points) == 0 {
		points = DefaultMonitoredPoints()
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
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		bbox:       bbox,
		points:     points,
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchTraffic retrieves flow-segment readings for every monitored point.
// Failures on individual points are logged and skipped; the call only
// errors when the whole batch comes back empty because of failures.
func (c *Client) FetchTraffic(ctx context.Context) ([]traffic.Sample, error) {
	samples := make([]traffic.Sample, 0, len(c.points))
	var lastErr error

	for _, point := range c.points {
		sample, err := c.fetchFlowSegment(ctx, point)
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).
				Str("location", point.Location).
				Msg("flow segment fetch failed for point")
			continue
		}
		if sample != nil {
			samples = append(samples, *sample)
		}
	}

	if len(samples) == 0 && lastErr != nil {
		c.recordFailure(lastErr)
		return nil, lastErr
	}

	c.recordSuccess()
	c.logger.Debug().
		Int("samples", len(samples)).
		Int("points", len(c.points)).
		Msg("fetched traffic flow from TomTom")

	return samples, nil
}

// FetchIncidents retrieves current incidents inside the bounding box.
// Entries without usable coordinates are dropped individually.
func (c *Client) FetchIncidents(ctx context.Context) ([]traffic.Incident, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("bbox", c.bbox)
	q.Set("fields", incidentFields)
	q.Set("language", "en-GB")
	q.Set("timeValidityFilter", "present")

	reqURL := fmt.Sprintf("%s/traffic/services/5/incidentDetails?%s", c.baseURL, q.Encode())
	body, err := c.get(ctx, reqURL)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	var resp incidentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		parseErr := &traffic.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "decoding incident response",
			Err:      traffic.ErrBadResponse,
		}
		c.recordFailure(parseErr)
		return nil, parseErr
	}

	incidents := make([]traffic.Incident, 0, len(resp.Incidents))
	for i := range resp.Incidents {
		inc := c.toIncident(&resp.Incidents[i])
		if inc == nil {
			continue
		}
		incidents = append(incidents, *inc)
	}

	c.recordSuccess()
	c.logger.Debug().
		Int("incidents", len(incidents)).
		Int("raw", len(resp.Incidents)).
		Msg("fetched incidents from TomTom")

	return incidents, nil
}

func (c *Client) fetchFlowSegment(ctx context.Context, point MonitoredPoint) (*traffic.Sample, error) {
	reqURL := fmt.Sprintf(
		"%s/traffic/services/4/flowSegmentData/absolute/10/json?point=%.4f,%.4f&unit=kmph&key=%s",
		c.baseURL, point.Lat, point.Lng, url.QueryEscape(c.apiKey),
	)

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp flowResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &traffic.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "decoding flow segment response",
			Err:      traffic.ErrBadResponse,
		}
	}
	if resp.FlowSegmentData == nil {
		return nil, nil
	}

	flow := resp.FlowSegmentData
	freeFlow := flow.FreeFlowSpeed
	if freeFlow == 0 {
		freeFlow = 60
	}

	level, ratio := congestion.FromSpeed(flow.CurrentSpeed, freeFlow)

	return &traffic.Sample{
		Location:      point.Location,
		Coordinates:   traffic.Coordinate{Lat: point.Lat, Lng: point.Lng},
		CurrentSpeed:  flow.CurrentSpeed,
		FreeFlowSpeed: freeFlow,
		Congestion:    level,
		VehicleCount:  congestion.EstimateVehicleCount(ratio),
		Source:        ProviderName,
		ObservedAt:    time.Now(),
	}, nil
}

// toIncident maps one raw incident to the canonical shape, or nil when
// the entry has no usable coordinates.
func (c *Client) toIncident(inc *incident) *traffic.Incident {
	pair, ok := firstCoordinate(inc.Geometry.Coordinates)
	if !ok {
		c.logger.Warn().
			Str("incident_id", inc.Properties.ID).
			Msg("dropping incident without coordinates")
		return nil
	}

	location := inc.Properties.From
	if location == "" {
		location = inc.Properties.To
	}
	if location == "" {
		location = "Unknown Location, Bhopal"
	}

	description := "Incident"
	if len(inc.Properties.Events) > 0 && inc.Properties.Events[0].Description != "" {
		description = inc.Properties.Events[0].Description
	}

	observedAt := time.Now()
	if inc.Properties.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, inc.Properties.StartTime); err == nil {
			observedAt = t
		}
	}

	return &traffic.Incident{
		Location:    location,
		Description: description,
		Severity:    severityFromIconCategory(inc.Properties.IconCategory),
		Coordinates: traffic.Coordinate{Lat: pair[1], Lng: pair[0]},
		Count:       1,
		ObservedAt:  observedAt,
	}
}

// severityFromIconCategory maps TomTom icon categories to the canonical
// severity scale: 6 (accident) is high; 0 (unknown) and 11 (cleared) are
// low; everything else is medium.
func severityFromIconCategory(category int) traffic.Severity {
	switch category {
	case 6:
		return traffic.SeverityHigh
	case 0, 11:
		return traffic.SeverityLow
	default:
		return traffic.SeverityMedium
	}
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &traffic.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach TomTom",
			Err:      traffic.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return body, nil
}

// handleErrorResponse maps TomTom error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	message := apiErr.DetailedError.Message
	if message == "" {
		message = fmt.Sprintf("TomTom returned status %d", statusCode)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  message,
			Err:      traffic.ErrRateLimited,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     "ACCESS_DENIED",
			Message:  "API access denied - check API key configuration",
			Err:      traffic.ErrProviderUnavailable,
		}
	case statusCode >= 500:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "TomTom is temporarily unavailable",
			Err:      traffic.ErrProviderUnavailable,
		}
	default:
		return &traffic.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      traffic.ErrProviderUnavailable,
		}
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
