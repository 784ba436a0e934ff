// Package googlemaps provides a client for the Google Directions API
// with live traffic durations.
package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
	"github.com/trafficsense/trafficsense/internal/route"
	"github.com/trafficsense/trafficsense/internal/traffic"
	"github.com/trafficsense/trafficsense/pkg/polyline"
)

const (
	// ProviderName identifies this directions provider.
	ProviderName = "googlemaps"

	// DefaultBaseURL is the Google Maps API base URL.
	DefaultBaseURL = "https://maps.googleapis.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultLanguage for addresses and instructions.
	DefaultLanguage = "en"
)

// htmlTagPattern strips markup from html_instructions.
var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Google Maps client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// Language for addresses and instructions (optional, defaults to "en").
	Language string

	// Region biases place-name resolution (optional, e.g. "in").
	Region string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Google Directions API client.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	region     string
	httpClient HTTPDoer
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new Google Maps client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		language:   language,
		region:     cfg.Region,
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Directions retrieves driving route alternatives with live traffic
// durations between two named places.
func (c *Client) Directions(ctx context.Context, origin, destination string) ([]route.Option, error) {
	query := url.Values{}
	query.Set("origin", origin)
	query.Set("destination", destination)
	query.Set("mode", "driving")
	query.Set("traffic_model", "best_guess")
	query.Set("departure_time", "now")
	query.Set("alternatives", "true")
	query.Set("language", c.language)
	if c.region != "" {
		query.Set("region", c.region)
	}
	query.Set("key", c.apiKey)

	reqURL := fmt.Sprintf("%s/maps/api/directions/json?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("origin", origin).
		Str("destination", destination).
		Msg("requesting directions from Google Maps")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		unavailable := &route.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach Google Maps",
			Err:      route.ErrProviderUnavailable,
		}
		c.recordFailure(unavailable)
		return nil, unavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := c.handleHTTPError(resp.StatusCode)
		c.recordFailure(httpErr)
		return nil, httpErr
	}

	var dirResp directionsResponse
	if err := json.Unmarshal(body, &dirResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if dirResp.Status != "OK" {
		statusErr := c.handleAPIStatus(dirResp.Status, dirResp.ErrorMessage)
		c.recordFailure(statusErr)
		return nil, statusErr
	}

	options := make([]route.Option, 0, len(dirResp.Routes))
	for i := range dirResp.Routes {
		if opt, ok := c.toOption(&dirResp.Routes[i]); ok {
			options = append(options, opt)
		}
	}

	if len(options) == 0 {
		noRoute := &route.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no usable route in Google Maps response",
			Err:      route.ErrNoRouteFound,
		}
		c.recordFailure(noRoute)
		return nil, noRoute
	}

	c.recordSuccess()
	c.logger.Debug().
		Int("route_count", len(options)).
		Msg("received directions from Google Maps")

	return options, nil
}

// toOption converts one Google route to a domain route option. Routes
// without a leg are dropped.
func (c *Client) toOption(r *directionsRoute) (route.Option, bool) {
	if len(r.Legs) == 0 {
		return route.Option{}, false
	}
	leg := &r.Legs[0]

	duration := toTextValue(leg.Duration)
	inTraffic := toTextValue(leg.DurationInTraffic)
	if leg.DurationInTraffic == nil {
		// No traffic estimate; fall back to the base duration.
		inTraffic = duration
	}

	level, _ := congestion.FromDuration(float64(inTraffic.Value), float64(duration.Value))

	steps := make([]route.Step, 0, len(leg.Steps))
	for _, s := range leg.Steps {
		steps = append(steps, route.Step{
			Instruction: stripHTML(s.HTMLInstructions),
			Distance:    toTextValue(s.Distance),
			Duration:    toTextValue(s.Duration),
			TravelMode:  s.TravelMode,
			EndLocation: traffic.Coordinate{Lat: s.EndLocation.Lat, Lng: s.EndLocation.Lng},
		})
	}

	summary := r.Summary
	if summary == "" {
		summary = "Route"
	}

	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return route.Option{
		Distance:          toTextValue(leg.Distance),
		Duration:          duration,
		DurationInTraffic: inTraffic,
		StartAddress:      leg.StartAddress,
		EndAddress:        leg.EndAddress,
		Summary:           summary,
		Warnings:          warnings,
		Steps:             steps,
		Geometry:          decodeGeometry(r.OverviewPolyline.Points),
		Congestion:        level,
		Character:         route.CharacterFor(level),
	}, true
}

// decodeGeometry decodes the overview polyline into coordinates.
func decodeGeometry(encoded string) []traffic.Coordinate {
	points := polyline.Decode(encoded)
	if len(points) == 0 {
		return nil
	}

	coords := make([]traffic.Coordinate, len(points))
	for i, p := range points {
		coords[i] = traffic.Coordinate{Lat: p.Lat, Lng: p.Lng}
	}
	return coords
}

// handleAPIStatus maps Directions API status strings to domain errors.
func (c *Client) handleAPIStatus(status, message string) error {
	if message == "" {
		message = fmt.Sprintf("Google Maps returned status %s", status)
	}

	switch status {
	case "ZERO_RESULTS", "NOT_FOUND":
		return &route.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  message,
			Err:      route.ErrNoRouteFound,
		}
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return &route.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  "Google Maps API quota exceeded",
			Err:      route.ErrRateLimited,
		}
	case "INVALID_REQUEST":
		return &route.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  message,
			Err:      route.ErrInvalidRequest,
		}
	default:
		// REQUEST_DENIED, UNKNOWN_ERROR and anything new.
		return &route.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  message,
			Err:      route.ErrProviderUnavailable,
		}
	}
}

// handleHTTPError maps transport-level statuses to domain errors.
func (c *Client) handleHTTPError(statusCode int) error {
	if statusCode == http.StatusTooManyRequests {
		return &route.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "Google Maps API rate limit exceeded",
			Err:      route.ErrRateLimited,
		}
	}
	return &route.Error{
		Provider: ProviderName,
		Code:     fmt.Sprintf("HTTP_%d", statusCode),
		Message:  fmt.Sprintf("Google Maps returned status %d", statusCode),
		Err:      route.ErrProviderUnavailable,
	}
}

// stripHTML removes markup from step instructions.
func stripHTML(s string) string {
	if s == "" {
		return "N/A"
	}
	return htmlTagPattern.ReplaceAllString(s, "")
}

func toTextValue(tv *textValue) route.TextValue {
	if tv == nil {
		return route.TextValue{}
	}
	return route.TextValue{Text: tv.Text, Value: tv.Value}
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
