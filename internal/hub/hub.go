// Package hub fans live traffic updates out to connected subscribers
// and serves their on-demand requests.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/route"
	"github.com/trafficsense/trafficsense/internal/segment"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

// Broadcast channels.
const (
	ChannelTraffic       = "trafficUpdate"
	ChannelVehicleSpeeds = "vehicleSpeedsUpdate"
	ChannelRoute         = "routeUpdate"
	ChannelError         = "error"
)

// Subscriber request events.
const (
	RequestVehicleSpeeds = "requestVehicleSpeeds"
	RequestRouteUpdate   = "requestRouteUpdate"
)

const (
	// DefaultSnapshotInterval is the cadence of traffic broadcasts.
	DefaultSnapshotInterval = 30 * time.Second

	// DefaultRouteInterval is the cadence of default-route broadcasts.
	DefaultRouteInterval = time.Minute

	// ConnectSegmentLimit caps the segment backlog sent on connect.
	ConnectSegmentLimit = 50

	// subscriberBuffer is the per-subscriber message queue depth.
	subscriberBuffer = 64
)

// Message is one payload delivered on a named channel.
type Message struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// ErrorPayload is the payload of error messages.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Subscriber is one connected consumer of hub messages.
type Subscriber struct {
	ID uuid.UUID
	ch chan Message
}

// Messages returns the subscriber's delivery channel.
func (s *Subscriber) Messages() <-chan Message {
	return s.ch
}

// SnapshotSource supplies the merged traffic picture. Satisfied by
// traffic.Service.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*traffic.Snapshot, error)
}

// SegmentLister supplies recent segment states. Satisfied by
// segment.Repository implementations.
type SegmentLister interface {
	List(ctx context.Context, opts segment.ListOptions) ([]*segment.State, error)
}

// RoutePlanner computes traffic-aware routes. Satisfied by
// route.Service.
type RoutePlanner interface {
	Plan(ctx context.Context, req route.Request) (*route.Result, error)
}

// Metrics receives hub activity events. Satisfied by
// telemetry.PipelineMetrics.
type Metrics interface {
	BroadcastSent(ctx context.Context, channel string)
	SubscriberConnected(ctx context.Context)
	SubscriberDisconnected(ctx context.Context)
}

// Config holds configuration for the hub.
type Config struct {
	// Traffic supplies snapshots for broadcasts (required).
	Traffic SnapshotSource

	// Segments supplies segment states for broadcasts (required).
	Segments SegmentLister

	// Routes computes the periodic and on-demand route updates
	// (optional; without it route broadcasts are disabled).
	Routes RoutePlanner

	// DefaultRoute is broadcast periodically on the route channel.
	// Defaults to the MP Nagar - Indrapuri corridor.
	DefaultRoute route.Request

	// Transports additionally receive every broadcast (optional).
	Transports []Transport

	// SnapshotInterval between traffic broadcasts (optional).
	SnapshotInterval time.Duration

	// RouteInterval between default-route broadcasts (optional).
	RouteInterval time.Duration

	// Metrics receives hub activity events (optional).
	Metrics Metrics

	// Logger for hub operations.
	Logger zerolog.Logger
}

// Hub maintains the subscriber registry and drives periodic
// broadcasts. Delivery is best-effort: a subscriber that stops
// draining its queue loses messages rather than stalling the rest.
type Hub struct {
	traffic          SnapshotSource
	segments         SegmentLister
	routes           RoutePlanner
	defaultRoute     route.Request
	transports       []Transport
	snapshotInterval time.Duration
	routeInterval    time.Duration
	metrics          Metrics
	logger           zerolog.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
}

// New creates a new hub.
func New(cfg Config) *Hub {
	snapshotInterval := cfg.SnapshotInterval
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}

	routeInterval := cfg.RouteInterval
	if routeInterval <= 0 {
		routeInterval = DefaultRouteInterval
	}

	defaultRoute := cfg.DefaultRoute
	if defaultRoute.Origin == "" || defaultRoute.Destination == "" {
		defaultRoute = route.Request{
			Origin:      "MP Nagar, Bhopal",
			Destination: "Indrapuri, Bhopal",
		}
	}

	return &Hub{
		traffic:          cfg.Traffic,
		segments:         cfg.Segments,
		routes:           cfg.Routes,
		defaultRoute:     defaultRoute,
		transports:       cfg.Transports,
		snapshotInterval: snapshotInterval,
		routeInterval:    routeInterval,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		subscribers:      make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a new subscriber and seeds it with the current
// traffic snapshot and the most recent segment states.
func (h *Hub) Subscribe(ctx context.Context) *Subscriber {
	sub := &Subscriber{
		ID: uuid.New(),
		ch: make(chan Message, subscriberBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SubscriberConnected(ctx)
	}

	h.logger.Info().
		Str("subscriber_id", sub.ID.String()).
		Int("subscribers", h.SubscriberCount()).
		Msg("subscriber connected")

	if snapshot, err := h.traffic.Snapshot(ctx); err == nil {
		h.send(sub, Message{Channel: ChannelTraffic, Payload: snapshot})
	} else {
		h.logger.Warn().Err(err).Msg("no snapshot available for new subscriber")
	}

	if states, err := h.segments.List(ctx, segment.ListOptions{Limit: ConnectSegmentLimit}); err == nil {
		h.send(sub, Message{Channel: ChannelVehicleSpeeds, Payload: states})
	} else {
		h.logger.Warn().Err(err).Msg("no segment backlog available for new subscriber")
	}

	return sub
}

// Unsubscribe removes a subscriber. The message channel is left open
// so in-flight broadcasts cannot panic; consumers stop reading via
// their own context.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	_, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.SubscriberDisconnected(context.Background())
	}

	h.logger.Info().
		Str("subscriber_id", id.String()).
		Int("subscribers", h.SubscriberCount()).
		Msg("subscriber disconnected")
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Run drives the periodic broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().
		Dur("snapshot_interval", h.snapshotInterval).
		Dur("route_interval", h.routeInterval).
		Msg("broadcast hub started")

	snapshotTicker := time.NewTicker(h.snapshotInterval)
	defer snapshotTicker.Stop()

	routeTicker := time.NewTicker(h.routeInterval)
	defer routeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("broadcast hub stopped")
			return
		case <-snapshotTicker.C:
			h.BroadcastSnapshot(ctx)
		case <-routeTicker.C:
			h.BroadcastDefaultRoute(ctx)
		}
	}
}

// BroadcastSnapshot pushes the current traffic picture and segment
// states to every subscriber. Fetch failures skip the broadcast.
func (h *Hub) BroadcastSnapshot(ctx context.Context) {
	snapshot, err := h.traffic.Snapshot(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("snapshot broadcast skipped")
	} else {
		h.broadcast(ctx, Message{Channel: ChannelTraffic, Payload: snapshot})
	}

	states, err := h.segments.List(ctx, segment.ListOptions{Limit: ConnectSegmentLimit})
	if err != nil {
		h.logger.Error().Err(err).Msg("segment broadcast skipped")
		return
	}
	h.broadcast(ctx, Message{Channel: ChannelVehicleSpeeds, Payload: states})
}

// BroadcastDefaultRoute pushes the default corridor's route update to
// every subscriber.
func (h *Hub) BroadcastDefaultRoute(ctx context.Context) {
	if h.routes == nil {
		return
	}

	result, err := h.routes.Plan(ctx, h.defaultRoute)
	if err != nil {
		h.logger.Error().Err(err).
			Str("origin", h.defaultRoute.Origin).
			Str("destination", h.defaultRoute.Destination).
			Msg("route broadcast skipped")
		return
	}

	h.broadcast(ctx, Message{Channel: ChannelRoute, Payload: result})
}

// HandleRequest serves one subscriber request. Failures are reported
// only to the requester on the error channel.
func (h *Hub) HandleRequest(ctx context.Context, id uuid.UUID, event string, payload json.RawMessage) {
	sub := h.subscriber(id)
	if sub == nil {
		h.logger.Warn().
			Str("subscriber_id", id.String()).
			Str("event", event).
			Msg("request from unknown subscriber")
		return
	}

	switch event {
	case RequestVehicleSpeeds:
		states, err := h.segments.List(ctx, segment.ListOptions{Limit: ConnectSegmentLimit})
		if err != nil {
			h.sendError(sub, "vehicle speeds unavailable")
			return
		}
		h.send(sub, Message{Channel: ChannelVehicleSpeeds, Payload: states})

	case RequestRouteUpdate:
		h.handleRouteRequest(ctx, sub, payload)

	default:
		h.sendError(sub, "unknown request: "+event)
	}
}

func (h *Hub) handleRouteRequest(ctx context.Context, sub *Subscriber, payload json.RawMessage) {
	if h.routes == nil {
		h.sendError(sub, "route updates not available")
		return
	}

	var req route.Request
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(sub, "invalid route request payload")
			return
		}
	}

	result, err := h.routes.Plan(ctx, req)
	if err != nil {
		if errors.Is(err, route.ErrInvalidRequest) {
			h.sendError(sub, "origin and destination are required")
			return
		}
		h.sendError(sub, "route computation failed")
		return
	}

	h.send(sub, Message{Channel: ChannelRoute, Payload: result})
}

func (h *Hub) subscriber(id uuid.UUID) *Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subscribers[id]
}

// broadcast delivers a message to all subscribers and transports.
func (h *Hub) broadcast(ctx context.Context, msg Message) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.send(sub, msg)
	}

	if h.metrics != nil {
		h.metrics.BroadcastSent(ctx, msg.Channel)
	}

	for _, t := range h.transports {
		if err := t.Publish(ctx, msg); err != nil {
			h.logger.Error().Err(err).
				Str("transport", t.Name()).
				Str("channel", msg.Channel).
				Msg("transport publish failed")
		}
	}
}

// send delivers without blocking; a full subscriber queue drops the
// message.
func (h *Hub) send(sub *Subscriber, msg Message) {
	select {
	case sub.ch <- msg:
	default:
		h.logger.Warn().
			Str("subscriber_id", sub.ID.String()).
			Str("channel", msg.Channel).
			Msg("subscriber queue full, dropping message")
	}
}

func (h *Hub) sendError(sub *Subscriber, message string) {
	h.send(sub, Message{Channel: ChannelError, Payload: ErrorPayload{Message: message}})
}
