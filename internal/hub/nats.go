package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultNATSSubjectPrefix prefixes broadcast channel names to form
// NATS subjects (e.g. trafficsense.trafficUpdate).
const DefaultNATSSubjectPrefix = "trafficsense"

// NATSTransportConfig holds configuration for the NATS transport.
type NATSTransportConfig struct {
	// URL of the NATS server (required).
	URL string

	// SubjectPrefix for published subjects (optional).
	SubjectPrefix string

	// Logger for transport operations.
	Logger zerolog.Logger
}

// NATSTransport publishes broadcast messages to NATS subjects, one
// subject per channel.
type NATSTransport struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSTransport connects to NATS and returns a transport.
func NewNATSTransport(cfg NATSTransportConfig) (*NATSTransport, error) {
	logger := cfg.Logger

	conn, err := nats.Connect(cfg.URL,
		nats.Name("trafficsense-hub"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultNATSSubjectPrefix
	}

	return &NATSTransport{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Publish delivers the message payload on the channel's subject.
func (t *NATSTransport) Publish(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	subject := t.prefix + "." + msg.Channel
	if err := t.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Name returns the transport identifier.
func (t *NATSTransport) Name() string {
	return "nats"
}

// Close drains and closes the NATS connection.
func (t *NATSTransport) Close() {
	if t.conn != nil {
		_ = t.conn.Drain()
		t.conn.Close()
	}
}

// Ensure NATSTransport implements Transport interface.
var _ Transport = (*NATSTransport)(nil)
