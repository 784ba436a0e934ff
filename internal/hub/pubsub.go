package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubTransportConfig holds configuration for the Pub/Sub transport.
type PubSubTransportConfig struct {
	// ProjectID of the GCP project (required).
	ProjectID string

	// Topic receiving all broadcast messages (required). The channel
	// travels as a message attribute.
	Topic string

	// Logger for transport operations.
	Logger zerolog.Logger
}

// PubSubTransport publishes broadcast messages to a Pub/Sub topic with
// the channel as a message attribute.
type PubSubTransport struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NewPubSubTransport creates a Pub/Sub client and returns a transport.
func NewPubSubTransport(ctx context.Context, cfg PubSubTransportConfig) (*PubSubTransport, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubTransport{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    cfg.Logger,
	}, nil
}

// Publish delivers the message to the topic and waits for the server
// acknowledgement.
func (t *PubSubTransport) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"channel": msg.Channel},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing to pubsub: %w", err)
	}
	return nil
}

// Name returns the transport identifier.
func (t *PubSubTransport) Name() string {
	return "pubsub"
}

// Close stops the publisher and closes the client.
func (t *PubSubTransport) Close() error {
	t.publisher.Stop()
	return t.client.Close()
}

// Ensure PubSubTransport implements Transport interface.
var _ Transport = (*PubSubTransport)(nil)
