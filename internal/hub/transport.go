package hub

import (
	"context"
	"sync"
)

// Transport delivers broadcast messages to an external fan-out system
// in addition to in-process subscribers.
type Transport interface {
	// Publish delivers one broadcast message.
	Publish(ctx context.Context, msg Message) error

	// Name returns the transport identifier for logging.
	Name() string
}

// MemoryTransport records published messages. This is intended for
// testing.
type MemoryTransport struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryTransport creates a new in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Publish records the message.
func (t *MemoryTransport) Publish(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
	return nil
}

// Name returns the transport identifier.
func (t *MemoryTransport) Name() string {
	return "memory"
}

// Messages returns a copy of the recorded messages.
func (t *MemoryTransport) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Ensure MemoryTransport implements Transport interface.
var _ Transport = (*MemoryTransport)(nil)
