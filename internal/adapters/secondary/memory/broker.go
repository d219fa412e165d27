package memory

import (
	"context"
	"sync"

	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// Broker is an in-process pub/sub medium. It backs single-instance
// deployments and tests; the dispatcher cannot tell it apart from the
// Redis-backed broker.
type Broker struct {
	mu       sync.RWMutex
	handlers map[string][]func(payload []byte)
	closed   bool
}

var _ ports.Broker = (*Broker)(nil)

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[string][]func(payload []byte)),
	}
}

// Publish delivers the payload synchronously to every subscriber of the
// channel, the publisher's own instance included. Origin filtering is the
// envelope's job, not the broker's.
func (b *Broker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return apperrors.ErrBrokerClosed
	}
	handlers := make([]func([]byte), len(b.handlers[channel]))
	copy(handlers, b.handlers[channel])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
	return nil
}

// Subscribe registers a handler for the channel.
func (b *Broker) Subscribe(_ context.Context, channel string, handler func(payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.ErrBrokerClosed
	}
	b.handlers[channel] = append(b.handlers[channel], handler)
	return nil
}

// Close drops all subscriptions and rejects further use.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.handlers = make(map[string][]func(payload []byte))
	return nil
}
