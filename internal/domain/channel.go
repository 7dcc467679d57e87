package domain

import "context"

// Channel is a client-facing surface (websocket, NATS) feeding the bus.
type Channel interface {
	Name() string
	// Start blocks until ctx is cancelled or the channel fails.
	Start(ctx context.Context) error
}

// Enqueuer accepts inbound events from a channel for serialized dispatch.
type Enqueuer interface {
	Enqueue(ev InboundEvent) error
}
