package domain

import "context"

// Handler consumes one inbound event. A returned error is reported at the
// dispatch boundary and never reaches the transport.
type Handler func(ctx context.Context, ev InboundEvent) error

// Subscription is a live binding of a message type to a handler.
type Subscription interface {
	Owner() string
	Type() MessageType
	Revoke() error
}

// Transport is the publish/subscribe contract between the routing core and
// the event bus that carries messages to and from the client.
type Transport interface {
	// RegisterEventType records the alias for name and returns its stable identifier.
	RegisterEventType(name MessageType) EventID
	// DeclareOutbound allow-lists name for publication toward the client.
	DeclareOutbound(name MessageType)
	// Observe binds h to inbound events of type name.
	Observe(owner string, name MessageType, h Handler) (Subscription, error)
	// Publish emits payload toward the client under name.
	Publish(name MessageType, payload Payload) error
}
