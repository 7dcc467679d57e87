package domain

import "time"

// MessageType names a logical category of message. Inbound and outbound
// names live in independent namespaces.
type MessageType string

// EventID is the routing key derived from a MessageType. It is a pure
// function of the name, so separate processes agree on it.
type EventID uint64

// Payload is the untyped body of a message as it crosses the wire.
type Payload map[string]any

type InboundEvent struct {
	Type       MessageType
	ID         EventID
	Payload    Payload
	ClientID   string
	ReceivedAt time.Time
}

// OutboundEvent is a published response. Every connected client receives
// it; responses are not addressed to the requester.
type OutboundEvent struct {
	Type    MessageType
	ID      EventID
	Payload Payload
	SentAt  time.Time
}
