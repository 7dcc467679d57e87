package dispatch

import (
	"log/slog"

	"kitmsg/internal/domain"
	"kitmsg/internal/message"
)

// Publisher is what handlers use to answer the client. Delivery failures
// are logged and not retried.
type Publisher struct {
	transport domain.Transport
	logger    *slog.Logger
}

func NewPublisher(transport domain.Transport, logger *slog.Logger) *Publisher {
	return &Publisher{transport: transport, logger: logger}
}

func (p *Publisher) Publish(name domain.MessageType, payload domain.Payload) {
	if err := p.transport.Publish(name, payload); err != nil {
		p.logger.Warn("publish failed", "type", name, "err", err)
	}
}

// Send publishes a typed outbound message under its own type.
func (p *Publisher) Send(msg message.Outbound) {
	p.Publish(msg.MessageType(), msg.Payload())
}
