package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"kitmsg/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS relay.
type NATSConfig struct {
	URL      string
	Prefix   string // subject prefix (default: kitmsg)
	Token    string
	Inbound  []domain.MessageType
	Queue    domain.Enqueuer
	Outbound OutboundSource
	Logger   *slog.Logger
}

// NATSRelay lets other processes talk to the bus by message name:
// <prefix>.in.<name> feeds the inbound queue and every published event is
// mirrored to <prefix>.out.<name>.
type NATSRelay struct {
	cfg  NATSConfig
	conn *nats.Conn
}

func NewNATSRelay(cfg NATSConfig) *NATSRelay {
	if cfg.Prefix == "" {
		cfg.Prefix = "kitmsg"
	}
	return &NATSRelay{cfg: cfg}
}

func (r *NATSRelay) Name() string { return "nats" }

// InboundSubject is the subject a remote publisher uses for name.
func InboundSubject(prefix string, name domain.MessageType) string {
	return prefix + ".in." + string(name)
}

// OutboundSubject is the subject outbound events of type name appear on.
func OutboundSubject(prefix string, name domain.MessageType) string {
	return prefix + ".out." + string(name)
}

// Start connects, relays until ctx is cancelled, then drains the connection.
func (r *NATSRelay) Start(ctx context.Context) error {
	opts := []nats.Option{nats.Name("kitmsg-relay")}
	if r.cfg.Token != "" {
		opts = append(opts, nats.Token(r.cfg.Token))
	}
	nc, err := nats.Connect(r.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", r.cfg.URL, err)
	}
	r.conn = nc

	for _, name := range r.cfg.Inbound {
		subject := InboundSubject(r.cfg.Prefix, name)
		if _, err := nc.Subscribe(subject, r.inboundHandler(name)); err != nil {
			nc.Close()
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
	}

	r.cfg.Outbound.OnOutbound(r.Name(), r.mirror)
	defer r.cfg.Outbound.RemoveOutbound(r.Name())

	r.cfg.Logger.Info("nats relay started", "url", r.cfg.URL, "prefix", r.cfg.Prefix)
	<-ctx.Done()

	if err := nc.Drain(); err != nil {
		r.cfg.Logger.Warn("nats drain failed", "err", err)
	}
	return nil
}

func (r *NATSRelay) inboundHandler(name domain.MessageType) nats.MsgHandler {
	return func(m *nats.Msg) {
		ev, err := decodeNATSMessage(name, m.Subject, m.Data)
		if err != nil {
			r.cfg.Logger.Warn("invalid nats payload", "subject", m.Subject, "err", err)
			return
		}
		if err := r.cfg.Queue.Enqueue(ev); err != nil {
			r.cfg.Logger.Warn("inbound event not queued", "subject", m.Subject, "err", err)
		}
	}
}

func decodeNATSMessage(name domain.MessageType, subject string, data []byte) (domain.InboundEvent, error) {
	ev := domain.InboundEvent{Type: name, ClientID: "nats:" + subject}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ev, nil
	}
	if err := domain.DecodeJSON(data, &ev.Payload); err != nil {
		return ev, err
	}
	domain.NormalizePayload(ev.Payload)
	return ev, nil
}

func (r *NATSRelay) mirror(ev domain.OutboundEvent) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		r.cfg.Logger.Warn("cannot encode outbound event", "type", ev.Type, "err", err)
		return
	}
	if err := r.conn.Publish(OutboundSubject(r.cfg.Prefix, ev.Type), data); err != nil {
		r.cfg.Logger.Warn("nats publish failed", "type", ev.Type, "err", err)
	}
}

var _ domain.Channel = (*NATSRelay)(nil)
