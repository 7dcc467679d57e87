package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"kitmsg/internal/domain"
	"kitmsg/internal/metrics"
	"kitmsg/internal/registry"
)

// Direction tags a history record.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Record is one event kept in the replay history.
type Record struct {
	Direction Direction          `json:"direction"`
	Type      domain.MessageType `json:"event_type"`
	ID        domain.EventID     `json:"event_id"`
	Payload   domain.Payload     `json:"payload,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Bus is the in-process event bus. Inbound events are routed by EventID to
// observers; outbound events are checked against the declared allow-list
// and fanned out to sinks.
type Bus struct {
	registry *registry.Registry
	metrics  metrics.Recorder
	logger   *slog.Logger

	mu         sync.RWMutex
	observers  map[domain.EventID][]*observer
	declared   map[domain.MessageType]struct{}
	sinks      map[string]func(domain.OutboundEvent)
	history    []Record
	maxHistory int
	nextID     uint64
	closed     bool
}

// Options configures a Bus. Zero values pick defaults.
type Options struct {
	Registry   *registry.Registry
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	MaxHistory int
}

func NewBus(opts Options) *Bus {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = registry.New(opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 1000
	}
	return &Bus{
		registry:   opts.Registry,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		observers:  make(map[domain.EventID][]*observer),
		declared:   make(map[domain.MessageType]struct{}),
		sinks:      make(map[string]func(domain.OutboundEvent)),
		maxHistory: opts.MaxHistory,
	}
}

// Registry returns the alias registry used for routing.
func (b *Bus) Registry() *registry.Registry { return b.registry }

func (b *Bus) RegisterEventType(name domain.MessageType) domain.EventID {
	return b.registry.Register(name)
}

func (b *Bus) DeclareOutbound(name domain.MessageType) {
	b.registry.Register(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared[name] = struct{}{}
}

// Declared reports whether name may be published.
func (b *Bus) Declared(name domain.MessageType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.declared[name]
	return ok
}

// DeclaredTypes returns the allow-list sorted by name.
func (b *Bus) DeclaredTypes() []domain.MessageType {
	b.mu.RLock()
	out := make([]domain.MessageType, 0, len(b.declared))
	for name := range b.declared {
		out = append(out, name)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Observe binds h to name. Several observers may share a name; they run in
// registration order.
func (b *Bus) Observe(owner string, name domain.MessageType, h domain.Handler) (domain.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("observe %s: nil handler", name)
	}
	id := b.registry.Register(name)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.ErrBusClosed
	}
	b.nextID++
	obs := &observer{
		bus:     b,
		key:     owner + "#" + strconv.FormatUint(b.nextID, 10),
		owner:   owner,
		name:    name,
		id:      id,
		handler: h,
	}
	b.observers[id] = append(b.observers[id], obs)
	return obs, nil
}

// ObserverCount returns how many observers are bound to name.
func (b *Bus) ObserverCount(name domain.MessageType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers[registry.IDFor(name)])
}

// Deliver routes ev to every observer of its type, synchronously and in
// order. Handler errors and panics are logged and do not stop delivery.
func (b *Bus) Deliver(ctx context.Context, ev domain.InboundEvent) error {
	ev.ID = registry.IDFor(ev.Type)
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrBusClosed
	}
	b.appendHistory(Record{Direction: Inbound, Type: ev.Type, ID: ev.ID, Payload: ev.Payload, Timestamp: ev.ReceivedAt})
	observers := append([]*observer(nil), b.observers[ev.ID]...)
	b.mu.Unlock()

	if len(observers) == 0 {
		b.logger.Debug("no observers for inbound event", "type", ev.Type, "id", ev.ID)
		return nil
	}

	b.metrics.Delivered(ev.Type)
	for _, obs := range observers {
		func(o *observer) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("observer panic", "type", ev.Type, "observer", o.key, "panic", r)
				}
			}()
			if err := o.handler(ctx, ev); err != nil {
				b.logger.Warn("observer returned error", "type", ev.Type, "observer", o.key, "err", err)
			}
		}(obs)
	}
	return nil
}

// OnOutbound registers a sink for published events. A second call with the
// same name replaces the sink.
func (b *Bus) OnOutbound(sinkName string, sink func(domain.OutboundEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[sinkName] = sink
}

// RemoveOutbound drops a sink.
func (b *Bus) RemoveOutbound(sinkName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, sinkName)
}

// Publish hands payload to every sink. Undeclared names are rejected with
// ErrUndeclaredOutbound and never reach a sink.
func (b *Bus) Publish(name domain.MessageType, payload domain.Payload) error {
	ev := domain.OutboundEvent{
		Type:    name,
		ID:      registry.IDFor(name),
		Payload: payload,
		SentAt:  time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrBusClosed
	}
	if _, ok := b.declared[name]; !ok {
		b.mu.Unlock()
		b.metrics.PublishRejected(name)
		b.logger.Warn("rejected publish of undeclared outbound type", "type", name)
		return fmt.Errorf("publish %s: %w", name, domain.ErrUndeclaredOutbound)
	}
	b.appendHistory(Record{Direction: Outbound, Type: name, ID: ev.ID, Payload: payload, Timestamp: ev.SentAt})
	names := make([]string, 0, len(b.sinks))
	for n := range b.sinks {
		names = append(names, n)
	}
	sort.Strings(names)
	sinks := make([]func(domain.OutboundEvent), 0, len(names))
	for _, n := range names {
		sinks = append(sinks, b.sinks[n])
	}
	b.mu.Unlock()

	b.metrics.Published(name)
	for i, sink := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("outbound sink panic", "type", name, "sink", names[i], "panic", r)
				}
			}()
			sink(ev)
		}()
	}
	return nil
}

// Replay returns history records of the given type at or after since.
// Use "*" for all types.
func (b *Bus) Replay(name domain.MessageType, since time.Time) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Record
	for _, r := range b.history {
		if r.Timestamp.Before(since) {
			continue
		}
		if name == "*" || r.Type == name {
			result = append(result, r)
		}
	}
	return result
}

// HistoryLen returns the current number of records in the history buffer.
func (b *Bus) HistoryLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history)
}

// Close rejects further deliveries and publishes. Bound observers are left
// for their owners to revoke.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// caller holds b.mu
func (b *Bus) appendHistory(r Record) {
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, r)
}

func (b *Bus) remove(o *observer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.observers[o.id]
	for i, cur := range list {
		if cur == o {
			b.observers[o.id] = append(list[:i:i], list[i+1:]...)
			if len(b.observers[o.id]) == 0 {
				delete(b.observers, o.id)
			}
			return true
		}
	}
	return false
}

// observer is the Subscription handed out by Observe.
type observer struct {
	bus     *Bus
	key     string
	owner   string
	name    domain.MessageType
	id      domain.EventID
	handler domain.Handler
}

func (o *observer) Owner() string            { return o.owner }
func (o *observer) Type() domain.MessageType { return o.name }

func (o *observer) Revoke() error {
	if !o.bus.remove(o) {
		return fmt.Errorf("revoke %s: %w", o.key, domain.ErrAlreadyRevoked)
	}
	return nil
}

var _ domain.Transport = (*Bus)(nil)
