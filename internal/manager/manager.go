// Package manager wires the custom message handlers onto a transport: it
// declares the outbound message types, subscribes one handler per inbound
// type, and tears the subscriptions down on shutdown.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kitmsg/internal/dispatch"
	"kitmsg/internal/domain"
	"kitmsg/internal/message"
	"kitmsg/internal/metrics"
	"kitmsg/internal/store"
)

// OwnerPrefix labels every subscription the manager creates.
const OwnerPrefix = "CustomMessageManager"

var ErrAlreadyInitialized = errors.New("manager already initialized")

// DataSource produces the data returned for one getCustomData query type.
type DataSource func() map[string]any

type Config struct {
	Transport domain.Transport
	Timeline  domain.Timeline
	Store     domain.ParameterStore // defaults to an in-memory store
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	// Data adds or overrides getCustomData query types.
	Data    map[string]DataSource
	Version string
}

type Manager struct {
	transport domain.Transport
	timeline  domain.Timeline
	store     domain.ParameterStore
	table     *dispatch.Table
	publisher *dispatch.Publisher
	data      map[string]DataSource
	logger    *slog.Logger

	version     string
	started     time.Time
	now         func() time.Time
	initialized bool
}

func New(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("manager: transport is required")
	}
	if cfg.Timeline == nil {
		return nil, fmt.Errorf("manager: timeline is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	logger := cfg.Logger.With("component", "manager")

	m := &Manager{
		transport: cfg.Transport,
		timeline:  cfg.Timeline,
		store:     cfg.Store,
		table:     dispatch.NewTable(cfg.Transport, cfg.Metrics, logger),
		publisher: dispatch.NewPublisher(cfg.Transport, logger),
		logger:    logger,
		version:   cfg.Version,
		now:       time.Now,
	}
	m.started = m.now()
	m.data = m.defaultDataSources()
	for name, src := range cfg.Data {
		m.data[name] = src
	}
	return m, nil
}

// Initialize registers and declares the outbound types, then subscribes a
// handler for every inbound type.
func (m *Manager) Initialize() error {
	if m.initialized {
		return ErrAlreadyInitialized
	}
	m.logger.Info("initializing")

	for _, name := range message.OutboundTypes() {
		m.transport.RegisterEventType(name)
		m.transport.DeclareOutbound(name)
	}

	for _, name := range message.InboundTypes() {
		m.transport.RegisterEventType(name)
		if _, err := m.table.Subscribe(name, OwnerPrefix+":"+string(name), m.route); err != nil {
			// Outbound declarations stay: they are idempotent and the
			// transport has no way to withdraw them.
			return fmt.Errorf("initialize: %w", errors.Join(err, m.table.UnsubscribeAll()))
		}
	}

	m.initialized = true
	m.logger.Info("initialized", "subscriptions", m.table.Len())
	return nil
}

// Shutdown revokes every subscription. Revocation failures are logged and
// returned joined; calling Shutdown again is a no-op.
func (m *Manager) Shutdown() error {
	m.logger.Info("shutting down")
	err := m.table.UnsubscribeAll()
	m.initialized = false
	return err
}

// Subscriptions returns the number of active handler subscriptions.
func (m *Manager) Subscriptions() int { return m.table.Len() }

// route validates the payload into its typed variant and hands it to the
// handler for that variant.
func (m *Manager) route(ctx context.Context, ev domain.InboundEvent) error {
	msg, err := message.Decode(ev)
	if err != nil {
		return err
	}
	switch msg := msg.(type) {
	case message.CustomActionRequest:
		return m.onCustomAction(ctx, msg)
	case message.SetParameter:
		return m.onSetParameter(ctx, msg)
	case message.GetCustomData:
		return m.onGetCustomData(ctx, msg)
	case message.GetTimelineStatus:
		return m.onGetTimelineStatus(ctx, msg)
	case message.TimelineControl:
		return m.onTimelineControl(ctx, msg)
	default:
		return fmt.Errorf("no handler for %T", msg)
	}
}
