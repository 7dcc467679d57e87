package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kitmsg/internal/domain"
	"kitmsg/internal/metrics"
)

// Table owns the active handler subscriptions. It is the only place that
// revokes them.
//
// Several subscriptions may share a message type; the transport fans out
// to all of them in subscription order.
type Table struct {
	transport domain.Transport
	metrics   metrics.Recorder
	logger    *slog.Logger

	mu   sync.Mutex
	subs []domain.Subscription
}

func NewTable(transport domain.Transport, rec metrics.Recorder, logger *slog.Logger) *Table {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Table{transport: transport, metrics: rec, logger: logger}
}

// Subscribe binds h to name behind the dispatch guard and records the
// subscription. label identifies the handler in logs.
func (t *Table) Subscribe(name domain.MessageType, label string, h domain.Handler) (domain.Subscription, error) {
	sub, err := t.transport.Observe(label, name, Guard(label, h, t.logger, t.metrics))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	n := len(t.subs)
	t.mu.Unlock()

	t.metrics.SetSubscriptions(n)
	t.logger.Debug("subscribed", "type", name, "handler", label)
	return sub, nil
}

// UnsubscribeAll revokes every subscription in the order it was created and
// clears the table. A failed revocation is logged and skipped; the joined
// failures are returned once every subscription has been tried. Calling it
// on an empty table does nothing.
func (t *Table) UnsubscribeAll() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := revoke(sub); err != nil {
			t.logger.Warn("unsubscribe failed", "type", sub.Type(), "handler", sub.Owner(), "err", err)
			errs = append(errs, err)
		}
	}
	t.metrics.SetSubscriptions(0)
	return errors.Join(errs...)
}

// revoke converts a panicking Revoke into an error.
func revoke(sub domain.Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("revoke %s: panic: %v", sub.Owner(), r)
		}
	}()
	return sub.Revoke()
}

// Len returns the number of active subscriptions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Types returns the bound message types in subscription order.
func (t *Table) Types() []domain.MessageType {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.MessageType, len(t.subs))
	for i, sub := range t.subs {
		out[i] = sub.Type()
	}
	return out
}
