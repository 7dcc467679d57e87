package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kitmsg/internal/domain"
)

const defaultEnqueueTimeout = 10 * time.Second

// Deliverer routes one inbound event to its observers.
type Deliverer interface {
	Deliver(ctx context.Context, ev domain.InboundEvent) error
}

// Queue serializes inbound events from any number of client connections
// onto a single dispatch loop.
type Queue struct {
	inbound chan domain.InboundEvent
	target  Deliverer
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// NewQueue creates a Queue with the given buffer size and enqueue timeout.
func NewQueue(target Deliverer, bufferSize int, timeout time.Duration, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if timeout <= 0 {
		timeout = defaultEnqueueTimeout
	}
	return &Queue{
		inbound: make(chan domain.InboundEvent, bufferSize),
		target:  target,
		timeout: timeout,
		logger:  logger,
	}
}

// Enqueue blocks up to the queue timeout if the buffer is full instead of
// dropping right away.
func (q *Queue) Enqueue(ev domain.InboundEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return domain.ErrBusClosed
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	select {
	case q.inbound <- ev:
		return nil
	default:
		q.logger.Warn("inbound queue full, waiting...", "type", ev.Type, "client", ev.ClientID)
		timer := time.NewTimer(q.timeout)
		defer timer.Stop()
		select {
		case q.inbound <- ev:
			return nil
		case <-timer.C:
			q.logger.Error("inbound event dropped: queue full",
				"type", ev.Type,
				"client", ev.ClientID,
				"waited", q.timeout,
			)
			return fmt.Errorf("enqueue %s: queue full after %s", ev.Type, q.timeout)
		}
	}
}

// Run delivers queued events one at a time until ctx is done or the queue
// is closed and drained.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-q.inbound:
			if !ok {
				return nil
			}
			if err := q.target.Deliver(ctx, ev); err != nil {
				q.logger.Warn("delivery failed", "type", ev.Type, "err", err)
			}
		}
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int { return len(q.inbound) }

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.inbound)
	}
}

var _ domain.Enqueuer = (*Queue)(nil)
