package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kitmsg/internal/domain"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	done   chan struct{}
	want   int
}

func (r *recordingDeliverer) Deliver(ctx context.Context, ev domain.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) == r.want {
		close(r.done)
	}
	return nil
}

func TestQueue_RunDeliversInOrder(t *testing.T) {
	rec := &recordingDeliverer{done: make(chan struct{}), want: 3}
	q := NewQueue(rec, 10, time.Second, testLogger())

	for _, name := range []domain.MessageType{"a", "b", "c"} {
		if err := q.Enqueue(domain.InboundEvent{Type: name}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.events[0].Type != "a" || rec.events[2].Type != "c" {
		t.Fatalf("unexpected order: %+v", rec.events)
	}
	if rec.events[0].ReceivedAt.IsZero() {
		t.Error("enqueue should stamp received time")
	}
}

func TestQueue_FullDropsAfterTimeout(t *testing.T) {
	q := NewQueue(&recordingDeliverer{done: make(chan struct{})}, 1, 20*time.Millisecond, testLogger())

	if err := q.Enqueue(domain.InboundEvent{Type: "first"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(domain.InboundEvent{Type: "second"}); err == nil {
		t.Fatal("expected error when queue stays full")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 buffered event, got %d", q.Len())
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(&recordingDeliverer{done: make(chan struct{})}, 1, time.Second, testLogger())
	q.Close()
	q.Close()

	if err := q.Enqueue(domain.InboundEvent{Type: "x"}); !errors.Is(err, domain.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("run on closed queue should return nil, got %v", err)
	}
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	q := NewQueue(&recordingDeliverer{done: make(chan struct{})}, 1, time.Second, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
