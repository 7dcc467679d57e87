package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"kitmsg/internal/domain"
	"kitmsg/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBus() *Bus {
	return NewBus(Options{Logger: testLogger()})
}

func TestBus_DeliverToObserver(t *testing.T) {
	b := newTestBus()

	var got domain.InboundEvent
	if _, err := b.Observe("test", "setParameter", func(ctx context.Context, ev domain.InboundEvent) error {
		got = ev
		return nil
	}); err != nil {
		t.Fatalf("observe: %v", err)
	}

	if err := b.Deliver(context.Background(), domain.InboundEvent{Type: "setParameter", Payload: domain.Payload{"name": "speed"}}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Payload["name"] != "speed" {
		t.Fatalf("expected payload to reach observer, got %+v", got.Payload)
	}
	if got.ID != registry.IDFor("setParameter") {
		t.Fatalf("expected resolved id, got %d", got.ID)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("received time should be set")
	}
}

func TestBus_DeliverUnobservedIsNoop(t *testing.T) {
	b := newTestBus()
	if err := b.Deliver(context.Background(), domain.InboundEvent{Type: "nobody"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestBus_FanOutKeepsBothHandlers(t *testing.T) {
	b := newTestBus()

	var order []string
	b.Observe("first", "getCustomData", func(ctx context.Context, ev domain.InboundEvent) error {
		order = append(order, "first")
		return nil
	})
	b.Observe("second", "getCustomData", func(ctx context.Context, ev domain.InboundEvent) error {
		order = append(order, "second")
		return nil
	})

	b.Deliver(context.Background(), domain.InboundEvent{Type: "getCustomData"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected both handlers in order, got %v", order)
	}
}

func TestBus_PanicAndErrorDoNotStopDelivery(t *testing.T) {
	b := newTestBus()

	var reached int32
	b.Observe("panics", "x", func(ctx context.Context, ev domain.InboundEvent) error { panic("boom") })
	b.Observe("fails", "x", func(ctx context.Context, ev domain.InboundEvent) error { return errors.New("nope") })
	b.Observe("ok", "x", func(ctx context.Context, ev domain.InboundEvent) error {
		atomic.AddInt32(&reached, 1)
		return nil
	})

	if err := b.Deliver(context.Background(), domain.InboundEvent{Type: "x"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if atomic.LoadInt32(&reached) != 1 {
		t.Fatal("expected the healthy observer to run")
	}
}

func TestBus_RevokeRemovesObserver(t *testing.T) {
	b := newTestBus()

	var count int32
	sub, _ := b.Observe("test", "x", func(ctx context.Context, ev domain.InboundEvent) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	b.Deliver(context.Background(), domain.InboundEvent{Type: "x"})
	if err := sub.Revoke(); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	b.Deliver(context.Background(), domain.InboundEvent{Type: "x"})

	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected 1 call after revoke, got %d", count)
	}
	if b.ObserverCount("x") != 0 {
		t.Fatalf("expected no observers, got %d", b.ObserverCount("x"))
	}
	if err := sub.Revoke(); !errors.Is(err, domain.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestBus_PublishDeclared(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("parameterChanged")

	var got []domain.OutboundEvent
	b.OnOutbound("recorder", func(ev domain.OutboundEvent) { got = append(got, ev) })

	if err := b.Publish("parameterChanged", domain.Payload{"name": "speed"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0].Type != "parameterChanged" {
		t.Fatalf("expected one outbound event, got %+v", got)
	}
	if got[0].ID != registry.IDFor("parameterChanged") {
		t.Fatal("outbound event should carry its id")
	}
}

func TestBus_PublishUndeclaredRejected(t *testing.T) {
	b := newTestBus()

	var count int
	b.OnOutbound("recorder", func(ev domain.OutboundEvent) { count++ })

	err := b.Publish("secretChannel", domain.Payload{})
	if !errors.Is(err, domain.ErrUndeclaredOutbound) {
		t.Fatalf("expected ErrUndeclaredOutbound, got %v", err)
	}
	if count != 0 {
		t.Fatal("undeclared event must not reach sinks")
	}
}

func TestBus_DeclareIsIdempotent(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("customActionResult")
	b.DeclareOutbound("customActionResult")

	if types := b.DeclaredTypes(); len(types) != 1 {
		t.Fatalf("expected 1 declared type, got %v", types)
	}
	if !b.Declared("customActionResult") {
		t.Fatal("expected declared")
	}
}

func TestBus_SinkPanicIsolated(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("x")

	var reached bool
	b.OnOutbound("a-panics", func(ev domain.OutboundEvent) { panic("sink") })
	b.OnOutbound("b-ok", func(ev domain.OutboundEvent) { reached = true })

	if err := b.Publish("x", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !reached {
		t.Fatal("expected second sink to run")
	}
}

func TestBus_Closed(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("x")
	b.Close()

	if err := b.Publish("x", nil); !errors.Is(err, domain.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed on publish, got %v", err)
	}
	if err := b.Deliver(context.Background(), domain.InboundEvent{Type: "x"}); !errors.Is(err, domain.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed on deliver, got %v", err)
	}
	if _, err := b.Observe("late", "x", func(context.Context, domain.InboundEvent) error { return nil }); !errors.Is(err, domain.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed on observe, got %v", err)
	}
}

func TestBus_Replay(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("out")

	b.Deliver(context.Background(), domain.InboundEvent{Type: "in"})
	b.Publish("out", nil)
	b.Deliver(context.Background(), domain.InboundEvent{Type: "in"})

	if got := b.Replay("in", time.Time{}); len(got) != 2 {
		t.Errorf("expected 2 'in' records, got %d", len(got))
	}
	all := b.Replay("*", time.Time{})
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[1].Direction != Outbound {
		t.Errorf("expected outbound record, got %s", all[1].Direction)
	}
}

func TestBus_HistoryLimit(t *testing.T) {
	b := NewBus(Options{Logger: testLogger(), MaxHistory: 5})
	for i := 0; i < 10; i++ {
		b.Deliver(context.Background(), domain.InboundEvent{Type: "test"})
	}
	if b.HistoryLen() != 5 {
		t.Errorf("expected 5, got %d", b.HistoryLen())
	}
}

func TestBus_HandlerMayPublish(t *testing.T) {
	b := newTestBus()
	b.DeclareOutbound("pong")

	var published int
	b.OnOutbound("recorder", func(ev domain.OutboundEvent) { published++ })
	b.Observe("ping", "ping", func(ctx context.Context, ev domain.InboundEvent) error {
		return b.Publish("pong", domain.Payload{"ok": true})
	})

	b.Deliver(context.Background(), domain.InboundEvent{Type: "ping"})
	if published != 1 {
		t.Fatalf("expected handler publish to reach sink, got %d", published)
	}
}
