package channel

import "testing"

func TestNATSSubjects(t *testing.T) {
	if got := InboundSubject("kitmsg", "setParameter"); got != "kitmsg.in.setParameter" {
		t.Fatalf("unexpected inbound subject %q", got)
	}
	if got := OutboundSubject("viewer", "parameterChanged"); got != "viewer.out.parameterChanged" {
		t.Fatalf("unexpected outbound subject %q", got)
	}
}

func TestDecodeNATSMessage(t *testing.T) {
	ev, err := decodeNATSMessage("setParameter", "kitmsg.in.setParameter", []byte(`{"name":"speed","value":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "setParameter" || ev.Payload["name"] != "speed" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ClientID != "nats:kitmsg.in.setParameter" {
		t.Fatalf("unexpected client id %q", ev.ClientID)
	}
}

func TestDecodeNATSMessage_EmptyBody(t *testing.T) {
	ev, err := decodeNATSMessage("getTimelineStatus", "s", nil)
	if err != nil || ev.Payload != nil {
		t.Fatalf("expected empty payload, got %+v (err=%v)", ev.Payload, err)
	}
}

func TestDecodeNATSMessage_Invalid(t *testing.T) {
	if _, err := decodeNATSMessage("x", "s", []byte("{")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNewNATSRelay_DefaultPrefix(t *testing.T) {
	if r := NewNATSRelay(NATSConfig{}); r.cfg.Prefix != "kitmsg" {
		t.Fatalf("expected default prefix, got %q", r.cfg.Prefix)
	}
}
