package notify

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublisherRecordsByKind(t *testing.T) {
	p := NewMemoryPublisher()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := p.PublishPresenceEvent(ctx, "PRESENCE_IN", "freeswitch@fs1.example.com", map[string]string{"from": "100"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishChannelDestroy(ctx, "freeswitch@fs1.example.com", map[string]string{"Unique-ID": "leg-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishRegistrationSuccess(ctx, map[string]string{"Username": "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	presence := p.Presence()
	if len(presence) != 1 || presence[0].Name != "PRESENCE_IN" || presence[0].Fields["from"] != "100" {
		t.Fatalf("unexpected presence %+v", presence)
	}
	if !presence[0].At.Equal(now) {
		t.Fatalf("timestamp: got %v", presence[0].At)
	}

	destroys := p.ChannelDestroys()
	if len(destroys) != 1 || destroys[0].Node != "freeswitch@fs1.example.com" {
		t.Fatalf("unexpected destroys %+v", destroys)
	}

	regs := p.Registrations()
	if len(regs) != 1 || regs[0].Fields["Username"] != "alice" {
		t.Fatalf("unexpected registrations %+v", regs)
	}
}
