package fsnode

import "testing"

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  EventKind
	}{
		{"create", Event{Name: "CHANNEL_CREATE"}, EventChannelCreate},
		{"destroy", Event{Name: "CHANNEL_DESTROY"}, EventChannelDestroy},
		{"hangup complete", Event{Name: "CHANNEL_HANGUP_COMPLETE"}, EventChannelHangupComplete},
		{"heartbeat", Event{Name: "HEARTBEAT"}, EventHeartbeat},
		{"presence in", Event{Name: "PRESENCE_IN"}, EventPresence},
		{"presence out", Event{Name: "PRESENCE_OUT"}, EventPresence},
		{"presence probe", Event{Name: "PRESENCE_PROBE"}, EventPresence},
		{"register", Event{Name: "CUSTOM", Subclass: "sofia::register"}, EventRegister},
		{"transfer", Event{Name: "CUSTOM", Subclass: "sofia::transfer"}, EventTransfer},
		{"unknown custom", Event{Name: "CUSTOM", Subclass: "sofia::gateway"}, EventOther},
		{"unknown", Event{Name: "MODULE_LOAD"}, EventOther},
		{"empty", Event{}, EventOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyEvent(tt.event); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatsClampHelpers(t *testing.T) {
	var s Stats

	// Destroys observed before any create pull the created counter level.
	s.channelDestroyed()
	s.channelDestroyed()
	if s.CreatedChannels != 2 || s.DestroyedChannels != 2 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.ActiveChannels() != 0 {
		t.Fatalf("active: got %d, want 0", s.ActiveChannels())
	}

	s.channelCreated()
	if s.ActiveChannels() != 1 {
		t.Fatalf("active: got %d, want 1", s.ActiveChannels())
	}
	if s.CreatedChannels < s.DestroyedChannels {
		t.Fatalf("clamp violated: %+v", s)
	}
}
