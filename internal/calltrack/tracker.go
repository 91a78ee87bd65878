package calltrack

import (
	"sync"
	"time"
)

// Tracker follows the live call legs of the switches this process manages.
// Legs are keyed by the switch's channel unique id.
//
// Tracking is best-effort bookkeeping for introspection; it never drives
// call behavior, so unknown removals are silently ignored.

type Leg struct {
	ChannelID      string
	OtherLegID     string
	Direction      string
	CallerIDNumber string
	Destination    string
	CreatedAt      time.Time
}

type Tracker struct {
	mu    sync.Mutex
	legs  map[string]Leg
	clock func() time.Time
}

func New() *Tracker {
	return &Tracker{
		legs:  make(map[string]Leg),
		clock: time.Now,
	}
}

func (t *Tracker) AddLeg(fields map[string]string) {
	id := fields["Unique-ID"]
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.legs[id] = Leg{
		ChannelID:      id,
		OtherLegID:     fields["Other-Leg-Unique-ID"],
		Direction:      fields["Call-Direction"],
		CallerIDNumber: fields["Caller-Caller-ID-Number"],
		Destination:    fields["Caller-Destination-Number"],
		CreatedAt:      t.clock().UTC(),
	}
}

func (t *Tracker) RemoveLeg(fields map[string]string) {
	id := fields["Unique-ID"]
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.legs, id)
}

// ActiveLegs returns a copy of the current leg set.
func (t *Tracker) ActiveLegs() []Leg {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Leg, 0, len(t.legs))
	for _, leg := range t.legs {
		out = append(out, leg)
	}
	return out
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.legs)
}
