package notify

import (
	"context"
	"sync"
	"time"
)

// Publishers push node-level notifications (presence, registrations, channel
// teardown) to whoever is listening. Implementations must be safe for
// concurrent use; the controller calls them from detached tasks.

// Notification is the envelope every publication uses.
type Notification struct {
	Name   string            `json:"name,omitempty"`
	Node   string            `json:"node,omitempty"`
	Fields map[string]string `json:"fields"`
	At     time.Time         `json:"at"`
}

// MemoryPublisher records publications in memory. Useful for tests and for
// running a controller without an external bus.
type MemoryPublisher struct {
	mu            sync.Mutex
	presence      []Notification
	registrations []Notification
	destroys      []Notification
	clock         func() time.Time
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{clock: time.Now}
}

func (p *MemoryPublisher) PublishPresenceEvent(ctx context.Context, name, node string, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presence = append(p.presence, Notification{Name: name, Node: node, Fields: fields, At: p.clock().UTC()})
	return nil
}

func (p *MemoryPublisher) PublishChannelDestroy(ctx context.Context, node string, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroys = append(p.destroys, Notification{Node: node, Fields: fields, At: p.clock().UTC()})
	return nil
}

func (p *MemoryPublisher) PublishRegistrationSuccess(ctx context.Context, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registrations = append(p.registrations, Notification{Fields: fields, At: p.clock().UTC()})
	return nil
}

func (p *MemoryPublisher) Presence() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.presence))
	copy(out, p.presence)
	return out
}

func (p *MemoryPublisher) Registrations() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.registrations))
	copy(out, p.registrations)
	return out
}

func (p *MemoryPublisher) ChannelDestroys() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.destroys))
	copy(out, p.destroys)
	return out
}
