package switchio

import (
	"context"
	"errors"
	"strings"
)

// Client is the control channel to one media switch instance.
//
// Rules:
// - No wire-protocol details outside transport adapters. The controller core
//   treats the switch protocol as an opaque request/response/event channel.
// - Synchronous calls must honor the caller's context deadline.
// - Events() and JobReplies() are push streams; the transport owns their
//   lifecycle and closes them when the link drops.
type Client interface {
	// API runs a synchronous command and returns the raw reply text.
	API(ctx context.Context, cmd, args string) (string, error)

	// BGAPI submits a command as a background job and returns its job id.
	// The terminal reply arrives later on JobReplies().
	BGAPI(ctx context.Context, cmd, args string) (string, error)

	// SendEvent injects an event into the switch's event system.
	SendEvent(ctx context.Context, name string, fields map[string]string) error

	// RegisterForEvents performs the event-layer handshake. It must complete
	// before Subscribe.
	RegisterForEvents(ctx context.Context) error

	// Subscribe enables delivery of the named event classes on Events().
	Subscribe(ctx context.Context, classes ...string) error

	Events() <-chan Event
	JobReplies() <-chan JobReply

	// Down is closed when the switch link is lost (disconnect or crash).
	Down() <-chan struct{}

	Close() error
}

var (
	ErrTimeout      = errors.New("switchio: timeout")
	ErrNotConnected = errors.New("switchio: not connected")
)

// Event is one push event from the switch.
// ChannelID is empty for node-scoped events.
type Event struct {
	ChannelID string
	Name      string
	Subclass  string
	Fields    map[string]string
}

// Get returns a field value, or "" when absent.
func (e Event) Get(key string) string {
	return e.Fields[key]
}

// GetLoweredFirst looks a field up by its lower-cased name before falling
// back to the name as given. Registration events deliver a mix of cased and
// lower-cased headers depending on the switch profile.
func (e Event) GetLoweredFirst(key string) string {
	if v, ok := e.Fields[strings.ToLower(key)]; ok {
		return v
	}
	return e.Fields[key]
}

// Clone returns a copy of the event with its own field map. Events are
// handed to concurrent side-effect tasks; nobody may share the map.
func (e Event) Clone() Event {
	out := e
	out.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	return out
}

// JobReply is the terminal reply for one background job.
type JobReply struct {
	JobID   string
	OK      bool
	Payload string
}
