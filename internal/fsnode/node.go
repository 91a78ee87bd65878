package fsnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"callmgr/internal/switchio"
)

// Node is the controller for one attached media-switch instance.
//
// It is a single-threaded actor: all state lives behind one mailbox and is
// mutated only by the Run loop. Anything that needs a round trip to the
// switch after bring-up runs in a detached goroutine that replies straight to
// the original caller, so the mailbox never blocks on switch I/O.

// Identity is the immutable handle for one switch instance.
type Identity struct {
	Host     string
	Instance string
}

func (id Identity) String() string {
	return id.Instance + "@" + id.Host
}

// Options is the runtime configuration for one node. Updates via SetOptions
// replace the whole value; options are never merged.
type Options struct {
	// MaxChannels is the capacity ceiling. Zero means unset: the capacity
	// probe then answers empty, and the consume path falls back to a
	// ceiling of one channel.
	MaxChannels int

	// MinChannelsRequested is the default minimum a consume request must
	// find available when the request itself does not say.
	MinChannelsRequested int
}

// Stats are the live per-node counters. Owned exclusively by the actor.
type Stats struct {
	StartedAt         time.Time
	CreatedChannels   int64
	DestroyedChannels int64
	LastHeartbeat     time.Time
	FSUptimeMicro     int64
	OtherEvents       int64
}

// ActiveChannels never reports a negative count; the clamp in the counting
// helpers guarantees CreatedChannels >= DestroyedChannels after every event.
func (s Stats) ActiveChannels() int {
	return int(s.CreatedChannels - s.DestroyedChannels)
}

// channelCreated counts a new channel. A startup race can deliver destroys
// for channels created before we attached; when the destroy counter has run
// ahead, both counters are first reset to it so the active count stays
// non-negative.
func (s *Stats) channelCreated() {
	if s.DestroyedChannels > s.CreatedChannels {
		s.CreatedChannels = s.DestroyedChannels
	}
	s.CreatedChannels++
}

func (s *Stats) channelDestroyed() {
	s.DestroyedChannels++
	if s.DestroyedChannels > s.CreatedChannels {
		s.CreatedChannels = s.DestroyedChannels
	}
}

// State is the bring-up state machine position.
type State int32

const (
	StateInitializing State = iota
	StateAwaitingEventRegistration
	StateRunningStartup
	StateReady
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingEventRegistration:
		return "awaiting_event_registration"
	case StateRunningStartup:
		return "running_startup"
	case StateReady:
		return "ready"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

var (
	ErrNodeDown      = errors.New("fsnode: switch link down")
	ErrStartupFailed = errors.New("fsnode: startup sequence failed")
	ErrActorStopped  = errors.New("fsnode: controller stopped")
)

type timeouts struct {
	registration time.Duration
	op           time.Duration
	originate    time.Duration
	consume      time.Duration
	emptyStartup time.Duration
}

func defaultTimeouts() timeouts {
	return timeouts{
		registration: 5 * time.Second,
		op:           5 * time.Second,
		originate:    9 * time.Second,
		consume:      10 * time.Second,
		emptyStartup: 5 * time.Second,
	}
}

type Node struct {
	identity Identity
	client   switchio.Client
	jobs     *switchio.Jobs
	deps     Deps
	opts     Options

	// stats is touched only by the Run loop.
	stats Stats

	mailbox chan message
	done    chan struct{}
	state   atomic.Int32

	log      *slog.Logger
	clock    func() time.Time
	timeouts timeouts
}

// mailbox message variants
type message interface{}

type snapshotReq struct{ reply chan Snapshot }
type optionsUpdate struct{ opts Options }
type probeReq struct {
	min   int
	reply chan probeReply
}
type probeReply struct {
	avail Availability
	ok    bool
}
type consumeReq struct {
	req   ConsumeRequest
	reply chan consumeReply
}
type consumeReply struct {
	consumed Consumed
	err      *ResourceError
}
type distributedPresence struct{ event switchio.Event }
type uptimePatch struct{ micro int64 }

// Snapshot is a point-in-time external view of one node.
type Snapshot struct {
	Identity       Identity
	State          State
	Stats          Stats
	Options        Options
	ActiveChannels int
}

func New(identity Identity, client switchio.Client, opts Options, deps Deps, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	n := &Node{
		identity: identity,
		client:   client,
		jobs:     switchio.NewJobs(),
		deps:     deps,
		opts:     opts,
		mailbox:  make(chan message, 128),
		done:     make(chan struct{}),
		log:      log.With("node", identity.String()),
		clock:    time.Now,
		timeouts: defaultTimeouts(),
	}
	n.state.Store(int32(StateInitializing))
	return n
}

// Run drives the bring-up state machine and then the steady-state loop. It
// returns when the context is canceled, the switch link drops, or bring-up
// fails. The supervising layer owns restart policy; Run never retries.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)
	defer n.setState(StateTerminating)

	n.setState(StateAwaitingEventRegistration)
	regCtx, cancel := context.WithTimeout(ctx, n.timeouts.registration)
	err := n.client.RegisterForEvents(regCtx)
	cancel()
	if err != nil {
		n.log.Error("event registration failed", "err", err)
		n.deregister()
		return fmt.Errorf("event registration: %w", err)
	}

	n.setState(StateRunningStartup)
	outcomes := n.runStartup(ctx)
	if !Clean(outcomes) {
		for _, o := range outcomes {
			if o.Kind != OutcomeOK {
				n.log.Error("startup command failed",
					"command", o.Command, "kind", o.Kind.String(), "response", o.Response)
			}
		}
		n.deregister()
		return ErrStartupFailed
	}

	if err := n.client.Subscribe(ctx, eventClasses...); err != nil {
		n.log.Error("event subscription failed", "err", err)
		n.deregister()
		return fmt.Errorf("event subscription: %w", err)
	}

	n.seedChannelCount(ctx)
	n.stats.StartedAt = n.clock().UTC()
	n.setState(StateReady)
	n.log.Info("node ready", "created_channels", n.stats.CreatedChannels)

	return n.loop(ctx)
}

func (n *Node) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.deregister()
			return nil
		case <-n.client.Down():
			n.log.Error("switch link down")
			n.deregister()
			return ErrNodeDown
		case msg := <-n.mailbox:
			n.handle(ctx, msg)
		case ev, ok := <-n.client.Events():
			if !ok {
				n.log.Error("event stream closed")
				n.deregister()
				return ErrNodeDown
			}
			n.dispatchEvent(ev)
		case r, ok := <-n.client.JobReplies():
			if !ok {
				n.log.Error("job reply stream closed")
				n.deregister()
				return ErrNodeDown
			}
			n.jobs.Complete(r)
		}
	}
}

func (n *Node) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case snapshotReq:
		m.reply <- Snapshot{
			Identity:       n.identity,
			State:          n.State(),
			Stats:          n.stats,
			Options:        n.opts,
			ActiveChannels: n.stats.ActiveChannels(),
		}
	case optionsUpdate:
		// Wholesale replacement, never a merge.
		n.opts = m.opts
		n.log.Info("options updated", "max_channels", m.opts.MaxChannels)
	case probeReq:
		m.reply <- n.handleProbe(m.min)
	case consumeReq:
		n.handleConsume(ctx, m)
	case distributedPresence:
		// A presence event federated from a sibling: inject it into this
		// switch so locally attached endpoints see it. Never re-federated;
		// the distribution marker it carries stops the loop.
		go func(e switchio.Event) {
			opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
			defer cancel()
			if err := n.client.SendEvent(opCtx, e.Name, e.Fields); err != nil {
				n.log.Warn("distributed presence injection failed", "err", err)
			}
		}(m.event)
	case uptimePatch:
		n.stats.FSUptimeMicro = m.micro
	default:
		n.log.Warn("unrecognized mailbox message", "type", fmt.Sprintf("%T", msg))
	}
}

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
}

// State is safe to read from any goroutine.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Done is closed once the controller has terminated.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

func (n *Node) deregister() {
	if n.deps.Registry == nil {
		return
	}
	n.deps.Registry.Deregister(n.identity.String())
}

func (n *Node) post(ctx context.Context, m message) bool {
	select {
	case n.mailbox <- m:
		return true
	case <-n.done:
		return false
	case <-ctx.Done():
		return false
	}
}

/* ===================== PUBLIC OPERATIONS ===================== */

// Hostname returns the host component of the node identity. The identity is
// immutable, so no mailbox round trip is needed.
func (n *Node) Hostname() string {
	return n.identity.Host
}

// FSNode returns the node identity.
func (n *Node) FSNode() Identity {
	return n.identity
}

// Snapshot returns the current state and counters. ok is false when the
// controller did not answer within the bounded wait (busy in bring-up, or
// dead).
func (n *Node) Snapshot(ctx context.Context) (Snapshot, bool) {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	reply := make(chan Snapshot, 1)
	if !n.post(ctx, snapshotReq{reply: reply}) {
		return Snapshot{}, false
	}
	select {
	case s := <-reply:
		return s, true
	case <-ctx.Done():
		return Snapshot{}, false
	}
}

// SetOptions replaces the node options. Fire-and-forget.
func (n *Node) SetOptions(opts Options) {
	go func() {
		select {
		case n.mailbox <- optionsUpdate{opts: opts}:
		case <-n.done:
		}
	}()
}

// UUIDExists reports whether a channel id is live on the switch. Any error
// or timeout maps to false; callers treat the answer as best effort.
func (n *Node) UUIDExists(ctx context.Context, id string) bool {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	out, err := n.client.API(ctx, "uuid_exists", id)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// UUIDDump fetches the switch's full snapshot of one channel.
func (n *Node) UUIDDump(ctx context.Context, id string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	out, err := n.client.API(ctx, "uuid_dump", id)
	if err != nil {
		return nil, err
	}
	return parseKeyValueDump(out), nil
}

// ShowChannels lists the switch's live channels. Any failure yields an empty
// list, never an error.
func (n *Node) ShowChannels(ctx context.Context) []map[string]string {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	out, err := n.client.API(ctx, "show", "channels")
	if err != nil {
		return nil
	}
	return parseChannelTable(out)
}

// ReloadACL asks the switch to reload its access lists. Fire-and-forget.
func (n *Node) ReloadACL() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
		defer cancel()
		if _, err := n.client.API(ctx, "reloadacl", ""); err != nil {
			n.log.Warn("reloadacl failed", "err", err)
		}
	}()
}

// DistributePresence delivers a presence event federated from a sibling
// controller. Blocks only until the controller accepts it or terminates.
func (n *Node) DistributePresence(e switchio.Event) {
	select {
	case n.mailbox <- distributedPresence{event: e}:
	case <-n.done:
	}
}

/* ===================== BRING-UP HELPERS ===================== */

// eventClasses is the fixed subscription list established after a clean
// startup sequence.
var eventClasses = []string{
	"CHANNEL_CREATE",
	"CHANNEL_DESTROY",
	"CHANNEL_HANGUP_COMPLETE",
	"HEARTBEAT",
	"PRESENCE_IN",
	"PRESENCE_OUT",
	"PRESENCE_PROBE",
	"CUSTOM",
	"sofia::register",
	"sofia::transfer",
}

// seedChannelCount primes CreatedChannels from the switch's live channel
// count so admission math is right for calls that predate this controller.
func (n *Node) seedChannelCount(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	out, err := n.client.API(opCtx, "show", "channels count")
	if err != nil {
		n.log.Warn("channel count seed failed", "err", err)
		return
	}
	if count, ok := parseChannelCount(out); ok {
		n.stats.CreatedChannels = int64(count)
	}
}

func parseChannelCount(out string) (int, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "total.") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if count, err := strconv.Atoi(fields[0]); err == nil {
			return count, true
		}
	}
	return 0, false
}

func parseKeyValueDump(out string) map[string]string {
	dump := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		dump[key] = strings.TrimSpace(value)
	}
	return dump
}

// parseChannelTable reads the switch's delimited channel listing: a header
// line of column names, one row per channel, terminated by a blank line or
// the trailing "N total." line.
func parseChannelTable(out string) []map[string]string {
	lines := strings.Split(out, "\n")
	var header []string
	var rows []map[string]string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasSuffix(strings.TrimSpace(line), "total.") {
			if header != nil {
				break
			}
			continue
		}
		cols := strings.Split(line, ",")
		if header == nil {
			header = cols
			continue
		}
		row := make(map[string]string, len(header))
		for i, col := range cols {
			if i >= len(header) {
				break
			}
			row[header[i]] = col
		}
		rows = append(rows, row)
	}
	return rows
}
