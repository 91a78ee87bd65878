package fsnode

import "context"

// Collaborator contracts, defined on the consumer side. Each is a narrow
// boundary; implementations live in their own packages and contribute no
// scheduling of their own. All of them are invoked from detached goroutines
// and must be safe for concurrent use.

// LegTracker follows call legs as channels come and go.
type LegTracker interface {
	AddLeg(fields map[string]string)
	RemoveLeg(fields map[string]string)
}

// ControlWorker is the per-call session actor started after a successful
// origination. Its queue handle is the opaque routing handle handed back to
// the resource requester.
type ControlWorker interface {
	CallID() string
	QueueHandle() string
}

// SessionSupervisor starts per-call workers.
type SessionSupervisor interface {
	StartControlWorker(node Identity, callID string) (ControlWorker, error)
	StartEventWorker(node Identity, callID string) error
}

// SessionWorker is an opaque handle to a registered call-control worker.
type SessionWorker interface {
	CallID() string
}

// SessionLookup resolves call-control workers by correlation id and routes
// transfer notices to them. An empty lookup is not an error; the call may
// have already ended.
type SessionLookup interface {
	FindWorkers(correlationID string) ([]SessionWorker, bool)
	NotifyTransferer(w SessionWorker, fields map[string]string)
	NotifyTransferee(w SessionWorker, fields map[string]string)
}

// CDRRecorder triggers call-detail persistence. This controller never
// persists records itself.
type CDRRecorder interface {
	RecordCallDetail(ctx context.Context, callID string, fields map[string]string) error
}

// Publisher pushes node-level notifications outward.
type Publisher interface {
	PublishPresenceEvent(ctx context.Context, name, node string, fields map[string]string) error
	PublishChannelDestroy(ctx context.Context, node string, fields map[string]string) error
	PublishRegistrationSuccess(ctx context.Context, fields map[string]string) error
}

// Peer is a sibling node controller reachable for event federation.
type Peer interface {
	DistributePresence(e Event)
}

// Registry enumerates sibling controllers and removes a node that is going
// away. Keys are Identity.String() values.
type Registry interface {
	Siblings(exceptKey string) []Peer
	Deregister(key string)
}

// StartupCommandSource supplies the ordered bring-up command list for a node.
type StartupCommandSource interface {
	StartupCommands(node Identity) []StartupCommand
}

// StartupCommandsFunc adapts a function to a StartupCommandSource.
type StartupCommandsFunc func(node Identity) []StartupCommand

func (f StartupCommandsFunc) StartupCommands(node Identity) []StartupCommand {
	return f(node)
}

// Deps bundles the collaborators one node controller needs. Nil members are
// tolerated; the corresponding side effects are skipped.
type Deps struct {
	Legs     LegTracker
	Sessions SessionSupervisor
	Lookup   SessionLookup
	CDR      CDRRecorder
	Notify   Publisher
	Registry Registry
	Startup  StartupCommandSource
}
