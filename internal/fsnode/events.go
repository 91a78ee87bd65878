package fsnode

import (
	"context"
	"strings"

	"callmgr/internal/switchio"
)

// Event re-exports the switch event type; the classifier below is the only
// place raw event names are interpreted.
type Event = switchio.Event

// EventKind is the closed classification of switch events. Dispatch happens
// on kinds only; raw strings never travel past ClassifyEvent.
type EventKind int

const (
	EventChannelCreate EventKind = iota
	EventChannelDestroy
	EventChannelHangupComplete
	EventHeartbeat
	EventPresence
	EventRegister
	EventTransfer
	EventOther
)

const (
	subclassRegister = "sofia::register"
	subclassTransfer = "sofia::transfer"

	// distributedFromField marks an event that already crossed the
	// federation boundary; it is never re-federated.
	distributedFromField = "Distributed-From"

	channelStateField = "Channel-State"
	channelStateNew   = "CS_NEW"
	channelStateDone  = "CS_DESTROY"

	uptimeField = "Up-Time"
)

func ClassifyEvent(e Event) EventKind {
	switch e.Name {
	case "CHANNEL_CREATE":
		return EventChannelCreate
	case "CHANNEL_DESTROY":
		return EventChannelDestroy
	case "CHANNEL_HANGUP_COMPLETE":
		return EventChannelHangupComplete
	case "HEARTBEAT":
		return EventHeartbeat
	case "PRESENCE_IN", "PRESENCE_OUT", "PRESENCE_PROBE":
		return EventPresence
	case "CUSTOM":
		switch e.Subclass {
		case subclassRegister:
			return EventRegister
		case subclassTransfer:
			return EventTransfer
		}
		return EventOther
	default:
		return EventOther
	}
}

// dispatchEvent runs on the actor loop. Counter updates happen inline; every
// collaborator call fans out on its own goroutine so a slow collaborator
// cannot stall event intake.
func (n *Node) dispatchEvent(e Event) {
	switch ClassifyEvent(e) {
	case EventChannelCreate:
		if e.ChannelID == "" {
			n.stats.OtherEvents++
			return
		}
		n.stats.channelCreated()
		if n.deps.Legs != nil {
			go n.deps.Legs.AddLeg(e.Clone().Fields)
		}

	case EventChannelDestroy:
		if e.ChannelID == "" {
			n.stats.OtherEvents++
			return
		}
		switch e.Get(channelStateField) {
		case channelStateNew:
			// Spurious destroy for a channel that never got going.
			return
		case channelStateDone:
			n.stats.channelDestroyed()
			ev := e.Clone()
			go func() {
				if n.deps.Legs != nil {
					n.deps.Legs.RemoveLeg(ev.Fields)
				}
				if n.deps.Notify != nil {
					opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
					defer cancel()
					if err := n.deps.Notify.PublishChannelDestroy(opCtx, n.identity.String(), ev.Fields); err != nil {
						n.log.Warn("channel destroy publish failed", "channel", ev.ChannelID, "err", err)
					}
				}
			}()
		}

	case EventChannelHangupComplete:
		if n.deps.CDR == nil {
			return
		}
		ev := e.Clone()
		go func() {
			opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
			defer cancel()
			if err := n.deps.CDR.RecordCallDetail(opCtx, ev.ChannelID, ev.Fields); err != nil {
				n.log.Warn("cdr handoff failed", "channel", ev.ChannelID, "err", err)
			}
		}()

	case EventHeartbeat:
		n.stats.LastHeartbeat = n.clock().UTC()
		// Heartbeats carry the switch uptime in the "Up-Time" field; only a
		// heartbeat without it costs a status round trip.
		if up := e.Get(uptimeField); up != "" {
			if micro := parseUptime(strings.TrimPrefix(up, "UP ")); micro > 0 {
				n.stats.FSUptimeMicro = micro
			}
			return
		}
		n.refreshUptime()

	case EventPresence:
		n.handlePresence(e)

	case EventRegister:
		n.handleRegister(e)

	case EventTransfer:
		n.handleTransfer(e)

	default:
		n.stats.OtherEvents++
	}
}

// refreshUptime is the fallback for heartbeats without an uptime field: it
// re-reads switch status off the actor loop and patches the uptime counter
// back in through the mailbox.
func (n *Node) refreshUptime() {
	go func() {
		opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
		defer cancel()
		out, err := n.client.API(opCtx, "status", "")
		if err != nil {
			return
		}
		st := ParseStatus(out)
		if st.UptimeMicro == 0 {
			return
		}
		select {
		case n.mailbox <- uptimePatch{micro: st.UptimeMicro}:
		case <-n.done:
		}
	}()
}

// handlePresence publishes a locally observed presence event and federates
// it to every sibling controller, tagged with this node's identity so a
// federated copy is never federated again.
func (n *Node) handlePresence(e Event) {
	if e.Get(distributedFromField) != "" {
		// Already seen via federation; nothing further to do.
		return
	}

	ev := e.Clone()
	go func() {
		if n.deps.Notify != nil {
			opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
			defer cancel()
			if err := n.deps.Notify.PublishPresenceEvent(opCtx, ev.Name, n.identity.String(), ev.Fields); err != nil {
				n.log.Warn("presence publish failed", "event", ev.Name, "err", err)
			}
		}
		if n.deps.Registry == nil {
			return
		}
		tagged := ev.Clone()
		tagged.Fields[distributedFromField] = n.identity.String()
		for _, peer := range n.deps.Registry.Siblings(n.identity.String()) {
			peer.DistributePresence(tagged)
		}
	}()
}

// registrationFields is the field set carried on a registration-success
// notification. Values prefer the lower-cased header name; sofia profiles
// disagree about header casing.
var registrationFields = []string{
	"Event-Timestamp",
	"Call-ID",
	"Profile-Name",
	"From-User",
	"From-Host",
	"To-User",
	"To-Host",
	"RPid",
	"Status",
	"Expires",
	"Contact",
	"Network-IP",
	"Network-Port",
	"Username",
	"Realm",
	"User-Agent",
}

func (n *Node) handleRegister(e Event) {
	if n.deps.Notify == nil {
		return
	}
	ev := e.Clone()
	go func() {
		fields := make(map[string]string, len(registrationFields))
		for _, key := range registrationFields {
			if v := ev.GetLoweredFirst(key); v != "" {
				fields[key] = v
			}
		}
		opCtx, cancel := context.WithTimeout(context.Background(), n.timeouts.op)
		defer cancel()
		if err := n.deps.Notify.PublishRegistrationSuccess(opCtx, fields); err != nil {
			n.log.Warn("registration publish failed", "err", err)
		}
	}()
}

const transferTypeBlind = "BLIND_TRANSFER"

// handleTransfer routes a sofia transfer event to the call-control workers
// of the parties involved. For a blind transfer only the transferer side is
// told; any other transfer type additionally notifies the workers behind the
// "Replaces" id. Missing workers on either side are fine; the call may have
// already ended.
func (n *Node) handleTransfer(e Event) {
	if n.deps.Lookup == nil {
		return
	}
	ev := e.Clone()
	go func() {
		transferer := ev.Get("Transferee-UUID")
		if ev.Get("Transferor-Direction") == "inbound" {
			transferer = ev.Get("Transferor-UUID")
		}
		if workers, ok := n.deps.Lookup.FindWorkers(transferer); ok {
			for _, w := range workers {
				n.deps.Lookup.NotifyTransferer(w, ev.Fields)
			}
		}

		if ev.Get("Type") == transferTypeBlind {
			return
		}
		replaces := ev.Get("Replaces")
		if replaces == "" {
			return
		}
		if workers, ok := n.deps.Lookup.FindWorkers(replaces); ok {
			for _, w := range workers {
				n.deps.Lookup.NotifyTransferee(w, ev.Fields)
			}
		}
	}()
}
