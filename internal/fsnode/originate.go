package fsnode

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"callmgr/internal/switchio"
)

// Resource admission and asynchronous call origination.
//
// Admission math is actor-local: active channels come straight from the
// node's own counters, so no shared state is consulted. The origination
// round trip runs detached and replies directly to the requester.

// ConsumeRequest asks this node to originate one call.
type ConsumeRequest struct {
	// Route is the dial string for the originated leg.
	Route string

	// Attributes carry the call attributes; recognized keys below, plus
	// "var:<name>" entries that become channel variables verbatim.
	Attributes map[string]string
}

// Recognized attribute keys.
const (
	AttrApplication         = "application"
	AttrApplicationData     = "application-data"
	AttrInviteFormat        = "invite-format"
	AttrCallerIDName        = "caller-id-name"
	AttrCallerIDNumber      = "caller-id-number"
	AttrTimeout             = "timeout"
	AttrIgnoreEarlyMedia    = "ignore-early-media"
	AttrMinChannelsRequired = "min-channels-requested"

	// AttrExportVars is the full export set, a comma list of name=value
	// pairs. AttrExportedVars names the variables explicitly exported for
	// this call; everything in the full set but not named there is unset on
	// the originated leg.
	AttrExportVars   = "export-vars"
	AttrExportedVars = "exported-vars"

	attrVarPrefix = "var:"
)

// Consumed is the success reply for a consume request.
type Consumed struct {
	CallID string

	// ControlQueue is the opaque routing handle of the call's control
	// worker; callers steer the call by addressing this queue.
	ControlQueue string

	// AvailableChannels is the capacity remaining after this call.
	AvailableChannels int
}

// ResourceError is the typed failure reply for a consume request.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string {
	return "fsnode: resource error: " + e.Reason
}

const (
	reasonTimeout    = "timeout"
	reasonNoCapacity = "insufficient channels available"

	// reasonControlAttach is the legacy reason string downstream consumers
	// match on when origination succeeded but call control could not attach.
	reasonControlAttach = "amqp_error"
)

// Availability is the reply to a capacity probe.
type Availability struct {
	Node              string
	AvailableChannels int
	UtilizationPct    int
}

/* ===================== CAPACITY PROBE ===================== */

// ResourceRequest probes remaining capacity. ok is false when the node
// cannot satisfy minNeeded channels (including the unset-capacity case) or
// the controller did not answer within the bounded wait.
func (n *Node) ResourceRequest(ctx context.Context, minNeeded int) (Availability, bool) {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	defer cancel()

	reply := make(chan probeReply, 1)
	if !n.post(ctx, probeReq{min: minNeeded, reply: reply}) {
		return Availability{}, false
	}
	select {
	case r := <-reply:
		return r.avail, r.ok
	case <-ctx.Done():
		return Availability{}, false
	}
}

// handleProbe runs on the actor loop. The probe path has no capacity
// default: an unset ceiling means no capacity to offer.
func (n *Node) handleProbe(minNeeded int) probeReply {
	maxChannels := n.opts.MaxChannels
	active := n.stats.ActiveChannels()
	available := maxChannels - active
	if minNeeded > available {
		return probeReply{}
	}
	return probeReply{
		avail: Availability{
			Node:              n.identity.String(),
			AvailableChannels: available,
			UtilizationPct:    utilizationPct(active, maxChannels),
		},
		ok: true,
	}
}

func utilizationPct(active, maxChannels int) int {
	if maxChannels <= 0 {
		return 0
	}
	return int(math.Round(float64(active) / float64(maxChannels) * 100))
}

/* ===================== ORIGINATION ===================== */

// ResourceConsume originates a call against this node's remaining capacity.
// Exactly one terminal result is produced: the Consumed reply or a
// *ResourceError. The wait is bounded; a silent switch yields the timeout
// reason.
func (n *Node) ResourceConsume(ctx context.Context, req ConsumeRequest) (Consumed, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeouts.consume)
	defer cancel()

	reply := make(chan consumeReply, 1)
	if !n.post(ctx, consumeReq{req: req, reply: reply}) {
		return Consumed{}, &ResourceError{Reason: reasonTimeout}
	}
	select {
	case r := <-reply:
		if r.err != nil {
			return Consumed{}, r.err
		}
		return r.consumed, nil
	case <-ctx.Done():
		return Consumed{}, &ResourceError{Reason: reasonTimeout}
	}
}

// handleConsume runs on the actor loop: admission first, then the switch
// round trip detached so the mailbox stays free.
func (n *Node) handleConsume(ctx context.Context, m consumeReq) {
	maxChannels := n.opts.MaxChannels
	if maxChannels <= 0 {
		// Deliberately conservative: an unconfigured ceiling admits one
		// channel, not unlimited.
		maxChannels = 1
	}
	available := maxChannels - n.stats.ActiveChannels()

	minNeeded := n.opts.MinChannelsRequested
	if v := m.req.Attributes[AttrMinChannelsRequired]; v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			minNeeded = parsed
		}
	}
	if minNeeded < 1 {
		minNeeded = 1
	}

	if available < minNeeded {
		m.reply <- consumeReply{err: &ResourceError{Reason: reasonNoCapacity}}
		return
	}

	go n.originate(ctx, m.req, available, m.reply)
}

// originate submits the composed command as a background job, correlates the
// terminal reply by job id, and attaches call control on success. Runs
// detached; replies directly to the requester.
func (n *Node) originate(ctx context.Context, req ConsumeRequest, available int, reply chan<- consumeReply) {
	args := buildOriginateArgs(req)

	submitCtx, cancel := context.WithTimeout(ctx, n.timeouts.op)
	jobID, err := n.client.BGAPI(submitCtx, "originate", args)
	cancel()
	if err != nil {
		n.log.Warn("originate submit failed", "err", err)
		reply <- consumeReply{err: &ResourceError{Reason: submitReason(err)}}
		return
	}

	jobCh, cancelJob := n.jobs.Await(jobID)
	defer cancelJob()

	select {
	case r := <-jobCh:
		if !r.OK {
			reply <- consumeReply{err: &ResourceError{Reason: stripErrFraming(r.Payload)}}
			return
		}
		callID := stripOKFraming(r.Payload)
		consumed, rerr := n.attachCallControl(callID, available)
		if rerr != nil {
			reply <- consumeReply{err: rerr}
			return
		}
		reply <- consumeReply{consumed: consumed}
	case <-time.After(n.timeouts.originate):
		reply <- consumeReply{err: &ResourceError{Reason: reasonTimeout}}
	case <-ctx.Done():
		reply <- consumeReply{err: &ResourceError{Reason: reasonTimeout}}
	}
}

// attachCallControl starts the per-call workers. Origination already
// succeeded at the switch by this point, so a worker failure is reported to
// the requester rather than silently dropped.
func (n *Node) attachCallControl(callID string, available int) (Consumed, *ResourceError) {
	if n.deps.Sessions == nil {
		return Consumed{}, &ResourceError{Reason: reasonControlAttach}
	}
	worker, err := n.deps.Sessions.StartControlWorker(n.identity, callID)
	if err != nil {
		n.log.Error("control worker start failed", "call_id", callID, "err", err)
		return Consumed{}, &ResourceError{Reason: reasonControlAttach}
	}
	if err := n.deps.Sessions.StartEventWorker(n.identity, callID); err != nil {
		n.log.Error("event worker start failed", "call_id", callID, "err", err)
		return Consumed{}, &ResourceError{Reason: reasonControlAttach}
	}
	return Consumed{
		CallID:            callID,
		ControlQueue:      worker.QueueHandle(),
		AvailableChannels: available - 1,
	}, nil
}

func submitReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, switchio.ErrTimeout) {
		return reasonTimeout
	}
	return err.Error()
}

// Background-job payloads are framed "+OK <result>" / "-ERR <message>"; the
// useful part is everything past the fixed marker.
func stripOKFraming(payload string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), "+OK"))
}

func stripErrFraming(payload string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), "-ERR"))
}

/* ===================== COMMAND BUILD ===================== */

const errorAction = "&error"

// buildOriginateArgs composes the originate argument: channel variables,
// the destination route, and the action clause for the requested
// application.
func buildOriginateArgs(req ConsumeRequest) string {
	vars := append(unsetVars(req.Attributes), channelVars(req.Attributes)...)

	var b strings.Builder
	if len(vars) > 0 {
		b.WriteString("{")
		b.WriteString(strings.Join(vars, ","))
		b.WriteString("}")
	}
	b.WriteString(req.Route)
	b.WriteString(" ")
	b.WriteString(originateAction(req))
	return b.String()
}

// channelVarNames maps attribute keys to their switch channel variables.
var channelVarNames = map[string]string{
	AttrCallerIDName:     "origination_caller_id_name",
	AttrCallerIDNumber:   "origination_caller_id_number",
	AttrTimeout:          "originate_timeout",
	AttrIgnoreEarlyMedia: "ignore_early_media",
}

func channelVars(attrs map[string]string) []string {
	var vars []string
	for key, value := range attrs {
		if value == "" {
			continue
		}
		if name, ok := channelVarNames[key]; ok {
			vars = append(vars, name+"="+value)
			continue
		}
		if strings.HasPrefix(key, attrVarPrefix) {
			vars = append(vars, strings.TrimPrefix(key, attrVarPrefix)+"="+value)
		}
	}
	sort.Strings(vars)
	return vars
}

// unsetVars computes the channel variables to strip from the originated leg:
// everything present in the full export set but not named in the explicit
// per-call export list. Names split on the first "=" only; a value
// containing "=" keeps its tail.
func unsetVars(attrs map[string]string) []string {
	full := splitCommaList(attrs[AttrExportVars])
	if len(full) == 0 {
		return nil
	}
	explicit := make(map[string]struct{})
	for _, name := range splitCommaList(attrs[AttrExportedVars]) {
		explicit[name] = struct{}{}
	}

	var out []string
	for _, entry := range full {
		name, _, _ := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := explicit[name]; ok {
			continue
		}
		out = append(out, "unset:"+name)
	}
	return out
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// originateAction picks the action clause: transfer and bridge get inline
// targets, everything else parks the call for later control. Any target we
// cannot build yields the literal error action, never a malformed command.
func originateAction(req ConsumeRequest) string {
	switch req.Attributes[AttrApplication] {
	case "transfer":
		target := req.Attributes[AttrApplicationData]
		if target == "" {
			return errorAction
		}
		return "&transfer(" + ToE164(target) + " XML default)"
	case "bridge":
		endpoint, err := buildBridgeEndpoint(
			req.Attributes[AttrApplicationData],
			req.Attributes[AttrInviteFormat],
		)
		if err != nil {
			return errorAction
		}
		return "&bridge(" + endpoint + ")"
	default:
		return "&park"
	}
}

var errNoEndpoint = errors.New("fsnode: no reachable endpoint")

// buildBridgeEndpoint turns application data plus its invite-format hint
// into a dialable endpoint.
func buildBridgeEndpoint(data, inviteFormat string) (string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", errNoEndpoint
	}
	switch inviteFormat {
	case "route":
		// Already a full dial string.
		return data, nil
	case "e164", "":
		return "loopback/" + ToE164(data) + "/context_2", nil
	default:
		return "", errNoEndpoint
	}
}

// ToE164 normalizes NANP-shaped numbers to E.164. Anything it does not
// recognize passes through unchanged.
func ToE164(num string) string {
	num = strings.TrimSpace(num)
	if strings.HasPrefix(num, "+") {
		return num
	}
	digits := true
	for _, r := range num {
		if r < '0' || r > '9' {
			digits = false
			break
		}
	}
	if !digits {
		return num
	}
	switch {
	case len(num) == 11 && num[0] == '1':
		return "+" + num
	case len(num) == 10:
		return "+1" + num
	default:
		return num
	}
}
