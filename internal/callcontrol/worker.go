package callcontrol

import "sync"

// ControlWorker owns one call's command queue. The queue handle is the
// opaque routing handle a resource requester uses to steer the call.
type ControlWorker struct {
	id     string
	node   string
	callID string

	closeOnce sync.Once
	queue     chan Command
}

func (w *ControlWorker) CallID() string { return w.callID }

// QueueHandle returns the routing handle for this worker's queue.
func (w *ControlWorker) QueueHandle() string { return "callctl_" + w.id }

// Commands is the call's command stream.
func (w *ControlWorker) Commands() <-chan Command { return w.queue }

func (w *ControlWorker) deliver(cmd Command) bool {
	select {
	case w.queue <- cmd:
		return true
	default:
		return false
	}
}

func (w *ControlWorker) close() {
	w.closeOnce.Do(func() { close(w.queue) })
}

// EventWorker consumes one call's event stream.
type EventWorker struct {
	id     string
	node   string
	callID string

	closeOnce sync.Once
	queue     chan Command
}

func (w *EventWorker) CallID() string { return w.callID }

// Events is the call's event stream.
func (w *EventWorker) Events() <-chan Command { return w.queue }

func (w *EventWorker) deliver(cmd Command) bool {
	select {
	case w.queue <- cmd:
		return true
	default:
		return false
	}
}

func (w *EventWorker) close() {
	w.closeOnce.Do(func() { close(w.queue) })
}
