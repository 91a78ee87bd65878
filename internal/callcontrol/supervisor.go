package callcontrol

import (
	"errors"
	"log/slog"
	"sync"

	"callmgr/internal/fsnode"

	"github.com/google/uuid"
)

// Supervisor owns the per-call workers started after a successful
// origination and the lookup used to route transfer notices to them.
//
// A call usually carries one control worker (owning the call's command
// queue) and one event worker; both are registered under the call id, which
// doubles as the transfer correlation id.

// Command is one message delivered on a worker's queue.
type Command struct {
	Name   string
	Fields map[string]string
}

var (
	ErrAtCapacity    = errors.New("callcontrol: worker capacity reached")
	ErrUnknownWorker = errors.New("callcontrol: unknown worker")
)

type deliverer interface {
	fsnode.SessionWorker
	deliver(Command) bool
	close()
}

type Supervisor struct {
	mu      sync.Mutex
	workers map[string][]deliverer

	// maxCalls bounds concurrent tracked calls; zero means unbounded.
	maxCalls int

	log *slog.Logger
}

func NewSupervisor(maxCalls int, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		workers:  make(map[string][]deliverer),
		maxCalls: maxCalls,
		log:      log,
	}
}

// StartControlWorker starts the command-queue owner for one call.
func (s *Supervisor) StartControlWorker(node fsnode.Identity, callID string) (fsnode.ControlWorker, error) {
	if callID == "" {
		return nil, ErrUnknownWorker
	}
	w := &ControlWorker{
		id:     uuid.NewString(),
		node:   node.String(),
		callID: callID,
		queue:  make(chan Command, 64),
	}
	if err := s.register(callID, w); err != nil {
		return nil, err
	}
	s.log.Debug("control worker started", "call_id", callID, "queue", w.QueueHandle())
	return w, nil
}

// StartEventWorker starts the per-call event consumer.
func (s *Supervisor) StartEventWorker(node fsnode.Identity, callID string) error {
	if callID == "" {
		return ErrUnknownWorker
	}
	w := &EventWorker{
		id:     uuid.NewString(),
		node:   node.String(),
		callID: callID,
		queue:  make(chan Command, 64),
	}
	return s.register(callID, w)
}

func (s *Supervisor) register(callID string, w deliverer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tracked := s.workers[callID]; !tracked && s.maxCalls > 0 && len(s.workers) >= s.maxCalls {
		return ErrAtCapacity
	}
	s.workers[callID] = append(s.workers[callID], w)
	return nil
}

// Release drops every worker registered under a call id, typically once the
// call has ended.
func (s *Supervisor) Release(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers[callID] {
		w.close()
	}
	delete(s.workers, callID)
}

// FindWorkers returns the workers registered under a correlation id. A miss
// is not an error; the call may have already ended.
func (s *Supervisor) FindWorkers(correlationID string) ([]fsnode.SessionWorker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.workers[correlationID]
	if len(ws) == 0 {
		return nil, false
	}
	out := make([]fsnode.SessionWorker, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out, true
}

// NotifyTransferer delivers a transfer notice to the transferring party's
// worker. Delivery is non-blocking; a full queue drops the notice.
func (s *Supervisor) NotifyTransferer(w fsnode.SessionWorker, fields map[string]string) {
	s.notify(w, Command{Name: "transferer", Fields: fields})
}

// NotifyTransferee delivers the transfer-target notice.
func (s *Supervisor) NotifyTransferee(w fsnode.SessionWorker, fields map[string]string) {
	s.notify(w, Command{Name: "transferee", Fields: fields})
}

func (s *Supervisor) notify(w fsnode.SessionWorker, cmd Command) {
	d, ok := w.(deliverer)
	if !ok {
		return
	}
	if !d.deliver(cmd) {
		s.log.Warn("worker queue full, notice dropped", "call_id", w.CallID(), "name", cmd.Name)
	}
}

// TrackedCalls reports the number of calls with live workers.
func (s *Supervisor) TrackedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
