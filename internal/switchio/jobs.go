package switchio

import (
	"sync"
	"time"
)

// Jobs correlates background-job submissions with their terminal replies.
//
// Delivery is at-most-once: a reply goes to the registered waiter if there is
// one, is stashed briefly for a waiter that has not registered yet (BGAPI
// returns the job id before the waiter can call Await, so the reply can win
// the race), and is otherwise dropped. A reply arriving after the waiter
// canceled is discarded; the canceled id is tombstoned so the reply is not
// stashed for an unrelated later waiter.
type Jobs struct {
	mu       sync.Mutex
	waiters  map[string]chan JobReply
	stash    map[string]stashedReply
	canceled map[string]time.Time

	clock func() time.Time
}

type stashedReply struct {
	reply JobReply
	at    time.Time
}

// stashTTL bounds how long an unclaimed reply is kept.
const stashTTL = 30 * time.Second

func NewJobs() *Jobs {
	return &Jobs{
		waiters:  make(map[string]chan JobReply),
		stash:    make(map[string]stashedReply),
		canceled: make(map[string]time.Time),
		clock:    time.Now,
	}
}

// Await registers interest in a job id. The returned channel receives at most
// one reply. cancel must be called when the caller stops listening; a reply
// arriving after that is discarded.
func (j *Jobs) Await(jobID string) (<-chan JobReply, func()) {
	ch := make(chan JobReply, 1)

	j.mu.Lock()
	// A fresh registration supersedes any earlier cancellation of this id.
	delete(j.canceled, jobID)
	if s, ok := j.stash[jobID]; ok {
		delete(j.stash, jobID)
		j.mu.Unlock()
		ch <- s.reply
		return ch, func() {}
	}
	j.waiters[jobID] = ch
	j.mu.Unlock()

	return ch, func() {
		j.mu.Lock()
		delete(j.waiters, jobID)
		delete(j.stash, jobID)
		j.canceled[jobID] = j.clock()
		j.mu.Unlock()
	}
}

// Complete routes a terminal reply to its waiter, or stashes it for a waiter
// that is still registering. A reply for a canceled id is dropped outright.
func (j *Jobs) Complete(r JobReply) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.evictLocked()

	if ch, ok := j.waiters[r.JobID]; ok {
		delete(j.waiters, r.JobID)
		select {
		case ch <- r:
		default:
		}
		return
	}
	if _, ok := j.canceled[r.JobID]; ok {
		delete(j.canceled, r.JobID)
		return
	}
	j.stash[r.JobID] = stashedReply{reply: r, at: j.clock()}
}

func (j *Jobs) evictLocked() {
	cutoff := j.clock().Add(-stashTTL)
	for id, s := range j.stash {
		if s.at.Before(cutoff) {
			delete(j.stash, id)
		}
	}
	for id, at := range j.canceled {
		if at.Before(cutoff) {
			delete(j.canceled, id)
		}
	}
}

// Pending reports the number of registered waiters.
func (j *Jobs) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.waiters)
}
