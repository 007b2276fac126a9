// Package runqueue implements the global FIFO lane queue: a global
// concurrency semaphore plus per-session mutual exclusion, grounded on the
// teacher's internal/sessions/write_lock.go wait-then-acquire-with-recheck
// idiom.
package runqueue

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCancelled is returned by Acquire when the entry was cancelled while
// waiting.
var ErrCancelled = errors.New("runqueue: entry was cancelled")

// Entry is one request waiting for (or holding) a lane.
type Entry struct {
	RunID      string
	SessionID  string
	Source     string
	EnqueuedAt time.Time
	StartedAt  *time.Time
	Cancelled  bool

	elem *list.Element
}

// Lease is held by the caller while occupying a lane; Release must always
// be called.
type Lease struct {
	entry *Entry
}

// Queue is the global FIFO lane queue.
type Queue struct {
	mu             sync.Mutex
	cond           *sync.Cond
	pending        *list.List // *Entry, FIFO
	active         map[string]*Entry
	sessionActive  map[string]bool
	maxConcurrency int
	inFlight       int
}

// New builds a Queue with the given global concurrency width.
func New(maxConcurrency int) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	q := &Queue{
		pending:        list.New(),
		active:         make(map[string]*Entry),
		sessionActive:  make(map[string]bool),
		maxConcurrency: maxConcurrency,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a new Entry to the tail of the FIFO.
func (q *Queue) Enqueue(sessionID, source string) *Entry {
	e := &Entry{
		RunID:      uuid.NewString(),
		SessionID:  sessionID,
		Source:     source,
		EnqueuedAt: time.Now(),
	}
	q.mu.Lock()
	e.elem = q.pending.PushBack(e)
	q.reportMetricsLocked()
	q.mu.Unlock()
	return e
}

// isHead reports whether e is at the front of the pending FIFO. Caller must
// hold q.mu.
func (q *Queue) isHeadLocked(e *Entry) bool {
	front := q.pending.Front()
	return front != nil && front.Value.(*Entry) == e
}

// Acquire waits until e is at the queue head, a global slot is free, and
// e's session has no other active run, then takes the lane and returns a
// Lease. Contention causes the wait to loop (release nothing was held yet,
// just re-check). A cancelled entry returns ErrCancelled.
func (q *Queue) Acquire(ctx context.Context, e *Entry, timeout time.Duration) (*Lease, error) {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Time{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if e.Cancelled {
			return nil, ErrCancelled
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if q.isHeadLocked(e) && q.inFlight < q.maxConcurrency && !q.sessionActive[e.SessionID] {
			q.pending.Remove(e.elem)
			q.inFlight++
			q.sessionActive[e.SessionID] = true
			q.active[e.RunID] = e
			now := time.Now()
			e.StartedAt = &now
			q.reportMetricsLocked()
			return &Lease{entry: e}, nil
		}

		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, context.DeadlineExceeded
			}
			waitOnCond(q.cond, remaining)
		} else {
			q.cond.Wait()
		}
	}
}

// waitOnCond waits on cond for at most d (sync.Cond has no native timed
// wait, so a timer forces a spurious wake at the deadline).
func waitOnCond(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

// Release clears the session-active mapping and releases the global slot,
// waking any waiters.
func (q *Queue) Release(l *Lease) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.sessionActive, l.entry.SessionID)
	delete(q.active, l.entry.RunID)
	q.inFlight--
	q.reportMetricsLocked()
	q.cond.Broadcast()
}

// Cancel removes a pending entry by run ID; if it is currently blocked in
// Acquire, the cancellation is observed on the next wake.
func (q *Queue) Cancel(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for el := q.pending.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if e.RunID == runID {
			e.Cancelled = true
			q.pending.Remove(el)
			q.reportMetricsLocked()
			q.cond.Broadcast()
			return true
		}
	}
	return false
}

// Snapshot returns the active and pending entries.
func (q *Queue) Snapshot() (active []*Entry, pending []*Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.active {
		active = append(active, e)
	}
	for el := q.pending.Front(); el != nil; el = el.Next() {
		pending = append(pending, el.Value.(*Entry))
	}
	return active, pending
}
