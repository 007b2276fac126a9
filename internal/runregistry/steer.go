package runregistry

import "sync"

// steerInbox queues steering strings for a run. The data model (§3) calls it
// a bounded FIFO but §5's concurrency model says it is unbounded and merely
// drained once per turn; we implement the latter as authoritative since it
// governs backpressure behavior (see DESIGN.md Open Questions).
type steerInbox struct {
	mu    sync.Mutex
	items []string
}

// Push appends a steering message.
func (h *Handle) Push(msg string) {
	h.steer.mu.Lock()
	defer h.steer.mu.Unlock()
	h.steer.items = append(h.steer.items, msg)
}

// Drain returns and clears all queued steering messages, in FIFO order.
func (h *Handle) Drain() []string {
	h.steer.mu.Lock()
	defer h.steer.mu.Unlock()
	out := h.steer.items
	h.steer.items = nil
	return out
}
