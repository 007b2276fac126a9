// Package failover builds the ordered, advance-only model candidate chain a
// single run consumes, grounded on internal/agent/failover.go's
// ProviderState bookkeeping but replacing its circuit-breaker policy with
// the spec's deterministic ordering rule.
package failover

import (
	"sync"
	"time"
)

// Candidate is one (provider, model) pair in the chain.
type Candidate struct {
	Provider string
	ModelID  string
}

// Model describes one entry of the configured active-model list, including
// its alias memberships.
type Model struct {
	Provider string
	ModelID  string
	Aliases  []string // e.g. "default", "smart"
}

// AuditEntry records one advance() call.
type AuditEntry struct {
	Provider  string
	ModelID   string
	Reason    string
	Timestamp time.Time
}

// lastResortProviders lists providers only used when nothing else remains.
var lastResortProviders = map[string]bool{"ollama": true}

// Chain is the per-run, advance-only ordered candidate list.
type Chain struct {
	mu       sync.RWMutex
	order    []Candidate
	failed   []bool
	index    int
	audit    []AuditEntry
}

// Build constructs a Chain from the active model list, per spec §4.3:
// 1. explicit (provider, model) if active
// 2. alias "default"
// 3. alias "smart"
// 4. remaining active models not in last_resort
// 5. last-resort/local models
// 6. if fewer than 2 candidates result, augment with enabledDefaults
// Duplicates are removed by (provider, model_id).
func Build(active []Model, explicit *Candidate, enabledDefaults []Candidate) *Chain {
	seen := make(map[Candidate]bool)
	var order []Candidate

	add := func(c Candidate) {
		if seen[c] {
			return
		}
		seen[c] = true
		order = append(order, c)
	}

	byAlias := func(alias string) {
		for _, m := range active {
			for _, a := range m.Aliases {
				if a == alias {
					add(Candidate{m.Provider, m.ModelID})
				}
			}
		}
	}

	if explicit != nil {
		for _, m := range active {
			if m.Provider == explicit.Provider && m.ModelID == explicit.ModelID {
				add(*explicit)
				break
			}
		}
	}

	byAlias("default")
	byAlias("smart")

	for _, m := range active {
		if !lastResortProviders[m.Provider] {
			add(Candidate{m.Provider, m.ModelID})
		}
	}
	for _, m := range active {
		if lastResortProviders[m.Provider] {
			add(Candidate{m.Provider, m.ModelID})
		}
	}

	if len(order) < 2 {
		for _, c := range enabledDefaults {
			add(c)
		}
	}

	return &Chain{
		order:  order,
		failed: make([]bool, len(order)),
	}
}

// Current returns the candidate the chain is presently pointed at.
func (c *Chain) Current() (Candidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index >= len(c.order) {
		return Candidate{}, false
	}
	return c.order[c.index], true
}

// Advance marks the current candidate failed and moves to the next
// non-failed one, recording an audit entry. Returns false if exhausted.
// Monotonic: once an index is failed it is never current again until Reset.
func (c *Chain) Advance(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < len(c.order) {
		cur := c.order[c.index]
		c.failed[c.index] = true
		c.audit = append(c.audit, AuditEntry{Provider: cur.Provider, ModelID: cur.ModelID, Reason: reason, Timestamp: time.Now()})
	}
	for i := c.index + 1; i < len(c.order); i++ {
		if !c.failed[i] {
			c.index = i
			return true
		}
	}
	c.index = len(c.order)
	return false
}

// SkipToolUnfriendly advances past any candidates whose provider is in
// toolUnfriendly, without recording an audit entry (these aren't failures,
// just ineligible for this turn because tools are bound).
func (c *Chain) SkipToolUnfriendly(toolUnfriendly map[string]bool) (Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := c.index; i < len(c.order); i++ {
		if c.failed[i] {
			continue
		}
		if toolUnfriendly[c.order[i].Provider] {
			continue
		}
		return c.order[i], true
	}
	return Candidate{}, false
}

// Reset clears all failures and seeks back to the head of the chain.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.failed {
		c.failed[i] = false
	}
	c.index = 0
	c.audit = nil
}

// IsExhausted reports whether every candidate has failed.
func (c *Chain) IsExhausted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index >= len(c.order)
}

// Remaining returns the count of not-yet-failed candidates from the current
// index onward.
func (c *Chain) Remaining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for i := c.index; i < len(c.order); i++ {
		if !c.failed[i] {
			n++
		}
	}
	return n
}

// Audit returns a copy of the recorded advance() history.
func (c *Chain) Audit() []AuditEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AuditEntry, len(c.audit))
	copy(out, c.audit)
	return out
}
