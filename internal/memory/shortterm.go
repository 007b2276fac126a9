// Package memory implements the short-term daily-bucketed summary store and
// the durable relationship-fact store, grounded on the teacher's
// internal/memory/manager.go persistence idiom and internal/sessions'
// expiry.go age-based pruning, generalized to the spec's exact bucket/expiry
// and upsert semantics.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// ShortTermStore persists one daily bucket of conversation summaries per
// session, pruning entries older than models.ShortTermExpiry and removing
// empty buckets.
type ShortTermStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]*models.ShortTermMemory // sessionID -> date -> bucket
}

// NewShortTermStore builds an empty store.
func NewShortTermStore() *ShortTermStore {
	return &ShortTermStore{buckets: make(map[string]map[string]*models.ShortTermMemory)}
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Append adds a summary entry to today's bucket for sessionID.
func (s *ShortTermStore) Append(sessionID, summary string, msgStart, msgEnd int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	day := dateKey(now)
	if s.buckets[sessionID] == nil {
		s.buckets[sessionID] = make(map[string]*models.ShortTermMemory)
	}
	bucket, ok := s.buckets[sessionID][day]
	if !ok {
		bucket = &models.ShortTermMemory{SessionID: sessionID, Date: day}
		s.buckets[sessionID][day] = bucket
	}
	bucket.Memories = append(bucket.Memories, models.ShortTermEntry{
		Summary:  summary,
		Ts:       now,
		MsgRange: [2]int{msgStart, msgEnd},
	})
}

// Expire drops entries older than models.ShortTermExpiry across all of a
// session's buckets and removes buckets left empty.
func (s *ShortTermStore) Expire(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-models.ShortTermExpiry)
	days := s.buckets[sessionID]
	for day, bucket := range days {
		kept := bucket.Memories[:0:0]
		for _, e := range bucket.Memories {
			if e.Ts.After(cutoff) {
				kept = append(kept, e)
			}
		}
		bucket.Memories = kept
		if len(bucket.Memories) == 0 {
			delete(days, day)
		}
	}
	if len(days) == 0 {
		delete(s.buckets, sessionID)
	}
}

// ExpireAll runs Expire across every known session.
func (s *ShortTermStore) ExpireAll() {
	s.mu.Lock()
	sessions := make([]string, 0, len(s.buckets))
	for id := range s.buckets {
		sessions = append(sessions, id)
	}
	s.mu.Unlock()
	for _, id := range sessions {
		s.Expire(id)
	}
}

// Recent returns every non-expired summary for sessionID across all
// buckets, ordered oldest-first.
func (s *ShortTermStore) Recent(sessionID string) []models.ShortTermEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ShortTermEntry
	for _, bucket := range s.buckets[sessionID] {
		out = append(out, bucket.Memories...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out
}
