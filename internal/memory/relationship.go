package memory

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// RelationshipStore is the durable, structured store of "relationship"
// facts about a user, keyed by normalized_fact and upserted idempotently.
type RelationshipStore struct {
	mu    sync.RWMutex
	facts map[string]*models.RelationshipFact // normalized_fact -> fact
}

// NewRelationshipStore builds an empty store.
func NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{facts: make(map[string]*models.RelationshipFact)}
}

var collapseWhitespace = regexp.MustCompile(`\s+`)
var trailingPunct = regexp.MustCompile(`[.!?,;:]+$`)

// Normalize lowercases, collapses whitespace, and strips trailing
// punctuation, per spec §3.
func Normalize(fact string) string {
	n := strings.ToLower(strings.TrimSpace(fact))
	n = collapseWhitespace.ReplaceAllString(n, " ")
	n = trailingPunct.ReplaceAllString(n, "")
	return n
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Upsert records a fact, keyed on its normalized form. Idempotent: calling
// with the same fact twice yields one stored entry with Confirmations >= 2.
// On re-confirmation: tags union, Confirmations += 1, Confidence =
// clamp(max(old,new) + 0.03, 0, 1), LastConfirmed = today.
func (s *RelationshipStore) Upsert(fact string, tags []string, confidence float64, source string) *models.RelationshipFact {
	normalized := Normalize(fact)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.facts[normalized]
	if !ok {
		rf := &models.RelationshipFact{
			Fact:           fact,
			NormalizedFact: normalized,
			Tags:           append([]string(nil), tags...),
			Confidence:     clamp01(confidence),
			FirstConfirmed: now,
			LastConfirmed:  now,
			Confirmations:  1,
			Source:         source,
		}
		s.facts[normalized] = rf
		return rf
	}

	existing.Tags = unionTags(existing.Tags, tags)
	existing.Confirmations++
	existing.Confidence = clamp01(maxF(existing.Confidence, confidence) + 0.03)
	existing.LastConfirmed = now
	return existing
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Search returns up to limit facts whose Fact or Tags contain query
// (case-insensitive substring), ordered by Confidence descending.
func (s *RelationshipStore) Search(query string, limit int) []*models.RelationshipFact {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.RelationshipFact
	for _, rf := range s.facts {
		if strings.Contains(strings.ToLower(rf.Fact), q) || tagsContain(rf.Tags, q) {
			matches = append(matches, rf)
		}
	}
	sortByConfidenceDesc(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func tagsContain(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func sortByConfidenceDesc(facts []*models.RelationshipFact) {
	for i := 1; i < len(facts); i++ {
		for j := i; j > 0 && facts[j].Confidence > facts[j-1].Confidence; j-- {
			facts[j], facts[j-1] = facts[j-1], facts[j]
		}
	}
}

// All returns every stored fact (for persistence/export).
func (s *RelationshipStore) All() []*models.RelationshipFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RelationshipFact, 0, len(s.facts))
	for _, rf := range s.facts {
		out = append(out, rf)
	}
	return out
}
