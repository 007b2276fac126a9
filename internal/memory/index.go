package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/nexuscore/agentcore/pkg/models"
)

// Index is the MemoryIndex adapter: a vector-search backend is treated as
// opaque per spec, so this ships a lexical-fallback implementation (grounded
// on the teacher's models.SearchRequest/SearchResponse vector-search wire
// shapes in pkg/models/memory.go) that any real embedding-backed VectorIndex
// can be substituted for behind the same interface.
type Index interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	Upsert(ctx context.Context, entry *models.MemoryEntry) error
}

// LexicalIndex is an in-memory substring-matching fallback MemoryIndex,
// used when no vector backend is configured.
type LexicalIndex struct {
	mu      sync.RWMutex
	entries []*models.MemoryEntry
}

// NewLexicalIndex builds an empty index.
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{}
}

// Upsert stores or replaces an entry by ID.
func (l *LexicalIndex) Upsert(_ context.Context, entry *models.MemoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.ID == entry.ID {
			l.entries[i] = entry
			return nil
		}
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Search ranks entries by substring hit count against req.Query, scoped by
// req.Scope/ScopeID when set.
func (l *LexicalIndex) Search(_ context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	q := strings.ToLower(req.Query)
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*models.SearchResult
	for _, e := range l.entries {
		if req.ScopeID != "" && !scopeMatches(e, req.Scope, req.ScopeID) {
			continue
		}
		content := strings.ToLower(e.Content)
		if q == "" || strings.Contains(content, q) {
			score := float32(0.5)
			if strings.Contains(content, q) && q != "" {
				score = 1.0
			}
			results = append(results, &models.SearchResult{Entry: e, Score: score})
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return &models.SearchResponse{Results: results, TotalCount: len(results)}, nil
}

func scopeMatches(e *models.MemoryEntry, scope models.MemoryScope, scopeID string) bool {
	switch scope {
	case models.ScopeSession:
		return e.SessionID == scopeID
	case models.ScopeChannel:
		return e.ChannelID == scopeID
	case models.ScopeAgent:
		return e.AgentID == scopeID
	default:
		return true
	}
}
