// Package memoryctx builds the run's memory context block (§4.11) by fanning
// out to RelationshipMemory and MemoryIndex concurrently, and the short-term
// auto-summarization trigger (§4.10). Grounded on internal/memory's stores
// and the teacher's goroutine+channel fan-out idiom in internal/agent/loop.go.
package memoryctx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nexuscore/agentcore/internal/memory"
	"github.com/nexuscore/agentcore/pkg/models"
)

const (
	relationshipTopK = 3
	indexTopK        = 2
)

// Block is the assembled memory context ready to embed in the system
// prompt, plus counters for the run's metadata.
type Block struct {
	Text                   string
	RelationshipMemoryUsed int
	MemoryUsed             int
}

// Retrieve deduplicates queries (using the trimmed prompt if empty),
// concurrently searches RelationshipMemory (top 3) and the MemoryIndex
// (top 2) per query, deduplicates fragments, and prepends the relationship
// block when present.
func Retrieve(ctx context.Context, rel *memory.RelationshipStore, idx memory.Index, queries []string, prompt string, activeContextFiles []string, channelContext string) Block {
	queries = dedupeQueries(queries)
	if len(queries) == 0 {
		if t := strings.TrimSpace(prompt); t != "" {
			queries = []string{t}
		}
	}

	var mu sync.Mutex
	var relFacts []*models.RelationshipFact
	var idxFragments []string
	seenFacts := map[string]bool{}
	seenFragments := map[string]bool{}

	var wg sync.WaitGroup
	for _, q := range queries {
		q := q
		wg.Add(2)
		go func() {
			defer wg.Done()
			facts := rel.Search(q, relationshipTopK)
			mu.Lock()
			for _, f := range facts {
				if !seenFacts[f.NormalizedFact] {
					seenFacts[f.NormalizedFact] = true
					relFacts = append(relFacts, f)
				}
			}
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			if idx == nil {
				return
			}
			resp, err := idx.Search(ctx, models.SearchRequest{Query: q, Limit: indexTopK})
			if err != nil || resp == nil {
				return
			}
			mu.Lock()
			for _, r := range resp.Results {
				if r.Entry == nil {
					continue
				}
				frag := strings.TrimSpace(r.Entry.Content)
				if frag != "" && !seenFragments[frag] {
					seenFragments[frag] = true
					idxFragments = append(idxFragments, frag)
				}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(relFacts, func(i, j int) bool { return relFacts[i].Confidence > relFacts[j].Confidence })

	var b strings.Builder
	if len(relFacts) > 0 {
		b.WriteString("--- RELATIONSHIP MEMORY (HIGH PRIORITY) ---\n")
		for _, f := range relFacts {
			fmt.Fprintf(&b, "- %s [tags: %s; confidence: %.2f; last_confirmed: %s]\n",
				f.Fact, strings.Join(f.Tags, ", "), f.Confidence, f.LastConfirmed.Format("2006-01-02"))
		}
	}
	for _, frag := range idxFragments {
		b.WriteString(frag)
		b.WriteString("\n")
	}
	if len(activeContextFiles) > 0 {
		fmt.Fprintf(&b, "[Active Context Files: %s]\n", strings.Join(activeContextFiles, ", "))
	}
	if channelContext != "" {
		b.WriteString(channelContext)
	}

	return Block{
		Text:                   b.String(),
		RelationshipMemoryUsed: len(relFacts),
		MemoryUsed:             len(idxFragments),
	}
}

func dedupeQueries(queries []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}
