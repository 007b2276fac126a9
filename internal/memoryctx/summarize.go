package memoryctx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/memory"
	"github.com/nexuscore/agentcore/pkg/models"
)

// SummaryInterval is the message-count delta that triggers auto-summarization.
const SummaryInterval = 10

// MetaSummarizer is the fast meta-model call used for short-term
// summarization; callers bind it to a concrete provider/model.
type MetaSummarizer interface {
	Summarize(ctx context.Context, transcript string) (summary string, longTermMemory string, err error)
}

// ShouldSummarize reports whether the trigger condition is met:
// len(messages) - lastSummaryIndex >= SummaryInterval.
func ShouldSummarize(messageCount, lastSummaryIndex int) bool {
	return messageCount-lastSummaryIndex >= SummaryInterval
}

const maxToolMessageChars = 300

// BuildTranscript renders the non-empty messages from [from:to) into a
// plain transcript, truncating tool messages to 300 chars.
func BuildTranscript(msgs []models.Message, from, to int) string {
	var b strings.Builder
	for i := from; i < to && i < len(msgs); i++ {
		m := msgs[i]
		text := m.Text()
		if text == "" {
			continue
		}
		if m.Role == models.RoleTool && len(text) > maxToolMessageChars {
			text = text[:maxToolMessageChars] + "... [truncated]"
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// MaybeSummarize runs the trigger check and, if due, asks the meta-model
// (under a 5-6s timeout) for {summary, long_term_memory}. On success the
// summary is appended to today's short-term bucket and a non-empty
// long_term_memory is written to the vector index at
// long_term/<session_id>/auto_<end_idx>.
//
// In all cases (success, error, or timeout) last_summary_index is advanced
// to end_idx. This is intentional anti-loop behavior preserved from the
// source: a failed summarization silently discards the segment rather than
// re-attempting it every subsequent turn (see DESIGN.md Open Question #3).
func MaybeSummarize(ctx context.Context, summarizer MetaSummarizer, shortTerm *memory.ShortTermStore, idx memory.Index, sessionID string, msgs []models.Message, lastSummaryIndex int) (newLastSummaryIndex int) {
	endIdx := len(msgs)
	if !ShouldSummarize(endIdx, lastSummaryIndex) {
		return lastSummaryIndex
	}

	transcript := BuildTranscript(msgs, lastSummaryIndex, endIdx)

	cctx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()

	summary, longTerm, err := summarizer.Summarize(cctx, transcript)
	if err == nil && strings.TrimSpace(summary) != "" {
		shortTerm.Append(sessionID, summary, lastSummaryIndex, endIdx)
		if strings.TrimSpace(longTerm) != "" && idx != nil {
			_ = idx.Upsert(ctx, &models.MemoryEntry{
				ID:        "long_term/" + sessionID + "/auto_" + strconv.Itoa(endIdx),
				SessionID: sessionID,
				Content:   longTerm,
				Metadata:  models.MemoryMetadata{Source: "summary"},
			})
		}
	}

	return endIdx
}
