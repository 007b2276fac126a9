// Package agentcontext implements the ContextManager: dead-response
// filtering, atomic tool-call grouping, token-budget windowing, file-context
// rendering, and provider-strictness sanitization, grounded on the teacher's
// internal/compaction token-estimation idiom and internal/agent's turn-loop
// assumptions about message shape.
package agentcontext

import (
	"strings"

	"github.com/nexuscore/agentcore/pkg/models"
)

// deadExact is the fixed exact-match set of placeholder/failure strings a
// standalone assistant message is dead if it equals (trimmed, lowercased).
var deadExact = map[string]bool{
	"(empty response)":              true,
	"[no response was generated]":   true,
	"(thinking)":                    true,
	"(continued)":                   true,
	"(system)":                      true,
	"(calling tools)":                true,
	"i wasn't able to generate a response. please try again or rephrase your request.": true,
}

// deadSubstrings is the fixed substring set indicating deferral/permission
// requests; only applies when content is also shorter than 400 chars.
var deadSubstrings = []string{
	"i need your permission",
	"i would need",
	"please provide",
	"error communicating with",
}

// IsDeadResponse reports whether a standalone assistant message (no
// tool_calls) is "dead": an exact placeholder match, or short content
// containing a deferral/permission-request substring.
func IsDeadResponse(m models.Message) bool {
	if m.Role != models.RoleAssistant || len(m.ToolCalls) > 0 {
		return false
	}
	trimmed := strings.ToLower(strings.TrimSpace(m.Text()))
	if deadExact[trimmed] {
		return true
	}
	if len(trimmed) < 400 {
		for _, s := range deadSubstrings {
			if strings.Contains(trimmed, s) {
				return true
			}
		}
	}
	return false
}

// FilterDeadResponses removes dead assistant messages and the preceding User
// message (if any) from the list. Applying it twice yields the same list
// (it is a projection), since the filtered result contains no dead messages
// to strip on a second pass.
func FilterDeadResponses(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if IsDeadResponse(m) {
			if len(out) > 0 && out[len(out)-1].Role == models.RoleUser {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, m)
	}
	return out
}
