package agentcontext

import "github.com/nexuscore/agentcore/pkg/models"

// Group is an atomic windowing unit: either [Assistant(tool_calls)] ++
// subsequent Tool* messages, or a single non-tool-call message. A group is
// never split across the token-budget boundary.
type Group struct {
	Messages []models.Message
}

// GroupMessages partitions msgs into atomic groups in original order.
func GroupMessages(msgs []models.Message) []Group {
	var groups []Group
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		if m.HasToolCalls() {
			g := Group{Messages: []models.Message{m}}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == models.RoleTool {
				g.Messages = append(g.Messages, msgs[j])
				j++
			}
			groups = append(groups, g)
			i = j
			continue
		}
		groups = append(groups, Group{Messages: []models.Message{m}})
		i++
	}
	return groups
}

// Flatten concatenates a slice of groups back into a flat message list,
// preserving order.
func Flatten(groups []Group) []models.Message {
	var out []models.Message
	for _, g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}

// maxMessageWindow bounds the number of atomic groups windowed in.
const maxMessageWindow = 10

// EstimateTokens approximates token count as len(s)/4, per spec §4.2.
func EstimateTokens(s string) int {
	return len(s) / 4
}

func groupTokens(g Group) int {
	total := 0
	for _, m := range g.Messages {
		total += EstimateTokens(m.Text())
	}
	return total
}

// Budget computes the token budget available for history, per spec §4.2:
// reserved = est(systemPrompt) + est(newPrompt) + 4000; budget = max(maxTokens
// - reserved, 8000).
func Budget(maxTokens int, systemPrompt, newPrompt string) int {
	reserved := EstimateTokens(systemPrompt) + EstimateTokens(newPrompt) + 4000
	budget := maxTokens - reserved
	if budget < 8000 {
		budget = 8000
	}
	return budget
}

// WindowGroups selects, from the tail backward, whole groups until either
// adding the next group would exceed budget (with at least one group
// selected), or the group count reaches maxMessageWindow. Never splits a
// tool-call group.
func WindowGroups(groups []Group, budget int) []Group {
	var selected []Group
	used := 0
	for i := len(groups) - 1; i >= 0 && len(selected) < maxMessageWindow; i-- {
		t := groupTokens(groups[i])
		if len(selected) > 0 && used+t > budget {
			break
		}
		selected = append([]Group{groups[i]}, selected...)
		used += t
	}
	return selected
}

// OptimizeContext windows msgs within a token budget derived from maxTokens,
// systemPrompt and the new user prompt, never splitting a tool-call group.
func OptimizeContext(msgs []models.Message, maxTokens int, systemPrompt, newPrompt string) []models.Message {
	filtered := FilterDeadResponses(msgs)
	groups := GroupMessages(filtered)
	budget := Budget(maxTokens, systemPrompt, newPrompt)
	windowed := WindowGroups(groups, budget)
	return Flatten(windowed)
}
