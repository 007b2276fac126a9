package agentcontext

import "github.com/nexuscore/agentcore/pkg/models"

// Sanitize applies the final-pass rules that satisfy strict providers'
// turn-ordering constraints (§4.2). It is idempotent: sanitize(sanitize(xs))
// == sanitize(xs).
func Sanitize(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))

	// Leading System messages pass through (empty ones become "(system)").
	i := 0
	for ; i < len(msgs) && msgs[i].Role == models.RoleSystem; i++ {
		m := msgs[i]
		if m.Text() == "" {
			m.Content = "(system)"
		}
		out = append(out, m)
	}

	// First non-system message must be User.
	if i < len(msgs) && msgs[i].Role != models.RoleUser {
		out = append(out, models.NewUserText("(continued conversation)"))
	} else if i >= len(msgs) {
		// No non-system content at all; still require a leading User turn.
		out = append(out, models.NewUserText("(continued conversation)"))
	}

	rest := msgs[i:]
	for idx := 0; idx < len(rest); idx++ {
		m := rest[idx]

		switch m.Role {
		case models.RoleTool:
			if len(out) == 0 || !out[len(out)-1].HasToolCalls() {
				continue // dropped: no preceding Assistant(tool_calls)
			}
			if m.Text() == "" {
				m.Content = "(empty result)"
			}
			out = append(out, m)

		case models.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				// Only emitted together with its immediately-following Tool* run.
				hasToolFollow := idx+1 < len(rest) && rest[idx+1].Role == models.RoleTool
				if !hasToolFollow {
					m.ToolCalls = nil
					if m.Text() == "" {
						m.Content = "(no response)"
					}
					m = mergeIfConsecutiveAssistant(&out, m)
					out = append(out, m)
					continue
				}
				if m.Text() == "" {
					m.Content = "(calling tools)"
				}
				out = append(out, m)
				continue
			}
			// Plain assistant: merge with an immediately preceding plain
			// assistant message instead of emitting two in a row.
			m = mergeIfConsecutiveAssistant(&out, m)
			out = append(out, m)

		default:
			out = append(out, m)
		}
	}

	// Final pass: no message has empty content.
	for idx := range out {
		if out[idx].Text() == "" && len(out[idx].ToolCalls) == 0 {
			out[idx].Content = placeholderFor(out[idx].Role)
		}
	}

	return out
}

// mergeIfConsecutiveAssistant merges m into the tail of out if the tail is
// also a plain (non-tool-call) Assistant message, returning the message to
// append (either the merged replacement, with the old tail popped, or m
// itself unchanged).
func mergeIfConsecutiveAssistant(out *[]models.Message, m models.Message) models.Message {
	o := *out
	if len(o) == 0 {
		return m
	}
	last := o[len(o)-1]
	if last.Role != models.RoleAssistant || len(last.ToolCalls) > 0 || len(m.ToolCalls) > 0 {
		return m
	}
	merged := last
	merged.Content = last.Text() + "\n" + m.Text()
	*out = o[:len(o)-1]
	return merged
}

func placeholderFor(role models.Role) string {
	switch role {
	case models.RoleTool:
		return "(empty result)"
	case models.RoleAssistant:
		return "(calling tools)"
	case models.RoleSystem:
		return "(system)"
	default:
		return "(empty message)"
	}
}
