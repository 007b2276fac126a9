package execloop

import (
	"strings"

	"github.com/nexuscore/agentcore/pkg/models"
)

// placeholderParrots are model outputs that must be treated as empty (§4.7).
var placeholderParrots = map[string]bool{
	"(empty response)": true,
	"(calling tools)":  true,
	"(thinking)":       true,
	"(continued)":      true,
	"(system)":         true,
}

// IsHallucinatedToolText detects a model describing a tool call in prose
// instead of emitting a real tool_calls entry.
func IsHallucinatedToolText(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "**tool call**") {
		return true
	}
	if strings.Contains(lower, "executing tool") && len(text) < 200 {
		return true
	}
	return false
}

// NormalizeTextResponse returns the effective text for a text-response turn:
// placeholder-parroted content is treated as empty.
func NormalizeTextResponse(text string) string {
	if placeholderParrots[strings.TrimSpace(strings.ToLower(text))] {
		return ""
	}
	return text
}

// maxNudges bounds the empty-response nudge loop.
const maxNudges = 3

// NudgeText builds the nudge appended when the model returns an empty
// response, worded differently depending on whether a Tool result already
// appears earlier in the turn history.
func NudgeText(historyHasToolResult bool) string {
	if historyHasToolResult {
		return "You already have tool results above. Please summarize them into a final answer now."
	}
	return "Your previous response was empty. Please respond with the answer to the user's request now."
}

// HallucinatedToolTrapPrompt is appended when hallucinated tool text is
// detected, instructing the model to use the real tool-call mechanism.
const HallucinatedToolTrapPrompt = "Do not describe tool calls in text. If a tool is needed, invoke it using the real tool-calling mechanism."

// FallbackAnswer is the canned text substituted when the loop exhausts its
// nudges without a usable response.
const FallbackAnswer = "I wasn't able to generate a response. Please try again or rephrase your request."

// historyHasToolResult reports whether any Tool message appears in msgs.
func historyHasToolResult(msgs []models.Message) bool {
	for _, m := range msgs {
		if m.Role == models.RoleTool {
			return true
		}
	}
	return false
}
