package agentcontext

import (
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

func TestSanitizeIdempotent(t *testing.T) {
	msgs := []models.Message{
		models.NewSystem(""),
		models.NewUserText("hi"),
		models.NewAssistantText(""),
		models.NewAssistantText("hello"),
	}
	once := Sanitize(msgs)
	twice := Sanitize(once)
	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %d vs %d messages", len(once), len(twice))
	}
	for i := range once {
		if once[i].Text() != twice[i].Text() || once[i].Role != twice[i].Role {
			t.Fatalf("not idempotent at %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestSanitizeFirstNonSystemIsUser(t *testing.T) {
	msgs := []models.Message{
		models.NewSystem("sys"),
		models.NewAssistantText("hello"),
	}
	out := Sanitize(msgs)
	var firstNonSystem *models.Message
	for i := range out {
		if out[i].Role != models.RoleSystem {
			firstNonSystem = &out[i]
			break
		}
	}
	if firstNonSystem == nil || firstNonSystem.Role != models.RoleUser {
		t.Fatalf("expected synthetic User message, got %+v", firstNonSystem)
	}
}

func TestSanitizeToolRequiresPrecedingToolCallAssistant(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("hi"),
		models.NewToolResult("call-1", "read_file", "contents"),
	}
	out := Sanitize(msgs)
	for _, m := range out {
		if m.Role == models.RoleTool {
			t.Fatalf("orphaned tool message should be dropped, got %+v", m)
		}
	}
}

func TestSanitizeNoConsecutivePlainAssistant(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("hi"),
		models.NewAssistantText("one"),
		models.NewAssistantText("two"),
	}
	out := Sanitize(msgs)
	for i := 1; i < len(out); i++ {
		if out[i-1].Role == models.RoleAssistant && len(out[i-1].ToolCalls) == 0 &&
			out[i].Role == models.RoleAssistant && len(out[i].ToolCalls) == 0 {
			t.Fatalf("found two consecutive plain assistant messages at %d", i)
		}
	}
}

func TestSanitizeNoEmptyContent(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("hi"),
		models.NewAssistantText(""),
	}
	out := Sanitize(msgs)
	for _, m := range out {
		if m.Text() == "" && len(m.ToolCalls) == 0 {
			t.Fatalf("found message with empty content: %+v", m)
		}
	}
}

func TestFilterDeadResponsesProjection(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("please help"),
		models.NewAssistantText("(empty response)"),
		models.NewUserText("next"),
		models.NewAssistantText("real answer"),
	}
	once := FilterDeadResponses(msgs)
	twice := FilterDeadResponses(once)
	if len(once) != len(twice) {
		t.Fatalf("dead-response filter not a projection: %d vs %d", len(once), len(twice))
	}
}

func TestGroupMessagesKeepsToolCallsAtomic(t *testing.T) {
	assistant := models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "1", Name: "t"}}}
	msgs := []models.Message{
		models.NewUserText("go"),
		assistant,
		models.NewToolResult("1", "t", "result"),
	}
	groups := GroupMessages(msgs)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups (user, assistant+tool), got %d", len(groups))
	}
	if len(groups[1].Messages) != 2 {
		t.Fatalf("expected assistant+tool atomic group of 2, got %d", len(groups[1].Messages))
	}
}
