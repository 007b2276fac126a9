package execloop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nexuscore/agentcore/internal/failover"
	"github.com/nexuscore/agentcore/internal/runregistry"
	"github.com/nexuscore/agentcore/pkg/models"
)

type stubModel struct {
	provider, modelID string
	responses         []models.Message
	calls             int
}

func (m *stubModel) BindTools(tools []ToolSpec) (ChatModel, error) { return m, nil }
func (m *stubModel) Provider() string                              { return m.provider }
func (m *stubModel) ModelID() string                                { return m.modelID }
func (m *stubModel) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	if m.calls >= len(m.responses) {
		return models.NewAssistantText("(no more responses)"), nil
	}
	r := m.responses[m.calls]
	m.calls++
	return r, nil
}

func newChain(t *testing.T) *failover.Chain {
	t.Helper()
	return failover.Build([]failover.Model{{Provider: "anthropic", ModelID: "claude", Aliases: []string{"default"}}}, nil, nil)
}

func newHandle(t *testing.T) (*runregistry.Registry, *runregistry.Handle) {
	t.Helper()
	reg := runregistry.New()
	h, err := reg.Register("sess-1", 25, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg, h
}

func TestRunSimpleTextResponse(t *testing.T) {
	model := &stubModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText("hello there"),
	}}
	reg, handle := newHandle(t)

	loop := New(Config{
		Resolve:           func(p, m string) (ChatModel, error) { return model, nil },
		Chain:             newChain(t),
		Registry:          reg,
		Handle:            handle,
		LLMTimeoutSeconds: 10,
	})

	res := loop.Run(context.Background(), RunInput{
		SessionID:    "sess-1",
		SystemPrompt: "be helpful",
		Prompt:       "hi",
	})

	if res.Response != "hello there" {
		t.Errorf("Response = %q, want %q", res.Response, "hello there")
	}
	if res.ModelUsed != "anthropic/claude" {
		t.Errorf("ModelUsed = %q", res.ModelUsed)
	}
}

func TestRunNudgesOnEmptyResponse(t *testing.T) {
	model := &stubModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText(""),
		models.NewAssistantText("(thinking)"),
		models.NewAssistantText("finally, an answer"),
	}}
	reg, handle := newHandle(t)

	loop := New(Config{
		Resolve:           func(p, m string) (ChatModel, error) { return model, nil },
		Chain:             newChain(t),
		Registry:          reg,
		Handle:            handle,
		LLMTimeoutSeconds: 10,
	})

	res := loop.Run(context.Background(), RunInput{SessionID: "sess-1", Prompt: "hi"})
	if res.Response != "finally, an answer" {
		t.Errorf("Response = %q, want nudged-through answer", res.Response)
	}
}

func TestRunFallsBackAfterMaxNudges(t *testing.T) {
	var responses []models.Message
	for i := 0; i < 10; i++ {
		responses = append(responses, models.NewAssistantText(""))
	}
	model := &stubModel{provider: "anthropic", modelID: "claude", responses: responses}
	reg, handle := newHandle(t)

	loop := New(Config{
		Resolve:           func(p, m string) (ChatModel, error) { return model, nil },
		Chain:             newChain(t),
		Registry:          reg,
		Handle:            handle,
		LLMTimeoutSeconds: 10,
	})

	res := loop.Run(context.Background(), RunInput{SessionID: "sess-1", Prompt: "hi"})
	if res.Response != FallbackAnswer {
		t.Errorf("Response = %q, want fallback answer", res.Response)
	}
}

func TestRunDispatchesToolsAndBreaksOnRepeatedBatch(t *testing.T) {
	call := models.ToolCall{ID: "1", Name: "search", Args: map[string]any{"q": "x"}}
	assistantWithCall := models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}}
	var responses []models.Message
	for i := 0; i < 3; i++ {
		responses = append(responses, assistantWithCall)
	}
	responses = append(responses, models.NewAssistantText("gave up, here's what I know"))
	model := &stubModel{provider: "anthropic", modelID: "claude", responses: responses}
	reg, handle := newHandle(t)

	loop := New(Config{
		Resolve:           func(p, m string) (ChatModel, error) { return model, nil },
		Chain:             newChain(t),
		Registry:          reg,
		Handle:            handle,
		LLMTimeoutSeconds: 10,
		Dispatch:          DispatchConfig{ToolTimeout: time.Second, RetryAttempts: 1},
	})

	res := loop.Run(context.Background(), RunInput{
		SessionID: "sess-1",
		Prompt:    "search something",
		ToolImpls: map[string]Tool{"search": &stubTool{}},
	})

	if res.Response != "gave up, here's what I know" {
		t.Errorf("Response = %q, want forced text after loop break", res.Response)
	}
}

type stubTool struct{}

func (s *stubTool) Name() string                 { return "search" }
func (s *stubTool) Schema() json.RawMessage      { return json.RawMessage(`{}`) }
func (s *stubTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return "result", nil
}

func TestSelectToolsFallsBackToAllWhenUnionSmall(t *testing.T) {
	got := SelectTools([]string{"a"}, nil, nil, []string{"a", "b", "c", "d"})
	if len(got) != 4 {
		t.Errorf("SelectTools() = %v, want fallback to all 4", got)
	}
}

func TestSelectToolsUsesUnionWhenLargeEnough(t *testing.T) {
	got := SelectTools([]string{"a", "b"}, []string{"c"}, nil, []string{"a", "b", "c", "d", "e"})
	if len(got) != 3 {
		t.Errorf("SelectTools() = %v, want union of 3", got)
	}
}

func TestNormalizeModelID(t *testing.T) {
	if got := NormalizeModelID("models/gemini-pro"); got != "gemini-pro" {
		t.Errorf("NormalizeModelID() = %q", got)
	}
	if got := NormalizeModelID("provider-default"); got != "" {
		t.Errorf("NormalizeModelID() = %q, want empty for default alias", got)
	}
}

func TestIsHallucinatedToolText(t *testing.T) {
	if !IsHallucinatedToolText("**Tool Call**: search(q=x)") {
		t.Error("expected detection of **tool call** marker")
	}
	if !IsHallucinatedToolText("executing tool now") {
		t.Error("expected detection of short 'executing tool' text")
	}
	if IsHallucinatedToolText("a normal, rather long response about executing tool reviews across the org with plenty of detail") {
		t.Error("long text containing the phrase should not be flagged")
	}
}
