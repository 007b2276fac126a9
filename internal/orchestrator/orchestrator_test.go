package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/internal/failover"
	"github.com/nexuscore/agentcore/internal/guardian"
	"github.com/nexuscore/agentcore/internal/memory"
	"github.com/nexuscore/agentcore/internal/planner"
	"github.com/nexuscore/agentcore/internal/runqueue"
	"github.com/nexuscore/agentcore/internal/runregistry"
	"github.com/nexuscore/agentcore/internal/sessionstore"
	"github.com/nexuscore/agentcore/pkg/models"
)

// stubMetaModel is a planner.MetaModel that answers every call with a fixed
// decision, counting Evaluate/Route calls so tests can assert on them.
type stubMetaModel struct {
	routeCalls int
	route      *models.RouterDecision
	plan       *models.Plan
}

func (s *stubMetaModel) Evaluate(ctx context.Context, prompt string, history []models.Message) (*models.EvaluatorOutput, error) {
	return &models.EvaluatorOutput{Intent: "chat", MemoryQueries: []string{prompt}}, nil
}

func (s *stubMetaModel) Route(ctx context.Context, prompt string, activeModels, availableTools []string) (*models.RouterDecision, error) {
	s.routeCalls++
	if s.route != nil {
		return s.route, nil
	}
	return &models.RouterDecision{SelectedTools: []string{}, Provider: "anthropic", ModelName: "claude"}, nil
}

func (s *stubMetaModel) Plan(ctx context.Context, goal string) (*models.Plan, error) {
	if s.plan != nil {
		return s.plan, nil
	}
	return &models.Plan{Name: "p", Goal: goal, Steps: []models.PlanStep{{ID: "s0", Title: goal}}}, nil
}

// stubChatModel is an execloop.ChatModel returning a fixed sequence of
// responses, one per Invoke call.
type stubChatModel struct {
	provider, modelID string
	responses         []models.Message
	calls             int
}

func (m *stubChatModel) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) { return m, nil }
func (m *stubChatModel) Provider() string                                                { return m.provider }
func (m *stubChatModel) ModelID() string                                                 { return m.modelID }
func (m *stubChatModel) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	if m.calls >= len(m.responses) {
		return models.NewAssistantText("(no more responses)"), nil
	}
	r := m.responses[m.calls]
	m.calls++
	return r, nil
}

func baseConfig(t *testing.T, model *stubChatModel, mm *stubMetaModel) Config {
	t.Helper()
	return Config{
		Queue:        runqueue.New(4),
		Registry:     runregistry.New(),
		Sessions:     sessionstore.NewMemoryStore(),
		Planner:      planner.NewPlanner(mm, 10),
		Relationship: memory.NewRelationshipStore(),
		Index:        memory.NewLexicalIndex(),
		Guardian:     guardian.NewGuardian(nil, guardian.DefaultApprovalPolicy()),
		Policy:       &guardian.Policy{Profile: guardian.ProfileFull},

		ActiveModels: []failover.Model{{Provider: "anthropic", ModelID: "claude", Aliases: []string{"default"}}},
		Resolve:      func(provider, modelID string) (execloop.ChatModel, error) { return model, nil },
		ToolSpecs:    nil,
		Emit:         execloop.NoopEmitter,

		MaxAttempts:        2,
		LLMTimeoutSeconds:  10,
		ToolTimeoutSeconds: 5,
		ToolRetryAttempts:  1,
		MaxContextTokens:   50000,
		Identity:           "You are Nexus.",
	}
}

func TestRunSuccessfulSingleAttempt(t *testing.T) {
	model := &stubChatModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText("hello there"),
	}}
	mm := &stubMetaModel{}
	o := New(baseConfig(t, model, mm))

	resp := o.Run(context.Background(), Request{SessionID: "s1", Prompt: "hi", SourceChannel: "cli"})

	if resp.Response != "hello there" {
		t.Errorf("Response = %q, want %q", resp.Response, "hello there")
	}
	if resp.Metadata.ModelUsed != "anthropic/claude" {
		t.Errorf("ModelUsed = %q", resp.Metadata.ModelUsed)
	}
	if resp.Metadata.Intent != "chat" {
		t.Errorf("Intent = %q, want chat", resp.Metadata.Intent)
	}
	if resp.SessionData == nil {
		t.Fatal("SessionData = nil, want persisted session")
	}
	if resp.PendingPlan != nil {
		t.Error("PendingPlan set, want nil for a plain chat turn")
	}
}

func TestRunRequestsPlanApprovalWhenRequired(t *testing.T) {
	model := &stubChatModel{provider: "anthropic", modelID: "claude"}
	mm := &stubMetaModel{route: &models.RouterDecision{SelectedTools: []string{"exec"}, Provider: "anthropic", ModelName: "claude"}}
	cfg := baseConfig(t, model, mm)
	cfg.RequirePlanApproval = true
	o := New(cfg)

	resp := o.Run(context.Background(), Request{SessionID: "s2", Prompt: "let's plan a multi-step project", SourceChannel: "cli"})

	if resp.PendingPlan == nil {
		t.Fatal("PendingPlan = nil, want a plan awaiting approval")
	}
	if resp.Response != "" {
		t.Errorf("Response = %q, want empty while awaiting approval", resp.Response)
	}
}

func TestRunSkipsPlanApprovalForBackgroundSession(t *testing.T) {
	model := &stubChatModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText("done"),
	}}
	mm := &stubMetaModel{route: &models.RouterDecision{SelectedTools: []string{"exec"}, Provider: "anthropic", ModelName: "claude"}}
	cfg := baseConfig(t, model, mm)
	cfg.RequirePlanApproval = true
	o := New(cfg)

	resp := o.Run(context.Background(), Request{
		SessionID: "s3", Prompt: "plan a multi-step project", SourceChannel: "cron", IsBackgroundSession: true,
	})

	if resp.PendingPlan != nil {
		t.Error("PendingPlan set, want background sessions to skip approval")
	}
	if resp.Response != "done" {
		t.Errorf("Response = %q, want %q", resp.Response, "done")
	}
}

// alwaysToolCallModel keeps calling an alternating pair of tools forever, so
// a run never produces a text answer and the turn loop exhausts MaxTurns on
// every attempt. It records the prompt text of the first user message it
// sees on each Invoke so the test can confirm the second attempt's "be more
// efficient" rewrite.
type alwaysToolCallModel struct {
	provider, modelID string
	calls             int
	seenPrompts       []string
}

func (m *alwaysToolCallModel) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	return m, nil
}
func (m *alwaysToolCallModel) Provider() string { return m.provider }
func (m *alwaysToolCallModel) ModelID() string  { return m.modelID }
func (m *alwaysToolCallModel) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			m.seenPrompts = append(m.seenPrompts, msg.Content)
			break
		}
	}
	name := "toolA"
	if m.calls%2 == 1 {
		name = "toolB"
	}
	m.calls++
	return models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "t", Name: name, Args: map[string]any{"n": m.calls}}},
	}, nil
}

type noopTool struct{ name string }

func (t *noopTool) Name() string            { return t.name }
func (t *noopTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (t *noopTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRunRetriesOnTurnLimitWithEfficiencyPrefix(t *testing.T) {
	model := &alwaysToolCallModel{provider: "anthropic", modelID: "claude"}
	mm := &stubMetaModel{}
	cfg := baseConfig(t, nil, mm)
	cfg.Resolve = func(provider, modelID string) (execloop.ChatModel, error) { return model, nil }
	cfg.ToolImpls = map[string]execloop.Tool{"toolA": &noopTool{name: "toolA"}, "toolB": &noopTool{name: "toolB"}}
	o := New(cfg)

	o.Run(context.Background(), Request{SessionID: "s4", Prompt: "do the thing", SourceChannel: "cli"})

	found := false
	for _, p := range model.seenPrompts {
		if p == "Be more efficient this time. do the thing" {
			found = true
		}
	}
	if !found {
		t.Errorf("seenPrompts = %v, want a second attempt with the efficiency prefix", model.seenPrompts)
	}
}

func TestRunComputesQueueWaitSeconds(t *testing.T) {
	model := &stubChatModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText("ok"),
	}}
	mm := &stubMetaModel{}
	o := New(baseConfig(t, model, mm))

	resp := o.Run(context.Background(), Request{SessionID: "s5", Prompt: "hi", SourceChannel: "cli"})

	if resp.Metadata.QueueWaitSeconds < 0 {
		t.Errorf("QueueWaitSeconds = %v, want >= 0", resp.Metadata.QueueWaitSeconds)
	}
}

func TestRunPersistsSessionMessages(t *testing.T) {
	model := &stubChatModel{provider: "anthropic", modelID: "claude", responses: []models.Message{
		models.NewAssistantText("saved"),
	}}
	mm := &stubMetaModel{}
	cfg := baseConfig(t, model, mm)
	store := sessionstore.NewMemoryStore()
	cfg.Sessions = store
	o := New(cfg)

	o.Run(context.Background(), Request{SessionID: "s6", Prompt: "remember this", SourceChannel: "cli"})

	got, err := store.Get(context.Background(), "s6")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) == 0 {
		t.Fatal("expected appended messages to be persisted")
	}
}
