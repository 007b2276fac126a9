package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

func TestNewAnthropicRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropic(AnthropicConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewAnthropicAppliesDefaults(t *testing.T) {
	a, err := NewAnthropic(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	if a.ModelID() != "claude-sonnet-4-20250514" {
		t.Errorf("ModelID = %q, want default", a.ModelID())
	}
	if a.Provider() != "anthropic" {
		t.Errorf("Provider = %q", a.Provider())
	}
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewOpenAIAppliesDefaults(t *testing.T) {
	o, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	if o.ModelID() != "gpt-4o" {
		t.Errorf("ModelID = %q, want default", o.ModelID())
	}
}

func TestNewBedrockRequiresNoExplicitKeyButDefaultsModel(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	b, err := NewBedrock(context.Background(), BedrockConfig{Region: "us-west-2"})
	if err != nil {
		t.Fatalf("NewBedrock: %v", err)
	}
	if b.ModelID() != "anthropic.claude-3-sonnet-20240229-v1:0" {
		t.Errorf("ModelID = %q, want default", b.ModelID())
	}
}

func TestConvertMessagesToOpenAIRoundTripsToolCall(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("hi"),
		{
			Role:      models.RoleAssistant,
			ToolCalls: []models.ToolCall{{ID: "call_1", Name: "search", Args: map[string]any{"q": "go"}}},
		},
		models.NewToolResult("call_1", "search", "result text"),
	}

	oai, err := convertMessagesToOpenAI(msgs)
	if err != nil {
		t.Fatalf("convertMessagesToOpenAI: %v", err)
	}
	if len(oai) != 3 {
		t.Fatalf("len = %d, want 3", len(oai))
	}
	if len(oai[1].ToolCalls) != 1 || oai[1].ToolCalls[0].Function.Name != "search" {
		t.Errorf("tool call not converted: %+v", oai[1])
	}
	if oai[2].ToolCallID != "call_1" {
		t.Errorf("tool result call id = %q", oai[2].ToolCallID)
	}
}

func TestOpenAIChoiceToModelParsesArguments(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"q": "go"})
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{
			{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "search", Arguments: string(args)}},
		},
	}
	result := openAIChoiceToModel(msg)
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Args["q"] != "go" {
		t.Errorf("unexpected tool call: %+v", result.ToolCalls)
	}
}

func TestConvertMessagesToGeminiMapsAssistantToModelRole(t *testing.T) {
	msgs := []models.Message{
		models.NewUserText("hi"),
		models.NewAssistantText("hello"),
	}
	contents, err := convertMessagesToGemini(msgs)
	if err != nil {
		t.Fatalf("convertMessagesToGemini: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("len = %d, want 2", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant role = %q, want model", contents[1].Role)
	}
}

func TestConvertMessagesToBedrockSkipsSystem(t *testing.T) {
	msgs := []models.Message{
		models.NewSystem("ignored"),
		models.NewUserText("hi"),
	}
	converted, err := convertMessagesToBedrock(msgs)
	if err != nil {
		t.Fatalf("convertMessagesToBedrock: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("len = %d, want 1 (system filtered)", len(converted))
	}
}

func TestSplitSystemExtractsLeadingSystemMessage(t *testing.T) {
	msgs := []models.Message{models.NewSystem("be nice"), models.NewUserText("hi")}
	system, rest := splitSystem(msgs)
	if system != "be nice" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 {
		t.Errorf("len(rest) = %d, want 1", len(rest))
	}
}

func TestSplitSystemNoSystemMessage(t *testing.T) {
	msgs := []models.Message{models.NewUserText("hi")}
	system, rest := splitSystem(msgs)
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(rest) != 1 {
		t.Errorf("len(rest) = %d, want 1", len(rest))
	}
}

func TestExtractJSONStripsCodeFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := extractJSON(in); got != `{"a":1}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestChatMetaModelRouteParsesJSON(t *testing.T) {
	mm := NewChatMetaModel(fixedReplyModel{text: `{"provider":"anthropic","model_name":"claude","selected_tools":["search"],"reasoning":"ok"}`})
	decision, err := mm.Route(context.Background(), "find docs", []string{"anthropic/claude"}, []string{"search"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.Provider != "anthropic" || len(decision.SelectedTools) != 1 {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestChatMetaModelEvaluateParsesJSON(t *testing.T) {
	mm := NewChatMetaModel(fixedReplyModel{text: `{"intent":"chat","memory_queries":["go"]}`})
	out, err := mm.Evaluate(context.Background(), "tell me about go", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Intent != "chat" || len(out.MemoryQueries) != 1 {
		t.Errorf("unexpected output: %+v", out)
	}
}

// fixedReplyModel implements execloop.ChatModel, always returning text.
type fixedReplyModel struct{ text string }

func (f fixedReplyModel) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	return f, nil
}
func (f fixedReplyModel) Provider() string { return "stub" }
func (f fixedReplyModel) ModelID() string  { return "stub-model" }
func (f fixedReplyModel) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	return models.NewAssistantText(f.text), nil
}
