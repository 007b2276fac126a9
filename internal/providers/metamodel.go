package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

// ChatMetaModel adapts any execloop.ChatModel into a planner.MetaModel by
// prompting for a single JSON object and parsing the reply, rather than
// requiring a dedicated structured-output API per provider. Any bound
// adapter in this package (Anthropic, OpenAI, Gemini, Bedrock) can serve as
// the Planner's fast meta-model this way.
type ChatMetaModel struct {
	model execloop.ChatModel
}

// NewChatMetaModel wraps model for use as a planner.MetaModel.
func NewChatMetaModel(model execloop.ChatModel) *ChatMetaModel {
	return &ChatMetaModel{model: model}
}

// Evaluate classifies intent and proposes memory search queries for prompt.
func (m *ChatMetaModel) Evaluate(ctx context.Context, prompt string, history []models.Message) (*models.EvaluatorOutput, error) {
	var out models.EvaluatorOutput
	recent := lastTurns(history, 6)
	task := fmt.Sprintf(
		`Classify the user's intent for this message and list up to 3 search queries `+
			`that would surface relevant memory. Conversation so far:\n%s\nUser message: %s\n\n`+
			`Respond with JSON: {"intent": string, "memory_queries": [string, ...]}`,
		recent, prompt,
	)
	if err := m.invokeJSON(ctx, task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Route selects a model and tool set for prompt among activeModels/availableTools.
func (m *ChatMetaModel) Route(ctx context.Context, prompt string, activeModels, availableTools []string) (*models.RouterDecision, error) {
	var out models.RouterDecision
	task := fmt.Sprintf(
		`Route this request to one of the active provider/model pairs and select `+
			`zero or more of the available tools it will need.\n`+
			`Active models (provider/model): %s\nAvailable tools: %s\nUser message: %s\n\n`+
			`Respond with JSON: {"provider": string, "model_name": string, "selected_tools": [string, ...], "reasoning": string}`,
		strings.Join(activeModels, ", "), strings.Join(availableTools, ", "), prompt,
	)
	if err := m.invokeJSON(ctx, task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Plan decomposes goal into an ordered, dependency-annotated step list.
func (m *ChatMetaModel) Plan(ctx context.Context, goal string) (*models.Plan, error) {
	var out models.Plan
	task := fmt.Sprintf(
		`Decompose this goal into a short sequence of concrete steps. Mark a step `+
			`parallelizable only if it has no dependency on any other listed step.\nGoal: %s\n\n`+
			`Respond with JSON: {"name": string, "goal": string, "steps": [`+
			`{"id": string, "title": string, "description": string, "depends_on": [string, ...], `+
			`"parallelizable": bool, "priority": int}, ...]}`,
		goal,
	)
	if err := m.invokeJSON(ctx, task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *ChatMetaModel) invokeJSON(ctx context.Context, task string, out any) error {
	messages := []models.Message{
		models.NewSystem("You are a structured-output meta-model. Respond with exactly one JSON object and nothing else: no prose, no markdown fences."),
		models.NewUserText(task),
	}
	reply, err := m.model.Invoke(ctx, messages)
	if err != nil {
		return fmt.Errorf("providers: meta-model invoke: %w", err)
	}
	if err := json.Unmarshal([]byte(extractJSON(reply.Text())), out); err != nil {
		return fmt.Errorf("providers: meta-model parse: %w", err)
	}
	return nil
}

// extractJSON strips a leading/trailing markdown code fence, if the model
// wrapped its JSON in one despite being asked not to.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func lastTurns(history []models.Message, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var b strings.Builder
	for _, msg := range history {
		if text := msg.Text(); text != "" {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, text)
		}
	}
	return b.String()
}
