package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

// AnthropicConfig configures a ChatModel backed by the Anthropic SDK.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	MaxTokens    int
}

// Anthropic is an execloop.ChatModel wrapping the Anthropic Messages API.
// Grounded on the teacher's AnthropicProvider: same client construction and
// retry idiom, narrowed from a streaming CompletionChunk channel to a single
// blocking Invoke call.
type Anthropic struct {
	base
	client    anthropic.Client
	model     string
	maxTokens int
	tools     []anthropic.ToolUnionParam
}

// NewAnthropic builds an Anthropic adapter. cfg.APIKey is required.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers: anthropic API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		base:      newBase("anthropic", cfg.MaxRetries, 0),
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (a *Anthropic) Provider() string { return "anthropic" }
func (a *Anthropic) ModelID() string  { return a.model }

// BindTools returns a copy of a with tools converted to Anthropic's schema.
func (a *Anthropic) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	bound := *a
	bound.tools = nil
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("providers: anthropic tool schema for %q: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("providers: anthropic tool %q could not be bound", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		bound.tools = append(bound.tools, param)
	}
	return &bound, nil
}

// Invoke sends messages (any leading System message is lifted into the
// Anthropic system field) and returns the Assistant reply.
func (a *Anthropic) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	system, rest := splitSystem(messages)
	converted, err := convertMessagesToAnthropic(rest)
	if err != nil {
		return models.Message{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  converted,
		MaxTokens: int64(a.maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(a.tools) > 0 {
		params.Tools = a.tools
	}

	var resp *anthropic.Message
	err = a.retry(ctx, isAnthropicRetryable, func() error {
		var callErr error
		resp, callErr = a.client.Messages.New(ctx, params)
		return wrapAnthropicErr(callErr)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("providers: anthropic invoke: %w", err)
	}

	return anthropicMessageToModel(resp), nil
}

func splitSystem(messages []models.Message) (string, []models.Message) {
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		return messages[0].Text(), messages[1:]
	}
	return "", messages
}

func convertMessagesToAnthropic(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if text := msg.Text(); text != "" {
			content = append(content, anthropic.NewTextBlock(text))
		}
		if msg.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func anthropicMessageToModel(resp *anthropic.Message) models.Message {
	out := models.NewAssistantText("")
	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(variant.Input, &args)
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}
	out.Content = text.String()
	return out
}

func isAnthropicRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

func wrapAnthropicErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return withStatus(err, apiErr.StatusCode)
	}
	return err
}
