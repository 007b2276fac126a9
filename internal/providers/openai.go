package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

// OpenAIConfig configures a ChatModel backed by an OpenAI-compatible API.
// Setting BaseURL lets this adapter also serve local/last-resort models
// (e.g. an Ollama OpenAI-compatible endpoint), per the failover chain's
// "last resort" provider slot.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	MaxTokens    int
}

// OpenAI is an execloop.ChatModel wrapping sashabaranov/go-openai's chat
// completion API, grounded on the teacher's OpenAIProvider, narrowed to a
// single non-streaming CreateChatCompletion call.
type OpenAI struct {
	base
	client    *openai.Client
	model     string
	maxTokens int
	tools     []openai.Tool
}

// NewOpenAI builds an OpenAI-compatible adapter.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers: openai API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		base:      newBase("openai", cfg.MaxRetries, 0),
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (o *OpenAI) Provider() string { return "openai" }
func (o *OpenAI) ModelID() string  { return o.model }

// BindTools returns a copy of o with tools converted to OpenAI function
// definitions.
func (o *OpenAI) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	bound := *o
	bound.tools = make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if err := json.Unmarshal(t.Schema, &params); err != nil {
			return nil, fmt.Errorf("providers: openai tool schema for %q: %w", t.Name, err)
		}
		bound.tools = append(bound.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return &bound, nil
}

// Invoke sends messages and returns the Assistant reply.
func (o *OpenAI) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	converted, err := convertMessagesToOpenAI(messages)
	if err != nil {
		return models.Message{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  converted,
		MaxTokens: o.maxTokens,
	}
	if len(o.tools) > 0 {
		req.Tools = o.tools
	}

	var resp openai.ChatCompletionResponse
	err = o.retry(ctx, isOpenAIRetryable, func() error {
		var callErr error
		resp, callErr = o.client.CreateChatCompletion(ctx, req)
		return wrapOpenAIErr(callErr)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("providers: openai invoke: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, errors.New("providers: openai returned no choices")
	}

	return openAIChoiceToModel(resp.Choices[0].Message), nil
}

func convertMessagesToOpenAI(messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Text()})
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Text()})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("providers: encode tool call args for %q: %w", tc.Name, err)
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return result, nil
}

func openAIChoiceToModel(msg openai.ChatCompletionMessage) models.Message {
	out := models.NewAssistantText(msg.Content)
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}

func isOpenAIRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

func wrapOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return withStatus(err, apiErr.HTTPStatusCode)
	}
	return err
}
