package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

// GeminiConfig configures a ChatModel backed by Google's Gen AI SDK. This
// same SDK also backs the Planner's meta-model (§4.3), so both share
// conversion idioms with this adapter.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
}

// Gemini is an execloop.ChatModel wrapping google.golang.org/genai, grounded
// on the teacher's GoogleProvider, narrowed from GenerateContentStream to a
// single GenerateContent call.
type Gemini struct {
	base
	client *genai.Client
	model  string
	tools  []*genai.Tool
}

// NewGemini builds a Gemini adapter against the public Gemini API backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers: gemini API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("providers: gemini client: %w", err)
	}

	return &Gemini{
		base:   newBase("gemini", cfg.MaxRetries, 0),
		client: client,
		model:  model,
	}, nil
}

func (g *Gemini) Provider() string { return "gemini" }
func (g *Gemini) ModelID() string  { return g.model }

// BindTools returns a copy of g with tools converted to Gemini function
// declarations.
func (g *Gemini) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	bound := *g
	if len(tools) == 0 {
		bound.tools = nil
		return &bound, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema genai.Schema
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("providers: gemini tool schema for %q: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &schema,
		})
	}
	bound.tools = []*genai.Tool{{FunctionDeclarations: decls}}
	return &bound, nil
}

// Invoke sends messages (any leading System message becomes the Gemini
// system instruction) and returns the Assistant reply.
func (g *Gemini) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	system, rest := splitSystem(messages)
	contents, err := convertMessagesToGemini(rest)
	if err != nil {
		return models.Message{}, err
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(g.tools) > 0 {
		config.Tools = g.tools
	}

	var resp *genai.GenerateContentResponse
	err = g.retry(ctx, isGeminiRetryable, func() error {
		var callErr error
		resp, callErr = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		return callErr
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("providers: gemini invoke: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.Message{}, errors.New("providers: gemini returned no candidates")
	}

	return geminiContentToModel(resp.Candidates[0].Content), nil
}

func convertMessagesToGemini(messages []models.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range messages {
		content := &genai.Content{}
		switch msg.Role {
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser // user and tool roles both present as user turns to Gemini
		}

		if text := msg.Text(); text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		for _, tc := range msg.ToolCalls {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Args},
			})
		}
		if msg.Role == models.RoleTool {
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: msg.ToolName, Response: response},
			})
		}
		if len(content.Parts) == 0 {
			continue
		}
		result = append(result, content)
	}
	return result, nil
}

func geminiContentToModel(content *genai.Content) models.Message {
	out := models.NewAssistantText("")
	var text strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	out.Content = text.String()
	return out
}

func isGeminiRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "unavailable")
}
