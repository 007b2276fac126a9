package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/pkg/models"
)

// BedrockConfig configures a ChatModel backed by a Bedrock-hosted foundation
// model, exercising the AWS SDK's default credential chain. Bedrock
// candidates count among the failover chain's "remaining active models"
// (§4.3) rather than being a last-resort provider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
}

// Bedrock is an execloop.ChatModel wrapping bedrockruntime's Converse API,
// grounded on the teacher's BedrockProvider, narrowed from ConverseStream to
// a single blocking Converse call.
type Bedrock struct {
	base
	client *bedrockruntime.Client
	model  string
	tools  []types.Tool
}

// NewBedrock builds a Bedrock adapter. With no explicit credentials it falls
// back to the AWS default credential chain (env, shared config, IAM role).
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock AWS config: %w", err)
	}

	return &Bedrock{
		base:   newBase("bedrock", cfg.MaxRetries, 0),
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  model,
	}, nil
}

func (b *Bedrock) Provider() string { return "bedrock" }
func (b *Bedrock) ModelID() string  { return b.model }

// BindTools returns a copy of b with tools converted to Bedrock's tool
// config format.
func (b *Bedrock) BindTools(tools []execloop.ToolSpec) (execloop.ChatModel, error) {
	bound := *b
	bound.tools = nil
	for _, t := range tools {
		var schema any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("providers: bedrock tool schema for %q: %w", t.Name, err)
		}
		bound.tools = append(bound.tools, types.Tool{
			ToolSpec: &types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &bound, nil
}

// Invoke sends messages (any leading System message becomes Bedrock's
// system field) and returns the Assistant reply.
func (b *Bedrock) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	system, rest := splitSystem(messages)
	converted, err := convertMessagesToBedrock(rest)
	if err != nil {
		return models.Message{}, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(b.model),
		Messages: converted,
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if len(b.tools) > 0 {
		input.ToolConfig = &types.ToolConfiguration{Tools: b.tools}
	}

	var resp *bedrockruntime.ConverseOutput
	err = b.retry(ctx, isBedrockRetryable, func() error {
		var callErr error
		resp, callErr = b.client.Converse(ctx, input)
		return callErr
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("providers: bedrock invoke: %w", err)
	}

	output, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return models.Message{}, fmt.Errorf("providers: bedrock invoke: unexpected output type %T", resp.Output)
	}
	return bedrockMessageToModel(output.Value), nil
}

func convertMessagesToBedrock(messages []models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		if text := msg.Text(); text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: text})
		}
		if msg.Role == models.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(tc.Args),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func bedrockMessageToModel(msg types.Message) models.Message {
	out := models.NewAssistantText("")
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(v.Value)
		case *types.ContentBlockMemberToolUse:
			var args map[string]any
			_ = v.Value.Input.UnmarshalSmithyDocument(&args)
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   aws.ToString(v.Value.ToolUseId),
				Name: aws.ToString(v.Value.Name),
				Args: args,
			})
		}
	}
	out.Content = text.String()
	return out
}

func isBedrockRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "InternalServerException", "ModelTimeoutException":
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "throttl") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "internal server")
}
