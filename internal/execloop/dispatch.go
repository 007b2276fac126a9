package execloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/internal/guardian"
	"github.com/nexuscore/agentcore/pkg/models"
)

// ToolTimeout/RetryAttempts configure per-tool dispatch (AGENT_TOOL_TIMEOUT_SECONDS,
// AGENT_TOOL_RETRY_ATTEMPTS).
type DispatchConfig struct {
	Guardian      *guardian.Guardian
	Policy        *guardian.Policy
	SessionID     string
	ToolTimeout   time.Duration
	RetryAttempts int
}

var retryableMarkers = []string{"timeout", "429", "connection reset", "econnreset", "temporarily unavailable", "rate limit"}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// toolBackoff implements min(0.75*attempt, 3.0) seconds.
func toolBackoff(attempt int) time.Duration {
	secs := 0.75 * float64(attempt)
	if secs > 3.0 {
		secs = 3.0
	}
	return time.Duration(secs * float64(time.Second))
}

// DispatchAll invokes every tool call concurrently (§5: "tool calls within a
// single assistant message are dispatched in parallel but their results are
// appended in the original call order") and returns one Tool message per
// call, in call order.
func DispatchAll(ctx context.Context, cfg DispatchConfig, toolCalls []models.ToolCall, tools map[string]Tool, emit Emitter) []models.Message {
	if emit == nil {
		emit = NoopEmitter
	}
	names := make([]string, len(toolCalls))
	for i, tc := range toolCalls {
		names[i] = tc.Name
	}
	emit.Emit(StreamEvent{Name: "tool_start", Data: map[string]any{"tools": names}})

	results := make([]models.Message, len(toolCalls))
	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(i int, tc models.ToolCall) {
			defer wg.Done()
			results[i] = dispatchOne(ctx, cfg, tc, tools)
		}(i, tc)
	}
	wg.Wait()

	previews := make([]map[string]any, len(results))
	for i, r := range results {
		preview := r.Text()
		if len(preview) > 200 {
			preview = preview[:200]
		}
		previews[i] = map[string]any{"tool": toolCalls[i].Name, "preview": preview}
	}
	emit.Emit(StreamEvent{Name: "tool_done", Data: map[string]any{"results": previews}})

	return results
}

func dispatchOne(ctx context.Context, cfg DispatchConfig, tc models.ToolCall, tools map[string]Tool) models.Message {
	argsJSON, _ := json.Marshal(tc.Args)

	if cfg.Guardian != nil {
		allow, reason, actionID := cfg.Guardian.ValidateToolCall(tc.Name, json.RawMessage(argsJSON), cfg.Policy, cfg.SessionID)
		if !allow {
			return models.NewToolResult(tc.ID, tc.Name, guardian.DenialMessage(reason, actionID))
		}
	}

	tool, ok := tools[tc.Name]
	if !ok {
		return models.NewToolResult(tc.ID, tc.Name, fmt.Sprintf("unknown tool: %s", tc.Name))
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, cfg.ToolTimeout)
		content, err := tool.Invoke(cctx, tc.Args)
		cancel()
		if err == nil {
			return models.NewToolResult(tc.ID, tc.Name, content)
		}
		lastErr = err
		if attempt == attempts || !isRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			goto done
		case <-time.After(toolBackoff(attempt)):
		}
	}
done:
	return models.NewToolResult(tc.ID, tc.Name, fmt.Sprintf("tool error: %v", lastErr))
}
