// Package execloop implements the per-run turn loop (§4.7): model
// invocation, tool dispatch, recovery on invoke error, and finalization.
// Grounded on the teacher's internal/agent/loop.go state-machine idiom
// (Init/Stream/ExecuteTools/Continue/Complete phases, channel-based
// streaming, concurrent tool execution with call-order-preserving result
// append), generalized from the teacher's branch/job/approval machinery to
// the spec's failover/recovery/nudge/wrap-up semantics.
package execloop

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/agentcore/pkg/models"
)

// MaxTurns is the execution loop's inner turn cap (§4.7). Per Design Notes
// §9, this is authoritative for the loop and distinct from RunHandle's own
// registry-level max_turns watchdog cap.
const MaxTurns = 30

// ToolSpec describes one tool's name/description/schema for binding into a
// model request.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Tool is the minimal capability set a tool exposes, per Design Notes §9:
// "Tools share a small capability set {name, schema, invoke(args) -> text}".
type Tool interface {
	Name() string
	Schema() json.RawMessage
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ChatModel is the minimal model-wrapper capability set, per Design Notes
// §9: "{bind_tools(tools), ainvoke(messages) -> AssistantMessage}".
type ChatModel interface {
	// BindTools returns a copy of the model with the given tools bound. An
	// error return signals the tools could not be bound (e.g. unsupported);
	// callers fall back per §4.7's emergency-fallback-then-unbound rule.
	BindTools(tools []ToolSpec) (ChatModel, error)
	// Invoke calls the model with the full message list (including any
	// leading System message) and returns the resulting Assistant message.
	Invoke(ctx context.Context, messages []models.Message) (models.Message, error)
	// Provider and ModelID identify the candidate for system-note patching
	// and run metadata.
	Provider() string
	ModelID() string
}

// StreamEvent is one loop-emitted SSE-like event (§6).
type StreamEvent struct {
	Name string // phase, tool_start, tool_done, response_chunk, recovery, error
	Data map[string]any
}

// Emitter receives StreamEvents. Implementations must be best-effort: a
// failure or block here must never affect the pipeline (§5 backpressure).
type Emitter interface {
	Emit(StreamEvent)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(StreamEvent)

func (f EmitterFunc) Emit(e StreamEvent) { f(e) }

// NoopEmitter discards all events.
var NoopEmitter Emitter = EmitterFunc(func(StreamEvent) {})
