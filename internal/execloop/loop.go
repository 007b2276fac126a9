package execloop

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/agentcontext"
	"github.com/nexuscore/agentcore/internal/errorsx"
	"github.com/nexuscore/agentcore/internal/failover"
	"github.com/nexuscore/agentcore/internal/runregistry"
	"github.com/nexuscore/agentcore/pkg/models"
)

// ModelResolver binds a (provider, modelID) candidate to a ChatModel.
type ModelResolver func(provider, modelID string) (ChatModel, error)

// Config wires a Loop to its run-scoped collaborators.
type Config struct {
	Resolve           ModelResolver
	Chain             *failover.Chain
	Registry          *runregistry.Registry
	Handle            *runregistry.Handle
	Dispatch          DispatchConfig
	LLMTimeoutSeconds int // AGENT_LLM_TIMEOUT_SECONDS, pre-clamp
	Emit              Emitter
}

// RunInput is everything one Run call needs beyond the wired Config.
type RunInput struct {
	SessionID    string
	History      []models.Message // already windowed by ContextManager.optimize_context
	SystemPrompt string
	Prompt       string
	Images       []string
	Tools        []ToolSpec
	MinimalTools []ToolSpec
	ToolImpls    map[string]Tool
}

// Result is what the Orchestrator persists and reports.
type Result struct {
	Response         string
	NewMessages      []models.Message // messages to append to the session, in order
	ModelUsed        string           // "provider/model"
	ToolsUsed        []string
	FailoverAttempts []string
	HitTurnLimit     bool // true only when MaxTurns was exhausted without a text answer
}

// Loop runs one request's turn loop (§4.7).
type Loop struct {
	cfg Config
}

// New builds a Loop bound to cfg.
func New(cfg Config) *Loop {
	if cfg.Emit == nil {
		cfg.Emit = NoopEmitter
	}
	return &Loop{cfg: cfg}
}

func (l *Loop) llmDeadline() time.Duration {
	secs := l.cfg.LLMTimeoutSeconds
	if secs < 1 {
		secs = 1
	}
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// Run executes the turn loop to completion (final text answer, cancellation,
// or terminal error) and returns the persistable result.
func (l *Loop) Run(ctx context.Context, in RunInput) Result {
	emit := l.cfg.Emit

	cand, _ := l.cfg.Chain.Current()
	model, err := l.cfg.Resolve(cand.Provider, NormalizeModelID(cand.ModelID))
	if err != nil {
		return Result{Response: "[Run cancelled: no model available]"}
	}
	boundModel, unboundModel := BindWithFallback(model, in.Tools, in.MinimalTools)
	current := boundModel

	systemMsg := models.NewSystem(in.SystemPrompt)
	userMsg := BuildUserMessage(in.Prompt, in.Images)

	messages := append([]models.Message{systemMsg}, in.History...)
	messages = append(messages, userMsg)

	newMessages := []models.Message{userMsg}

	var failoverAttempts []string
	var batchSignatures []string
	toolsUsed := map[string]bool{}
	nudgeCount := 0
	wrapUpInjected := false

	finalize := func(text string, lastAssistant *models.Message, elideLast bool) Result {
		if !elideLast && lastAssistant != nil {
			messages = append(messages, *lastAssistant)
			newMessages = append(newMessages, *lastAssistant)
		}
		return l.buildResult(text, current, newMessages, toolsUsed, failoverAttempts)
	}

	for turn := 0; turn < MaxTurns; turn++ {
		select {
		case <-l.cfg.Handle.AbortSignal():
			return l.buildResult("[Run cancelled: "+l.cfg.Handle.CancelReason+"]", current, newMessages, toolsUsed, failoverAttempts)
		default:
		}

		for _, s := range l.cfg.Handle.Drain() {
			m := models.NewUserText("[USER STEERING]: " + s)
			messages = append(messages, m)
			newMessages = append(newMessages, m)
		}

		if l.cfg.Registry != nil {
			l.cfg.Registry.UpdateTurn(in.SessionID, turn)
		}

		if turn >= MaxTurns-2 && !wrapUpInjected {
			wrapUpInjected = true
			m := models.NewUserText("This run is nearly out of turns. Give your best final answer in text now; do not call any more tools.")
			messages = append(messages, m)
			newMessages = append(newMessages, m)
			current = unboundModel
		}

		sanitized := agentcontext.Sanitize(messages)
		assistantMsg, rotatedMessages, err := l.invokeTurn(ctx, sanitized, &current, &failoverAttempts)
		if rotatedMessages != nil {
			messages = append(messages[:0:0], rotatedMessages...) // adopt any REDUCE_CONTEXT/rotation rewrite for subsequent turns
		}
		if err != nil {
			ce := errorsx.Classify(err, "")
			return finalize(ce.Message, nil, true)
		}

		if !assistantMsg.HasToolCalls() {
			text := assistantMsg.Text()
			if IsHallucinatedToolText(text) {
				trap := models.NewUserText(HallucinatedToolTrapPrompt)
				messages = append(messages, assistantMsg, trap)
				newMessages = append(newMessages, assistantMsg, trap)
				continue
			}
			text = NormalizeTextResponse(text)
			if text == "" {
				if nudgeCount < maxNudges {
					nudgeCount++
					nudge := models.NewUserText(NudgeText(historyHasToolResult(messages)))
					messages = append(messages, assistantMsg, nudge)
					newMessages = append(newMessages, assistantMsg, nudge)
					continue
				}
				return finalize(FallbackAnswer, nil, true)
			}
			return finalize(text, &assistantMsg, false)
		}

		sig := batchSignature(assistantMsg.ToolCalls)
		batchSignatures = append(batchSignatures, sig)
		if last3Equal(batchSignatures) {
			stop := models.NewUserText("Stop looping: the same tool batch has been called three times in a row. Respond with text now.")
			messages = append(messages, assistantMsg, stop)
			text, forced := l.forceText(ctx, unboundModel, messages)
			if forced != nil {
				messages = append(messages, *forced)
				newMessages = append(newMessages, assistantMsg, stop, *forced)
			} else {
				newMessages = append(newMessages, assistantMsg, stop)
			}
			return l.buildResult(text, current, newMessages, toolsUsed, failoverAttempts)
		}

		if assistantMsg.Text() == "" {
			assistantMsg.Content = "(calling tools)"
		}
		messages = append(messages, assistantMsg)
		newMessages = append(newMessages, assistantMsg)

		toolMsgs := DispatchAll(ctx, l.cfg.Dispatch, assistantMsg.ToolCalls, in.ToolImpls, emit)
		for _, tc := range assistantMsg.ToolCalls {
			toolsUsed[tc.Name] = true
		}
		messages = append(messages, toolMsgs...)
		newMessages = append(newMessages, toolMsgs...)
	}

	text, forced := l.forceText(ctx, current, messages)
	if text == "" {
		text = FallbackAnswer
		res := l.buildResult(text, current, newMessages, toolsUsed, failoverAttempts)
		res.HitTurnLimit = true
		return res
	}
	if forced != nil {
		newMessages = append(newMessages, *forced)
	}
	res := l.buildResult(text, current, newMessages, toolsUsed, failoverAttempts)
	res.HitTurnLimit = true
	return res
}

// invokeTurn invokes current under the LLM deadline, applying the §4.7 step-6
// recovery ladder (rotate/rebind, reduce-context-once, or terminal error) on
// invoke failure. On success it returns the assistant message; on a
// ROTATE_MODEL/REDUCE_CONTEXT recovery it may return a rewritten message list
// for the caller to adopt going forward.
func (l *Loop) invokeTurn(ctx context.Context, messages []models.Message, current *ChatModel, failoverAttempts *[]string) (models.Message, []models.Message, error) {
	msgs := messages
	reducedOnce := false
	mutated := false

	for attempt := 1; ; attempt++ {
		assistantMsg, err := InvokeUnderDeadline(ctx, l.llmDeadline(), func(cctx context.Context) (models.Message, error) {
			return (*current).Invoke(cctx, msgs)
		})
		if err == nil {
			if mutated {
				return assistantMsg, msgs, nil
			}
			return assistantMsg, nil, nil
		}

		ce := errorsx.Classify(err, "")
		strategy := errorsx.Plan(ce, attempt)

		switch {
		case strategy == models.RecoveryRotateModel || strategy == models.RecoveryCompactContext:
			if !l.cfg.Chain.Advance(string(ce.Class)) {
				return models.Message{}, nil, ce
			}
			cand, ok := l.cfg.Chain.Current()
			if !ok {
				return models.Message{}, nil, ce
			}
			newModel, rerr := l.cfg.Resolve(cand.Provider, NormalizeModelID(cand.ModelID))
			if rerr != nil {
				return models.Message{}, nil, ce
			}
			*failoverAttempts = append(*failoverAttempts, cand.Provider+"/"+cand.ModelID)
			*current = newModel
			msgs = PatchSystemNote(msgs, cand.Provider, cand.ModelID)
			mutated = true
			l.cfg.Emit.Emit(StreamEvent{Name: "recovery", Data: map[string]any{
				"reason": string(ce.Class), "provider": cand.Provider, "model": cand.ModelID,
			}})
			continue

		case strategy == models.RecoveryReduceContext || len(msgs) > 5:
			if reducedOnce {
				return models.Message{}, nil, ce
			}
			reducedOnce = true
			msgs = ReduceToLast4(msgs)
			mutated = true
			continue

		default:
			return models.Message{}, nil, ce
		}
	}
}

// forceText issues one forced-text call (finalization, or the
// three-identical-batches loop-break), returning the resulting text and the
// assistant message it came from (nil if the call itself failed).
func (l *Loop) forceText(ctx context.Context, model ChatModel, messages []models.Message) (string, *models.Message) {
	directive := models.NewUserText("You have used all available turns for this run. Respond with your best answer in text now.")
	sanitized := agentcontext.Sanitize(append(append([]models.Message(nil), messages...), directive))
	assistantMsg, err := InvokeUnderDeadline(ctx, l.llmDeadline(), func(cctx context.Context) (models.Message, error) {
		return model.Invoke(cctx, sanitized)
	})
	if err != nil {
		return "", nil
	}
	text := NormalizeTextResponse(assistantMsg.Text())
	return text, &assistantMsg
}

func (l *Loop) buildResult(text string, current ChatModel, newMessages []models.Message, toolsUsed map[string]bool, failoverAttempts []string) Result {
	tools := make([]string, 0, len(toolsUsed))
	for t := range toolsUsed {
		tools = append(tools, t)
	}
	sort.Strings(tools)

	modelUsed := ""
	if current != nil {
		modelUsed = current.Provider() + "/" + current.ModelID()
	}

	return Result{
		Response:         text,
		NewMessages:      newMessages,
		ModelUsed:        modelUsed,
		ToolsUsed:        tools,
		FailoverAttempts: failoverAttempts,
	}
}

// batchSignature builds the tuple((name, sorted(args)) for each call)
// signature used for the three-identical-batches loop break.
func batchSignature(calls []models.ToolCall) string {
	var b strings.Builder
	for _, c := range calls {
		keys := make([]string, 0, len(c.Args))
		for k := range c.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(c.Name)
		b.WriteString("(")
		for _, k := range keys {
			b.WriteString(k)
			b.WriteString("=")
			fmt.Fprintf(&b, "%v", c.Args[k])
			b.WriteString(",")
		}
		b.WriteString(")|")
	}
	return b.String()
}

func last3Equal(sigs []string) bool {
	if len(sigs) < 3 {
		return false
	}
	n := len(sigs)
	return sigs[n-1] == sigs[n-2] && sigs[n-2] == sigs[n-3]
}
