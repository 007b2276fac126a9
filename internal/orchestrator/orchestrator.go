// Package orchestrator wires one request's full lifecycle together:
// enqueue, acquire lane, evaluate, memory-search, route, optional
// plan-approval, execute-with-retries, persist-session, release lane.
// Grounded on the teacher's internal/agent/runtime.go Runtime.run top-level
// coordination (history load, context packing, agentic loop, persistence),
// replacing its inline completion loop with internal/execloop.Loop and its
// single-provider model with internal/failover.Chain.
package orchestrator

import (
	"context"
	"time"

	"github.com/nexuscore/agentcore/internal/agentcontext"
	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/internal/failover"
	"github.com/nexuscore/agentcore/internal/guardian"
	"github.com/nexuscore/agentcore/internal/memory"
	"github.com/nexuscore/agentcore/internal/memoryctx"
	"github.com/nexuscore/agentcore/internal/planner"
	"github.com/nexuscore/agentcore/internal/runqueue"
	"github.com/nexuscore/agentcore/internal/runregistry"
	"github.com/nexuscore/agentcore/internal/sessionstore"
	"github.com/nexuscore/agentcore/pkg/models"
)

// Config wires an Orchestrator to its process-wide collaborators. Per-run
// state (session, models, queries) never lives here.
type Config struct {
	Queue        *runqueue.Queue
	Registry     *runregistry.Registry
	Sessions     sessionstore.Store
	Planner      *planner.Planner
	Relationship *memory.RelationshipStore
	Index        memory.Index
	ShortTerm    *memory.ShortTermStore
	Summarizer   memoryctx.MetaSummarizer
	Guardian     *guardian.Guardian
	Policy       *guardian.Policy

	ActiveModels []failover.Model
	Resolve      execloop.ModelResolver
	ToolSpecs    []execloop.ToolSpec
	MinimalTools []execloop.ToolSpec
	ToolImpls    map[string]execloop.Tool
	Emit         execloop.Emitter
	Heartbeat    Heartbeat

	MaxAttempts         int           // AGENT_EXECUTION_MAX_ATTEMPTS
	LLMTimeoutSeconds   int           // AGENT_LLM_TIMEOUT_SECONDS
	ToolTimeoutSeconds  int           // AGENT_TOOL_TIMEOUT_SECONDS
	ToolRetryAttempts   int           // AGENT_TOOL_RETRY_ATTEMPTS
	RunTimeout          time.Duration // AGENT_RUN_TIMEOUT_MS
	QueueWaitTimeout    time.Duration // AGENT_QUEUE_WAIT_TIMEOUT_SECONDS
	RequirePlanApproval bool          // AGENT_REQUIRE_PLAN_APPROVAL
	MaxContextTokens    int

	Identity           string
	Skills             string
	MemoryInstructions string
	ToolProtocol       string
	Personality        string
}

// Heartbeat shows a best-effort typing/presence indicator for the duration
// of a session's execution phase (spec §4.12's visibility concept), keyed
// by session so concurrent runs don't interfere with one another. Optional:
// a nil Config.Heartbeat disables the signal entirely. Satisfied by
// internal/heartbeat.VisibilitySignal, which lives in internal/heartbeat
// rather than here because that package already depends on this one (for
// its task-execution scheduler) and an import the other way would cycle.
type Heartbeat interface {
	Start(ctx context.Context, sessionID, channel string)
	Stop(sessionID string)
}

// Request is one inbound turn.
type Request struct {
	SessionID           string
	Prompt              string
	Images              []string
	SourceChannel       string
	ChannelContext      string
	IsBackgroundSession bool
}

// Metadata is the run-level summary returned alongside the response text,
// per spec §4.9/§6.
type Metadata struct {
	Intent                 string   `json:"intent"`
	MemoryUsed             int      `json:"memory_used"`
	RelationshipMemoryUsed int      `json:"relationship_memory_used"`
	ModelUsed              string   `json:"model_used"`
	ToolsUsed              []string `json:"tools_used"`
	FailoverAttempts       []string `json:"failover_attempts,omitempty"`
	SourceChannel          string   `json:"source_channel"`
	QueueWaitSeconds       float64  `json:"queue_wait_seconds"`
}

// Response is {response, metadata, session_data} from spec §4.9.
type Response struct {
	Response    string
	Metadata    Metadata
	SessionData *models.Session
	PendingPlan *models.Plan // set instead of Response when plan approval is required
}

// Orchestrator runs requests to completion through the full collaborator
// chain.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator bound to cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Emit == nil {
		cfg.Emit = execloop.NoopEmitter
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{cfg: cfg}
}

func activeModelNames(active []failover.Model) []string {
	out := make([]string, 0, len(active))
	for _, m := range active {
		out = append(out, m.Provider+"/"+m.ModelID)
	}
	return out
}

func availableToolNames(specs []execloop.ToolSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	return out
}

// Run executes the full data flow for one request (spec §2):
// enqueue → acquire lane → evaluate → memory-search → route → optional
// plan-approval → execute-with-retries → persist-session → release lane.
func (o *Orchestrator) Run(ctx context.Context, req Request) Response {
	emit := o.cfg.Emit

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	entry := o.cfg.Queue.Enqueue(req.SessionID, req.SourceChannel)
	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "queued"}})
	lease, err := o.cfg.Queue.Acquire(ctx, entry, o.cfg.QueueWaitTimeout)
	if err != nil {
		return Response{Response: "[Run cancelled: could not acquire a run lane]", Metadata: Metadata{SourceChannel: req.SourceChannel}}
	}
	defer o.cfg.Queue.Release(lease)
	queueWait := time.Duration(0)
	if entry.StartedAt != nil {
		queueWait = entry.StartedAt.Sub(entry.EnqueuedAt)
	}
	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "queued_done"}})

	session, err := o.cfg.Sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return Response{Response: "[Run cancelled: session store unavailable]", Metadata: Metadata{SourceChannel: req.SourceChannel, QueueWaitSeconds: queueWait.Seconds()}}
	}

	handle, err := o.cfg.Registry.Register(req.SessionID, execloop.MaxTurns, o.cfg.RunTimeout)
	if err != nil {
		return Response{Response: "[Run cancelled: a run is already active for this session]", Metadata: Metadata{SourceChannel: req.SourceChannel, QueueWaitSeconds: queueWait.Seconds()}}
	}
	defer o.cfg.Registry.Complete(req.SessionID)

	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "evaluating"}})
	eval := o.cfg.Planner.Evaluate(ctx, req.Prompt, session.Messages)
	emit.Emit(execloop.StreamEvent{Name: "intent", Data: map[string]any{"intent": eval.Intent}})

	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "memory"}})
	memBlock := memoryctx.Retrieve(ctx, o.cfg.Relationship, o.cfg.Index, eval.MemoryQueries, req.Prompt, session.ContextFiles, req.ChannelContext)

	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "routing"}})
	route := o.cfg.Planner.Route(ctx, req.Prompt, activeModelNames(o.cfg.ActiveModels), availableToolNames(o.cfg.ToolSpecs))

	if planner.ShouldRequestPlanApproval(o.cfg.RequirePlanApproval, req.IsBackgroundSession, route, req.Prompt) {
		emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "approval"}})
		plan := o.cfg.Planner.PlanGoal(ctx, req.Prompt)
		return Response{
			PendingPlan: plan,
			Metadata: Metadata{
				Intent:           eval.Intent,
				SourceChannel:    req.SourceChannel,
				QueueWaitSeconds: queueWait.Seconds(),
			},
		}
	}

	systemPrompt := execloop.BuildSystemPrompt(execloop.SystemPromptSections{
		SystemInfo:         execloop.HostSystemInfo(),
		Identity:           o.cfg.Identity,
		Skills:             o.cfg.Skills,
		MemoryInstructions: o.cfg.MemoryInstructions,
		ToolProtocol:       o.cfg.ToolProtocol,
		Personality:        o.cfg.Personality,
		ChannelContext:     req.ChannelContext,
		MemoryContext:      memBlock.Text,
	})

	maxTokens := o.cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = 100000
	}

	selectedTools := execloop.SelectTools(coreToolNames(), route.SelectedTools, dynamicToolNames(session), availableToolNames(o.cfg.ToolSpecs))
	tools := filterSpecs(o.cfg.ToolSpecs, selectedTools)

	emit.Emit(execloop.StreamEvent{Name: "phase", Data: map[string]any{"phase": "executing"}})
	if o.cfg.Heartbeat != nil {
		o.cfg.Heartbeat.Start(ctx, req.SessionID, req.SourceChannel)
		defer o.cfg.Heartbeat.Stop(req.SessionID)
	}

	explicit := &failover.Candidate{Provider: route.Provider, ModelID: execloop.NormalizeModelID(route.ModelName)}

	var result execloop.Result
	var hitTurnLimit bool
	prompt := req.Prompt

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && !hitTurnLimit {
			break
		}
		if attempt > 1 {
			prompt = "Be more efficient this time. " + req.Prompt
		}

		history := agentcontext.OptimizeContext(session.Messages, maxTokens, systemPrompt, prompt)
		chain := failover.Build(o.cfg.ActiveModels, explicit, nil)

		loop := execloop.New(execloop.Config{
			Resolve:  o.cfg.Resolve,
			Chain:    chain,
			Registry: o.cfg.Registry,
			Handle:   handle,
			Dispatch: execloop.DispatchConfig{
				Guardian:      o.cfg.Guardian,
				Policy:        o.cfg.Policy,
				SessionID:     req.SessionID,
				ToolTimeout:   time.Duration(o.cfg.ToolTimeoutSeconds) * time.Second,
				RetryAttempts: o.cfg.ToolRetryAttempts,
			},
			LLMTimeoutSeconds: o.cfg.LLMTimeoutSeconds,
			Emit:              emit,
		})

		result = loop.Run(ctx, execloop.RunInput{
			SessionID:    req.SessionID,
			History:      history,
			SystemPrompt: systemPrompt,
			Prompt:       prompt,
			Images:       req.Images,
			Tools:        tools,
			MinimalTools: o.cfg.MinimalTools,
			ToolImpls:    o.cfg.ToolImpls,
		})

		hitTurnLimit = result.HitTurnLimit
		for _, m := range result.NewMessages {
			session.AppendMessage(m)
		}
		if handle.Status() == runregistry.StatusAborted {
			break
		}
		if !hitTurnLimit {
			break
		}
	}

	newLastSummaryIndex := session.LastSummaryIndex
	if o.cfg.Summarizer != nil && o.cfg.ShortTerm != nil {
		newLastSummaryIndex = memoryctx.MaybeSummarize(ctx, o.cfg.Summarizer, o.cfg.ShortTerm, o.cfg.Index, req.SessionID, session.Messages, session.LastSummaryIndex)
	}
	session.LastSummaryIndex = newLastSummaryIndex

	if err := o.cfg.Sessions.Save(ctx, session); err != nil {
		emit.Emit(execloop.StreamEvent{Name: "error", Data: map[string]any{"message": err.Error()}})
	}

	if o.cfg.ShortTerm != nil {
		o.cfg.ShortTerm.Expire(req.SessionID)
	}

	meta := Metadata{
		Intent:                 eval.Intent,
		MemoryUsed:             memBlock.MemoryUsed,
		RelationshipMemoryUsed: memBlock.RelationshipMemoryUsed,
		ModelUsed:              result.ModelUsed,
		ToolsUsed:              result.ToolsUsed,
		FailoverAttempts:       result.FailoverAttempts,
		SourceChannel:          req.SourceChannel,
		QueueWaitSeconds:       queueWait.Seconds(),
	}
	emit.Emit(execloop.StreamEvent{Name: "complete", Data: map[string]any{"response": result.Response, "metadata": meta}})

	return Response{Response: result.Response, Metadata: meta, SessionData: session}
}

// coreToolNames are the always-bound tools, grounded on spec §4.7's
// CORE_TOOLS set.
func coreToolNames() []string {
	return []string{"memory_search", "status"}
}

// dynamicToolNames reads session-scoped dynamically-registered tool names
// from session metadata (key "dynamic_tools"), if present.
func dynamicToolNames(session *models.Session) []string {
	if session == nil || session.Metadata == nil {
		return nil
	}
	raw, ok := session.Metadata["dynamic_tools"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}: // session.Metadata round-tripped through JSON
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func filterSpecs(all []execloop.ToolSpec, names []string) []execloop.ToolSpec {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []execloop.ToolSpec
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
