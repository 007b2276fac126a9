// Package planner implements the three structured-JSON meta-model calls
// (evaluate, route, plan) and the plan-approval/normalization logic around
// them. Grounded on the teacher's internal/agent/routing.Router for the
// rule-matching/fallback idiom, generalized to call a fast meta-model
// instead of selecting among bound LLMProviders directly.
package planner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// MetaModel is the fast structured-output model the Planner calls for
// evaluate/route/plan. Implementations bind a concrete provider/model and
// force a JSON schema response.
type MetaModel interface {
	Evaluate(ctx context.Context, prompt string, history []models.Message) (*models.EvaluatorOutput, error)
	Route(ctx context.Context, prompt string, activeModels []string, availableTools []string) (*models.RouterDecision, error)
	Plan(ctx context.Context, goal string) (*models.Plan, error)
}

// Clamp bounds AGENT_LLM_TIMEOUT to [min, max] seconds for a meta-call
// deadline.
func Clamp(timeoutSeconds, min, max int) time.Duration {
	v := timeoutSeconds
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return time.Duration(v) * time.Second
}

const (
	metaTimeoutMin = 5
	metaTimeoutMax = 20
)

// Planner orchestrates the three meta-calls with timeout clamping and
// deterministic fallbacks on error.
type Planner struct {
	model          MetaModel
	llmTimeoutSecs int
}

// NewPlanner builds a Planner bound to model, with AGENT_LLM_TIMEOUT in
// seconds (pre-clamp).
func NewPlanner(model MetaModel, llmTimeoutSeconds int) *Planner {
	return &Planner{model: model, llmTimeoutSecs: llmTimeoutSeconds}
}

func (p *Planner) deadline() time.Duration {
	return Clamp(p.llmTimeoutSecs, metaTimeoutMin, metaTimeoutMax)
}

// Evaluate returns {intent, memory_queries}; on timeout or error, falls
// back to an empty intent with the raw prompt as the sole memory query.
func (p *Planner) Evaluate(ctx context.Context, prompt string, history []models.Message) *models.EvaluatorOutput {
	cctx, cancel := context.WithTimeout(ctx, p.deadline())
	defer cancel()

	out, err := p.model.Evaluate(cctx, prompt, history)
	if err != nil || out == nil {
		queries := []string{}
		if t := strings.TrimSpace(prompt); t != "" {
			queries = []string{t}
		}
		return &models.EvaluatorOutput{Intent: "", MemoryQueries: queries}
	}
	return out
}

// Route returns {selected_tools, provider, model_name}; on timeout or
// error, falls back to {tools:[], provider:gemini, model:"default"}.
func (p *Planner) Route(ctx context.Context, prompt string, activeModels, availableTools []string) *models.RouterDecision {
	cctx, cancel := context.WithTimeout(ctx, p.deadline())
	defer cancel()

	out, err := p.model.Route(cctx, prompt, activeModels, availableTools)
	if err != nil || out == nil {
		return &models.RouterDecision{SelectedTools: []string{}, Provider: "gemini", ModelName: "default"}
	}
	return out
}

// PlanGoal returns a normalized execution Plan; on timeout or error, falls
// back to a one-step plan echoing the goal.
func (p *Planner) PlanGoal(ctx context.Context, goal string) *models.Plan {
	cctx, cancel := context.WithTimeout(ctx, p.deadline())
	defer cancel()

	plan, err := p.model.Plan(cctx, goal)
	if err != nil || plan == nil {
		plan = &models.Plan{
			Name: "fallback",
			Goal: goal,
			Steps: []models.PlanStep{
				{ID: "s0", Title: goal, Description: goal, Parallelizable: false, Priority: 3},
			},
		}
	}
	return BuildExecutionPlan(plan)
}

// planningCues is the fixed set of planning-cue substrings (case-insensitive)
// that, combined with tool selection and approval policy, trigger a
// plan-approval request.
var planningCues = []string{
	"plan", "roadmap", "break", "phases", "long running", "step by step", "multi-step", "project",
}

// ShouldRequestPlanApproval reports whether the run must pause for
// plan approval: approval is globally required, the session is not a
// background/subagent session, a tool was selected, and the prompt
// contains a planning cue.
func ShouldRequestPlanApproval(approvalRequired bool, isBackgroundSession bool, route *models.RouterDecision, prompt string) bool {
	if !approvalRequired || isBackgroundSession {
		return false
	}
	if route == nil || len(route.SelectedTools) == 0 {
		return false
	}
	lower := strings.ToLower(prompt)
	for _, cue := range planningCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// BuildExecutionPlan normalizes plan steps in place: assigns a fallback id
// (s{idx}) to steps missing one, drops self- and unknown dependencies, clamps
// priority to [1,5], and forces parallelizable=false when dependencies
// remain after pruning.
func BuildExecutionPlan(plan *models.Plan) *models.Plan {
	if plan == nil {
		return nil
	}

	ids := make(map[string]bool, len(plan.Steps))
	for i, s := range plan.Steps {
		if s.ID == "" {
			plan.Steps[i].ID = "s" + strconv.Itoa(i)
		}
		ids[plan.Steps[i].ID] = true
	}

	for i, s := range plan.Steps {
		var deps []string
		for _, d := range s.DependsOn {
			if d == s.ID || !ids[d] {
				continue
			}
			deps = append(deps, d)
		}
		plan.Steps[i].DependsOn = deps

		p := s.Priority
		if p < 1 {
			p = 1
		}
		if p > 5 {
			p = 5
		}
		plan.Steps[i].Priority = p

		if len(deps) > 0 {
			plan.Steps[i].Parallelizable = false
		}
	}
	return plan
}
