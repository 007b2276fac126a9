package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

type stubModel struct {
	evalErr, routeErr, planErr bool
}

func (s *stubModel) Evaluate(ctx context.Context, prompt string, history []models.Message) (*models.EvaluatorOutput, error) {
	if s.evalErr {
		return nil, errors.New("boom")
	}
	return &models.EvaluatorOutput{Intent: "chat", MemoryQueries: []string{"foo"}}, nil
}

func (s *stubModel) Route(ctx context.Context, prompt string, activeModels, availableTools []string) (*models.RouterDecision, error) {
	if s.routeErr {
		return nil, errors.New("boom")
	}
	return &models.RouterDecision{SelectedTools: []string{"search"}, Provider: "anthropic", ModelName: "claude"}, nil
}

func (s *stubModel) Plan(ctx context.Context, goal string) (*models.Plan, error) {
	if s.planErr {
		return nil, errors.New("boom")
	}
	return &models.Plan{Name: "p", Goal: goal, Steps: []models.PlanStep{{Title: "step1", Priority: 9}}}, nil
}

func TestClampBounds(t *testing.T) {
	if got := Clamp(1, 5, 20); got.Seconds() != 5 {
		t.Errorf("Clamp(1,5,20) = %v, want 5s", got)
	}
	if got := Clamp(100, 5, 20); got.Seconds() != 20 {
		t.Errorf("Clamp(100,5,20) = %v, want 20s", got)
	}
	if got := Clamp(12, 5, 20); got.Seconds() != 12 {
		t.Errorf("Clamp(12,5,20) = %v, want 12s", got)
	}
}

func TestRouteFallsBackOnError(t *testing.T) {
	p := NewPlanner(&stubModel{routeErr: true}, 10)
	got := p.Route(context.Background(), "hi", nil, nil)
	if got.Provider != "gemini" || got.ModelName != "default" || len(got.SelectedTools) != 0 {
		t.Errorf("Route() fallback = %+v", got)
	}
}

func TestEvaluateFallsBackOnError(t *testing.T) {
	p := NewPlanner(&stubModel{evalErr: true}, 10)
	got := p.Evaluate(context.Background(), "what is the weather", nil)
	if got.Intent != "" || len(got.MemoryQueries) != 1 || got.MemoryQueries[0] != "what is the weather" {
		t.Errorf("Evaluate() fallback = %+v", got)
	}
}

func TestPlanGoalFallsBackOnError(t *testing.T) {
	p := NewPlanner(&stubModel{planErr: true}, 10)
	got := p.PlanGoal(context.Background(), "ship the feature")
	if len(got.Steps) != 1 || got.Steps[0].Title != "ship the feature" || got.Steps[0].ID != "s0" {
		t.Errorf("PlanGoal() fallback = %+v", got)
	}
}

func TestShouldRequestPlanApproval(t *testing.T) {
	route := &models.RouterDecision{SelectedTools: []string{"search"}}
	cases := []struct {
		name     string
		required bool
		bg       bool
		route    *models.RouterDecision
		prompt   string
		want     bool
	}{
		{"all conditions met", true, false, route, "let's make a plan for this", true},
		{"no planning cue", true, false, route, "what's the weather", false},
		{"approval not required", false, false, route, "build a roadmap", false},
		{"background session", true, true, route, "build a roadmap", false},
		{"no tools selected", true, false, &models.RouterDecision{}, "build a roadmap", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRequestPlanApproval(tc.required, tc.bg, tc.route, tc.prompt); got != tc.want {
				t.Errorf("ShouldRequestPlanApproval() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildExecutionPlanNormalizes(t *testing.T) {
	plan := &models.Plan{
		Steps: []models.PlanStep{
			{Title: "a", Priority: 0},
			{ID: "b", Title: "b", DependsOn: []string{"b", "missing", "s0"}, Priority: 9},
		},
	}
	got := BuildExecutionPlan(plan)

	if got.Steps[0].ID != "s0" {
		t.Errorf("fallback id = %q, want s0", got.Steps[0].ID)
	}
	if got.Steps[0].Priority != 1 {
		t.Errorf("priority clamp low = %d, want 1", got.Steps[0].Priority)
	}
	if got.Steps[1].Priority != 5 {
		t.Errorf("priority clamp high = %d, want 5", got.Steps[1].Priority)
	}
	if len(got.Steps[1].DependsOn) != 1 || got.Steps[1].DependsOn[0] != "s0" {
		t.Errorf("DependsOn after pruning = %v, want [s0]", got.Steps[1].DependsOn)
	}
	if got.Steps[1].Parallelizable {
		t.Errorf("Parallelizable should be forced false when deps remain")
	}
}
