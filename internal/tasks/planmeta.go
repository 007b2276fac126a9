package tasks

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	planMetaOpen  = "[[PLAN_META]]"
	planMetaClose = "[[/PLAN_META]]"
)

// ErrUnterminatedPlanMeta is returned by DecodePlanMeta when a description
// opens a plan-metadata marker but never closes it.
var ErrUnterminatedPlanMeta = errors.New("tasks: unterminated [[PLAN_META]] marker")

// PlanMeta is the structured payload embedded ahead of a task's plain
// description when the task originated from an approved plan step (§4.9's
// plan-approval path, §4.12's dependency-gated dequeue).
type PlanMeta struct {
	PlanName       string   `json:"plan_name"`
	StepID         string   `json:"step_id"`
	DependsOn      []string `json:"depends_on,omitempty"` // task IDs, not plan step IDs
	Parallelizable bool     `json:"parallelizable"`
}

// EncodePlanMeta renders the `[[PLAN_META]]{json}[[/PLAN_META]]\n<plain>`
// marker format. Callers needing a plain task with no metadata should skip
// this and store the plain description directly.
func EncodePlanMeta(meta PlanMeta, plain string) (string, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return planMetaOpen + string(b) + planMetaClose + "\n" + plain, nil
}

// DecodePlanMeta parses a task description for a leading plan-metadata
// marker. A description with no marker returns (nil, description, nil) — a
// plain, dependency-free task. An opened-but-unterminated marker is
// rejected rather than guessed at.
func DecodePlanMeta(description string) (*PlanMeta, string, error) {
	if !strings.HasPrefix(description, planMetaOpen) {
		return nil, description, nil
	}
	rest := description[len(planMetaOpen):]
	end := strings.Index(rest, planMetaClose)
	if end < 0 {
		return nil, "", ErrUnterminatedPlanMeta
	}
	payload := rest[:end]
	plain := strings.TrimPrefix(rest[end+len(planMetaClose):], "\n")

	var meta PlanMeta
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, "", err
	}
	return &meta, plain, nil
}
