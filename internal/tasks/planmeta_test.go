package tasks

import (
	"errors"
	"testing"
)

func TestEncodeDecodePlanMetaRoundTrip(t *testing.T) {
	meta := PlanMeta{PlanName: "launch", StepID: "s2", DependsOn: []string{"task-1"}, Parallelizable: true}
	encoded, err := EncodePlanMeta(meta, "ship the release notes")
	if err != nil {
		t.Fatalf("EncodePlanMeta: %v", err)
	}

	got, plain, err := DecodePlanMeta(encoded)
	if err != nil {
		t.Fatalf("DecodePlanMeta: %v", err)
	}
	if plain != "ship the release notes" {
		t.Errorf("plain = %q", plain)
	}
	if got.PlanName != "launch" || got.StepID != "s2" || !got.Parallelizable {
		t.Errorf("got = %+v", got)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "task-1" {
		t.Errorf("DependsOn = %v", got.DependsOn)
	}
}

func TestDecodePlanMetaNoMarker(t *testing.T) {
	meta, plain, err := DecodePlanMeta("just a plain task")
	if err != nil {
		t.Fatalf("DecodePlanMeta: %v", err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil for a plain description", meta)
	}
	if plain != "just a plain task" {
		t.Errorf("plain = %q", plain)
	}
}

func TestDecodePlanMetaUnterminated(t *testing.T) {
	_, _, err := DecodePlanMeta(`[[PLAN_META]]{"plan_name":"x"}`)
	if !errors.Is(err, ErrUnterminatedPlanMeta) {
		t.Errorf("err = %v, want ErrUnterminatedPlanMeta", err)
	}
}

func TestDecodePlanMetaMalformedJSON(t *testing.T) {
	_, _, err := DecodePlanMeta(`[[PLAN_META]]not-json[[/PLAN_META]]\nplain`)
	if err == nil {
		t.Error("expected an error for malformed JSON payload")
	}
}
