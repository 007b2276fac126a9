package errorsx

import (
	"errors"
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		hint      string
		wantClass models.ErrorClass
		wantRetry bool
	}{
		{"context overflow", errors.New("prompt is too long for max length"), "", models.ErrorContextOverflow, true},
		{"rate limit", errors.New("429 Too Many Requests"), "", models.ErrorRateLimit, true},
		{"auth", errors.New("401 invalid api key"), "", models.ErrorAuth, false},
		{"timeout", errors.New("request timed out"), "", models.ErrorTimeout, true},
		{"role ordering", errors.New("messages must alternate roles"), "", models.ErrorRoleOrdering, true},
		{"image", errors.New("unsupported image dimension"), "", models.ErrorImage, false},
		{"model unavailable", errors.New("model foo-bar not found"), "", models.ErrorModelUnavailable, true},
		{"tool error", errors.New("tool error: bad args"), "", models.ErrorTool, false},
		{"parse", errors.New("failed to decode json"), "", models.ErrorParse, true},
		{"unknown", errors.New("something odd"), "", models.ErrorUnknown, true},
		{"hint wins", errors.New("opaque sdk failure"), "rate limited upstream", models.ErrorRateLimit, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify(tc.err, tc.hint)
			if ce.Class != tc.wantClass {
				t.Errorf("class = %s, want %s", ce.Class, tc.wantClass)
			}
			if ce.Retryable != tc.wantRetry {
				t.Errorf("retryable = %v, want %v", ce.Retryable, tc.wantRetry)
			}
		})
	}
}

func TestPlanEscalatesToAbort(t *testing.T) {
	ce := Classify(errors.New("401 unauthorized"), "")
	if got := Plan(ce, 1); got != models.RecoveryAbort {
		t.Errorf("attempt 1 for AUTH_ERROR (budget 1) = %s, want ABORT", got)
	}
}

func TestPlanTimeoutPrefersRotate(t *testing.T) {
	ce := Classify(errors.New("deadline exceeded"), "")
	if got := Plan(ce, 1); got != models.RecoveryRotateModel {
		t.Errorf("timeout retry 1 = %s, want ROTATE_MODEL", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	d := Backoff(models.ErrorRateLimit, 10)
	if d > 30_000_000_000 {
		t.Errorf("backoff %v exceeds 30s cap", d)
	}
}
