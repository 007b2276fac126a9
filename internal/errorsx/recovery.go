package errorsx

import (
	"math"
	"math/rand"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// maxRetries is the per-class retry budget before the recovery planner
// escalates to ABORT.
var maxRetries = map[models.ErrorClass]int{
	models.ErrorContextOverflow:  2,
	models.ErrorRateLimit:        3,
	models.ErrorAuth:             1,
	models.ErrorTimeout:          3,
	models.ErrorRoleOrdering:     2,
	models.ErrorImage:            1,
	models.ErrorModelUnavailable: 2,
	models.ErrorTool:             1,
	models.ErrorParse:            2,
	models.ErrorUnknown:          2,
}

// Plan maps a ClassifiedError and the current attempt number to a recovery
// strategy, escalating to ABORT once attempt exceeds the class's retry
// budget. TIMEOUT prefers ROTATE_MODEL from the first retry onward.
func Plan(ce *models.ClassifiedError, attempt int) models.RecoveryStrategy {
	budget, ok := maxRetries[ce.Class]
	if !ok {
		budget = maxRetries[models.ErrorUnknown]
	}
	if attempt > budget {
		return models.RecoveryAbort
	}
	if ce.Class == models.ErrorTimeout && attempt >= 1 {
		return models.RecoveryRotateModel
	}
	return ce.Strategy
}

// Backoff computes the delay before the next retry: exponential with a 30s
// cap and multiplicative jitter in [0.5, 1.0]; base is 2.0s for RATE_LIMIT,
// 0.5s otherwise.
func Backoff(class models.ErrorClass, attempt int) time.Duration {
	base := 0.5
	if class == models.ErrorRateLimit {
		base = 2.0
	}
	secs := base * math.Pow(2, float64(attempt))
	if secs > 30 {
		secs = 30
	}
	jitter := 0.5 + rand.Float64()*0.5
	secs *= jitter
	return time.Duration(secs * float64(time.Second))
}
