// Package errorsx classifies raw errors into the ErrorClass taxonomy and
// plans a recovery strategy, the way internal/agent/failover.go's
// classifyProviderError and internal/agent/errors.go's classifyToolError did
// in the original agent package, generalized into one ordered rule table.
package errorsx

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexuscore/agentcore/pkg/models"
)

type rule struct {
	pattern   *regexp.Regexp
	statuses  []int
	class     models.ErrorClass
	strategy  models.RecoveryStrategy
	retryable bool
}

var rules = []rule{
	{pattern: regexp.MustCompile(`(?i)context|token|too long|max.?length`), class: models.ErrorContextOverflow, strategy: models.RecoveryCompactContext, retryable: true},
	{pattern: regexp.MustCompile(`(?i)rate|429|quota|too many requests`), statuses: []int{429}, class: models.ErrorRateLimit, strategy: models.RecoveryRotateModel, retryable: true},
	{pattern: regexp.MustCompile(`(?i)auth|401|403|api.?key|permission`), statuses: []int{401, 403}, class: models.ErrorAuth, strategy: models.RecoveryRotateModel, retryable: false},
	{pattern: regexp.MustCompile(`(?i)timeout|timed ?out|deadline`), class: models.ErrorTimeout, strategy: models.RecoveryRetry, retryable: true},
	{pattern: regexp.MustCompile(`(?i)role|turn|ordering|must alternate`), class: models.ErrorRoleOrdering, strategy: models.RecoveryReduceContext, retryable: true},
	{pattern: regexp.MustCompile(`(?i)image|vision|media|dimension|size`), class: models.ErrorImage, strategy: models.RecoverySkipTool, retryable: false},
	{pattern: regexp.MustCompile(`(?i)model.{0,30}(not found|unavailable|deprecated)`), class: models.ErrorModelUnavailable, strategy: models.RecoveryRotateModel, retryable: true},
	{pattern: regexp.MustCompile(`(?i)tool.{0,20}error|error.{0,20}tool`), class: models.ErrorTool, strategy: models.RecoverySkipTool, retryable: false},
	{pattern: regexp.MustCompile(`(?i)json|parse|decode`), class: models.ErrorParse, strategy: models.RecoveryRetry, retryable: true},
}

// statusFields lists the attribute names a wrapped error may carry an HTTP
// status code under; we look for them via the StatusCoder interface since Go
// has no reflection-free attribute lookup equivalent to the source's
// getattr(err, "status_code"|"status"|"code"|"http_status").
type StatusCoder interface {
	StatusCode() int
}

// Classify maps err + an optional context hint to a ClassifiedError, by
// ordered pattern match against hint + err.Error() + the unwrapped cause's
// Error(), plus any discovered HTTP status. The first matching rule wins;
// the fallback is UNKNOWN/RETRY.
func Classify(err error, hint string) *models.ClassifiedError {
	if err == nil {
		return &models.ClassifiedError{Class: models.ErrorUnknown, Message: hint, Strategy: models.RecoveryRetry, Retryable: true}
	}

	haystack := strings.ToLower(hint + " " + err.Error())
	if cause := errors.Unwrap(err); cause != nil {
		haystack += " " + strings.ToLower(cause.Error())
	}

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	} else if status == 0 {
		status = extractStatusFromText(haystack)
	}

	for _, r := range rules {
		if r.pattern.MatchString(haystack) || containsStatus(r.statuses, status) {
			return &models.ClassifiedError{
				Original:   err,
				Class:      r.class,
				Message:    err.Error(),
				Retryable:  r.retryable,
				Strategy:   r.strategy,
				StatusCode: status,
			}
		}
	}

	return &models.ClassifiedError{
		Original:   err,
		Class:      models.ErrorUnknown,
		Message:    err.Error(),
		Retryable:  true,
		Strategy:   models.RecoveryRetry,
		StatusCode: status,
	}
}

func containsStatus(set []int, status int) bool {
	if status == 0 {
		return false
	}
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

var statusFieldRe = regexp.MustCompile(`(?i)(?:status_code|status|code|http_status)[=: ]+(\d{3})`)

func extractStatusFromText(haystack string) int {
	m := statusFieldRe.FindStringSubmatch(haystack)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
