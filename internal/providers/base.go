// Package providers adapts third-party LLM SDKs to the execloop.ChatModel
// contract. Grounded on the teacher's internal/agent/providers package: each
// adapter here plays the same role its BaseProvider/XxxProvider pair played,
// generalized from agent.LLMProvider's streaming CompletionChunk interface
// to execloop.ChatModel's single-shot Invoke.
package providers

import (
	"context"
	"time"
)

// base carries the retry policy shared by every adapter, same shape and
// defaults as the teacher's BaseProvider.
type base struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

func newBase(name string, maxRetries int, retryDelay time.Duration) base {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return base{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// retry runs op, retrying on a retryable error with linear backoff
// (retryDelay * attempt), same schedule as the teacher's BaseProvider.Retry.
func (b *base) retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= b.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// statusError wraps an error with an HTTP-ish status code so
// internal/errorsx.Classify's StatusCoder lookup can pick it up without
// string sniffing.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.status }

func withStatus(err error, status int) error {
	if err == nil || status == 0 {
		return err
	}
	return &statusError{status: status, err: err}
}
