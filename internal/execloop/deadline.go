package execloop

import (
	"context"
	"time"
)

// InvokeUnderDeadline launches invoke as a detached goroutine and races it
// against timeout, per §5's deadline-race pattern: "the invocation is
// launched as a task; a select on {task, timeout} yields whichever finishes
// first. If the timeout fires, the task is cancelled but the calling code
// must NOT block waiting for it to terminate... the task is detached with a
// drain-callback that absorbs its eventual exception."
//
// invoke receives a context derived from ctx (not from the timeout alone) so
// cooperative SDKs still observe cancellation; opaque ones that ignore it
// are simply abandoned once this function returns on timeout.
func InvokeUnderDeadline[T any](ctx context.Context, timeout time.Duration, invoke func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	result := make(chan invokeResult[T], 1)

	go func() {
		defer cancel()
		v, err := invoke(cctx)
		// Best-effort send: if the caller already timed out and stopped
		// listening, this drains the goroutine's result instead of blocking
		// it forever (the detach + drain-callback pattern).
		select {
		case result <- invokeResult[T]{v, err}:
		default:
		}
	}()

	select {
	case r := <-result:
		return r.value, r.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}

type invokeResult[T any] struct {
	value T
	err   error
}
