package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
)

type guardResult[T any] struct {
	val T
	err error
}

// Guard runs fn under timeout. A panic inside fn becomes an EngineError and
// an expired deadline becomes a Timeout. Errors returned by fn are coerced
// into *Error so callers only ever see typed failures.
func Guard[T any](ctx context.Context, engine models.EngineName, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan guardResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Recovered panic in engine call", "engine", engine, "panic", r)
				done <- guardResult[T]{err: EngineError(engine, "engine panicked", fmt.Errorf("%v", r))}
			}
		}()
		v, err := fn(ctx)
		done <- guardResult[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.val, nil
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			return zero, Timeout(engine, "engine call exceeded its deadline", res.err)
		}
		return zero, AsError(engine, res.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, Timeout(engine, fmt.Sprintf("no result within %s", timeout), ctx.Err())
		}
		return zero, EngineError(engine, "engine call cancelled", ctx.Err())
	}
}
