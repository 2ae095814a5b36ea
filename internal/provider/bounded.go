package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bounded runs fn with a deadline of timeout (none when timeout <= 0).
//
// fn runs in its own goroutine and receives the bounded context. If the
// deadline passes first, Bounded returns ErrProbeTimeout immediately; the
// goroutine's eventual result lands in a buffered channel and is dropped.
// A panic inside fn is reported as ErrProbePanic.
func Bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: %v", ErrProbePanic, r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.value, fmt.Errorf("%w: %w", ErrProbeTimeout, r.err)
		}
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrProbeTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
