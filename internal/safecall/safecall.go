// Package safecall isolates calls to the chat platform.
//
// Every call is logged at debug level with its operation name and duration.
// Failures are logged at error level. Panics inside the call are recovered and
// reported as errors. Callers choose whether a failure propagates (Do) or is
// absorbed (Try, Run).
package safecall

import (
	"context"
	"fmt"
	"time"

	logx "alfredo/pkg/logx"
)

// Do runs fn and returns its error to the caller.
func Do[T any](ctx context.Context, log logx.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	start := time.Now()
	res, err := call(ctx, fn)
	dur := time.Since(start)
	if err != nil {
		log.Error("external call failed", logx.String("op", op), logx.Duration("dur", dur), logx.Err(err))
		var zero T
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("external call", logx.String("op", op), logx.Duration("dur", dur))
	return res, nil
}

// Try runs fn and absorbs a failure. ok is false if fn failed.
func Try[T any](ctx context.Context, log logx.Logger, op string, fn func(ctx context.Context) (T, error)) (res T, ok bool) {
	res, err := Do(ctx, log, op, fn)
	return res, err == nil
}

// Run is Try for calls without a result.
func Run(ctx context.Context, log logx.Logger, op string, fn func(ctx context.Context) error) bool {
	_, ok := Try(ctx, log, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return ok
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return fn(ctx)
}
