package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "alfredo/pkg/logx"
)

// HandlerFunc runs one command. Validation problems are answered to the
// sender by the handler itself; a returned error means infrastructure failed.
type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost layer.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// slowCommand promotes successful command logs from DEBUG to INFO.
const slowCommand = 2 * time.Second

func recoverCommand() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req.Logger.Error("command handler panicked",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("command %s: panic: %v", req.Command, r)
			}()
			return next(ctx, req)
		}
	}
}

func logCommand() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.Bool("admin", req.Admin),
				logx.Int("args", len(req.Args)),
				logx.Duration("dur", time.Since(start)),
			}
			switch {
			case err != nil:
				req.Logger.Warn("command failed", append(fields, logx.Err(err))...)
			case time.Since(start) >= slowCommand:
				req.Logger.Info("command handled slowly", fields...)
			default:
				req.Logger.Debug("command handled", fields...)
			}
			return err
		}
	}
}

// limitCommand bounds a handler by d; zero leaves ctx untouched.
func limitCommand(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}
