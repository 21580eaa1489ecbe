package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	rtsup "alfredo/internal/runtime/supervisor"
	kit "alfredo/internal/transport"
	logx "alfredo/pkg/logx"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Enqueue queues fn onto the single worker. It never blocks and reports
// false if the queue is full or the dispatcher has stopped.
func (m *Router) Enqueue(name string, fn func(ctx context.Context) error) (ok bool) {
	if fn == nil {
		return false
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.jobs == nil {
		return false
	}
	select {
	case m.jobs <- job{name: name, run: fn}:
		return true
	default:
		m.log.Warn("job queue full", logx.String("job", name), logx.Int("cap", cap(m.jobs)))
		return false
	}
}

// DispatchLoop routes inbound messages and drains the job queue on exactly
// one worker until ctx is done or in is closed. Commands and maintenance
// jobs therefore never run concurrently.
func (m *Router) DispatchLoop(ctx context.Context, in <-chan kit.Message) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)

	m.runMu.Lock()
	jobs := m.jobs
	m.runMu.Unlock()
	if jobs == nil {
		return errors.New("dispatcher already stopped")
	}

	m.log.Info("command dispatcher started", logx.Int("job_queue_cap", cap(jobs)))

	sup.GoRestart("router.worker", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case j, ok := <-jobs:
				if !ok {
					return nil
				}
				m.runJob(c, j)
			}
		}
	}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))

	defer func() {
		m.runMu.Lock()
		m.jobs = nil
		m.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			m.Route(ctx, msg)
		}
	}
}

func (m *Router) runJob(ctx context.Context, j job) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in job", logx.String("job", j.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.run(ctx)
	}()
	if err != nil {
		m.log.Warn("job failed", logx.String("job", j.name), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return
	}
	m.log.Debug("job done", logx.String("job", j.name), logx.Duration("dur", time.Since(start)))
}
