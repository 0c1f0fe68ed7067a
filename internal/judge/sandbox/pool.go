package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"judgebox/internal/judge/sandbox/observer"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// pool bounds the number of container runs in flight. Each admitted job runs
// on its own goroutine so an abandoned caller never blocks cleanup.
type pool struct {
	sem     *semaphore.Weighted
	metrics observer.MetricsRecorder
}

func newPool(workers int, metrics observer.MetricsRecorder) *pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &pool{sem: semaphore.NewWeighted(int64(workers)), metrics: metrics}
}

type workerPanic struct {
	value interface{}
	stack []byte
}

func (p workerPanic) String() string {
	return fmt.Sprintf("sandbox worker panic: %v\n\n%s", p.value, p.stack)
}

type outcome struct {
	out []byte
	err error
	pnc *workerPanic
}

// do runs job on a worker and waits for it or for ctx. A panic in job is
// re-raised in the calling goroutine.
func (p *pool) do(ctx context.Context, job func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	done := make(chan outcome, 1)
	go func() {
		p.metrics.AddInflight(1)
		defer func() {
			p.metrics.AddInflight(-1)
			p.sem.Release(1)
			if v := recover(); v != nil {
				pnc := &workerPanic{value: v, stack: debug.Stack()}
				logger.Error(ctx, "sandbox worker panicked", zap.String("panic", pnc.String()))
				done <- outcome{pnc: pnc}
			}
		}()
		out, err := job(ctx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.unwrap()
	case <-ctx.Done():
		select {
		case res := <-done:
			return res.unwrap()
		default:
			return nil, ctx.Err()
		}
	}
}

func (o outcome) unwrap() ([]byte, error) {
	if o.pnc != nil {
		panic(o.pnc.String())
	}
	return o.out, o.err
}
