package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"forecasting/internal/queue"
	"forecasting/internal/types"
)

// DefaultPoolSize is the number of analysis workers used when the
// configuration does not set one.
const DefaultPoolSize = 4

// TransformFunc is the CPU-bound per-item computation run by the pool.
type TransformFunc[In, Out any] func(In) (Out, error)

// WorkerPool runs a fixed number of workers that pull outcomes from the work
// queue, apply the transform to successful ones, and push the resulting
// outcome onto the result queue.
//
// Shutdown is cooperative: Stop closes the work queue and every worker exits
// once the buffer is empty. There is no forced-kill path, so a transform that
// never returns stalls Wait.
type WorkerPool[In, Out any] struct {
	transform TransformFunc[In, Out]
	size      int
	in        *queue.Queue[types.Outcome[In]]
	out       *queue.Queue[types.Outcome[Out]]
	logger    *slog.Logger

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	processed atomic.Int64
	failed    atomic.Int64
}

// WorkerPoolConfig holds the dependencies of a WorkerPool.
type WorkerPoolConfig[In, Out any] struct {
	Transform TransformFunc[In, Out]
	Size      int
	In        *queue.Queue[types.Outcome[In]]
	Out       *queue.Queue[types.Outcome[Out]]
	Logger    *slog.Logger
}

// NewWorkerPool creates a pool. A non-positive size falls back to
// DefaultPoolSize.
func NewWorkerPool[In, Out any](cfg WorkerPoolConfig[In, Out]) *WorkerPool[In, Out] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &WorkerPool[In, Out]{
		transform: cfg.Transform,
		size:      size,
		in:        cfg.In,
		out:       cfg.Out,
		logger:    logger,
	}
}

// Size returns the number of workers.
func (p *WorkerPool[In, Out]) Size() int {
	return p.size
}

// Start launches all workers. Calling Start more than once has no effect.
func (p *WorkerPool[In, Out]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(p.size)
		for i := 0; i < p.size; i++ {
			go p.work(ctx, i)
		}
	})
}

// Stop closes the work queue. Items already queued are still processed.
func (p *WorkerPool[In, Out]) Stop() {
	p.stopOnce.Do(p.in.Close)
}

// Wait blocks until every worker has exited.
func (p *WorkerPool[In, Out]) Wait() {
	p.wg.Wait()
}

// Stats returns how many items were turned into successful and failed
// outcomes.
func (p *WorkerPool[In, Out]) Stats() StageStats {
	failed := p.failed.Load()
	return StageStats{
		Succeeded: int(p.processed.Load() - failed),
		Failed:    int(failed),
	}
}

func (p *WorkerPool[In, Out]) work(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		item, err := p.in.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				p.logger.WarnContext(ctx, "analysis worker interrupted",
					"worker", id,
					"error", err,
				)
			}
			return
		}

		// Markers belong to whoever pushed them; the pool only acknowledges.
		if !item.IsMarker() {
			result := p.handle(item.Value())
			if err := p.out.Push(result); err != nil {
				p.logger.ErrorContext(ctx, "result queue rejected outcome",
					"worker", id,
					"error", err,
				)
			}
			p.processed.Add(1)
			if !result.OK() {
				p.failed.Add(1)
			}
		}

		if err := p.in.Done(); err != nil {
			p.logger.ErrorContext(ctx, "acknowledging work item failed",
				"worker", id,
				"error", err,
			)
		}
	}
}

func (p *WorkerPool[In, Out]) handle(o types.Outcome[In]) types.Outcome[Out] {
	if !o.OK() {
		return types.Relay[Out](o)
	}
	return p.apply(o.Data())
}

// apply runs the transform and converts both returned errors and panics into
// failed outcomes.
func (p *WorkerPool[In, Out]) apply(data In) (result types.Outcome[Out]) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("analysis transform panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = types.Failure[Out](fmt.Sprintf("%s: panic: %v", types.ErrCodeTransformFailed, r))
		}
	}()

	v, err := p.transform(data)
	if err != nil {
		return types.Failure[Out](err.Error())
	}
	return types.Success(v)
}
