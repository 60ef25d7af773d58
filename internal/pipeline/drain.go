package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"

	"forecasting/internal/queue"
	"forecasting/internal/types"
)

// Drain returns a lazy, one-shot sequence over the outcomes buffered in q.
//
// On first iteration it appends its own end-of-stream marker and then pops,
// acknowledges and yields items until that marker comes back. The caller
// must guarantee that nothing else is pushed to q once draining starts
// (the Runner joins the upstream queue first). Markers pushed by other
// readers are acknowledged and skipped. A second iteration yields nothing;
// build a new sequence to drain again.
func Drain[T any](ctx context.Context, q *queue.Queue[types.Outcome[T]], logger *slog.Logger) iter.Seq[types.Outcome[T]] {
	if logger == nil {
		logger = slog.Default()
	}
	var used atomic.Bool

	return func(yield func(types.Outcome[T]) bool) {
		if used.Swap(true) {
			return
		}

		marker, err := q.Mark()
		if err != nil {
			logger.ErrorContext(ctx, "cannot mark end of result queue", "error", err)
			return
		}

		for {
			item, err := q.Pop(ctx)
			if err != nil {
				logger.WarnContext(ctx, "result drain stopped early", "error", err)
				return
			}
			if err := q.Done(); err != nil {
				logger.ErrorContext(ctx, "acknowledging result failed", "error", err)
			}

			if item.Is(marker) {
				return
			}
			if item.IsMarker() {
				continue
			}
			if !yield(item.Value()) {
				return
			}
		}
	}
}
