// Package pipeline implements the concurrent ranking pipeline:
//
//	sources -> FetchStage -> work queue -> WorkerPool -> result queue
//	        -> Drain -> Aggregator -> report
//
// The fetch stage is an I/O-bound fan-out bounded by an errgroup limit. The
// worker pool is a fixed set of goroutines running the CPU-bound analysis.
// The two queues are the only state shared between stages, and every
// per-city fault is converted into a failed types.Outcome at the point it
// happens, so a single bad city never stops the run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"forecasting/internal/queue"
	"forecasting/internal/types"
)

// DefaultFetchConcurrency is the number of concurrent fetches used when the
// configuration does not set one.
const DefaultFetchConcurrency = 16

// FetchFunc downloads the raw forecast document for one source.
type FetchFunc func(ctx context.Context, src types.Source) (json.RawMessage, error)

// StageStats counts the items a stage handled.
type StageStats struct {
	Succeeded int
	Failed    int
}

// FetchStage fans a list of sources out over a bounded number of concurrent
// fetches and pushes one Outcome per source onto the work queue.
type FetchStage struct {
	fetch       FetchFunc
	concurrency int
	out         *queue.Queue[types.Outcome[types.RawCityData]]
	logger      *slog.Logger

	succeeded atomic.Int64
	failed    atomic.Int64
}

// FetchStageConfig holds the dependencies of a FetchStage.
type FetchStageConfig struct {
	Fetch       FetchFunc
	Concurrency int
	Out         *queue.Queue[types.Outcome[types.RawCityData]]
	Logger      *slog.Logger
}

// NewFetchStage creates a FetchStage. A non-positive concurrency falls back to
// DefaultFetchConcurrency.
func NewFetchStage(cfg FetchStageConfig) *FetchStage {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	return &FetchStage{
		fetch:       cfg.Fetch,
		concurrency: concurrency,
		out:         cfg.Out,
		logger:      logger,
	}
}

// Run fetches every source and returns once each one has been pushed onto
// the work queue as a success or a failure. Fetch errors are never returned;
// they become failed outcomes. Run only returns an error when ctx is
// cancelled before all sources were dispatched.
func (s *FetchStage) Run(ctx context.Context, sources []types.Source) error {
	s.logger.InfoContext(ctx, "fetching city forecasts",
		"sources", len(sources),
		"concurrency", s.concurrency,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.fetchOne(gCtx, src)
			// Per-source failures are queued as data; never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch stage interrupted: %w", err)
	}

	s.logger.InfoContext(ctx, "dispatched all city forecasts",
		"succeeded", s.succeeded.Load(),
		"failed", s.failed.Load(),
	)
	return nil
}

// Stats returns how many sources were fetched successfully and how many
// failed.
func (s *FetchStage) Stats() StageStats {
	return StageStats{
		Succeeded: int(s.succeeded.Load()),
		Failed:    int(s.failed.Load()),
	}
}

func (s *FetchStage) fetchOne(ctx context.Context, src types.Source) {
	payload, err := s.fetch(ctx, src)

	var outcome types.Outcome[types.RawCityData]
	if err != nil {
		s.failed.Add(1)
		s.logger.WarnContext(ctx, "fetching city forecast failed",
			"city", src.City,
			"url", src.URL,
			"error", err,
		)
		outcome = types.Failure[types.RawCityData](fmt.Sprintf("fetch %s: %v", src.City, err))
	} else {
		s.succeeded.Add(1)
		outcome = types.Success(types.RawCityData{City: src.City, Payload: payload})
	}

	if err := s.out.Push(outcome); err != nil {
		s.logger.ErrorContext(ctx, "work queue rejected fetched forecast",
			"city", src.City,
			"error", err,
		)
	}
}
