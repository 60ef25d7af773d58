package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"forecasting/internal/metrics"
	"forecasting/internal/queue"
	"forecasting/internal/report"
	"forecasting/internal/types"
)

// AnalyzeFunc turns a fetched forecast into a per-day city summary.
type AnalyzeFunc = TransformFunc[types.RawCityData, types.CitySummary]

// Result is the output of one ranking run.
type Result struct {
	RunID    string
	Best     []types.TotalSummary
	Table    report.Table // nil unless a report sink was configured
	Report   string       // sink location, empty without a sink
	Fetch    StageStats
	Analyze  StageStats
	Totals   AggregateStats
	Duration time.Duration
}

// Failed counts the cities left out of the ranking: failed fetches or
// analyses plus malformed summaries.
func (r *Result) Failed() int {
	return r.Totals.Failed + r.Totals.Malformed
}

// BestCities returns the public view of the winners.
func (r *Result) BestCities() []types.BestCity {
	best := make([]types.BestCity, 0, len(r.Best))
	for _, t := range r.Best {
		best = append(best, types.NewBestCity(t))
	}
	return best
}

// Completed builds the event announcing this run.
func (r *Result) Completed(generatedAt time.Time) types.RankingCompleted {
	return types.RankingCompleted{
		RunID:       r.RunID,
		Best:        r.BestCities(),
		Ranked:      r.Totals.Succeeded,
		Failed:      r.Failed(),
		Report:      r.Report,
		GeneratedAt: generatedAt,
	}
}

// Runner wires the stages together for a single ranking run. A Runner holds
// no per-run state and may be reused, including concurrently.
type Runner struct {
	fetch            FetchFunc
	analyze          AnalyzeFunc
	fetchConcurrency int
	poolSize         int
	sink             report.Sink
	metrics          metrics.PipelineMetrics
	logger           *slog.Logger
}

// RunnerConfig holds the dependencies and tuning of a Runner.
type RunnerConfig struct {
	Fetch            FetchFunc
	Analyze          AnalyzeFunc
	FetchConcurrency int // default DefaultFetchConcurrency
	PoolSize         int // default DefaultPoolSize
	Sink             report.Sink
	Metrics          metrics.PipelineMetrics
	Logger           *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Runner{
		fetch:            cfg.Fetch,
		analyze:          cfg.Analyze,
		fetchConcurrency: cfg.FetchConcurrency,
		poolSize:         cfg.PoolSize,
		sink:             cfg.Sink,
		metrics:          m,
		logger:           logger,
	}
}

// WithSink returns a copy of the runner that writes its report to sink.
func (r *Runner) WithSink(sink report.Sink) *Runner {
	cp := *r
	cp.sink = sink
	return &cp
}

// Run executes the pipeline over sources:
//
//  1. Start the analysis pool.
//  2. Fetch every source onto the work queue.
//  3. Join the work queue: every fetched item has been analyzed and its
//     outcome sits on the result queue.
//  4. Stop the pool and wait for its workers.
//  5. Drain the result queue through the aggregator.
//  6. Write the report (when a sink is configured) and pick the best cities.
//
// Per-city failures are logged and leave the city out of the result; a run
// in which every city fails returns an empty Result and no error. Errors are
// returned only for cancellation and report write failures.
func (r *Runner) Run(ctx context.Context, sources []types.Source) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = types.WithRunID(ctx, runID)
	logger := r.logger.With("run_id", runID)

	workQ := queue.New[types.Outcome[types.RawCityData]]()
	resultQ := queue.New[types.Outcome[types.CitySummary]]()

	pool := NewWorkerPool(WorkerPoolConfig[types.RawCityData, types.CitySummary]{
		Transform: r.analyze,
		Size:      r.poolSize,
		In:        workQ,
		Out:       resultQ,
		Logger:    logger,
	})
	fetcher := NewFetchStage(FetchStageConfig{
		Fetch:       r.fetch,
		Concurrency: r.fetchConcurrency,
		Out:         workQ,
		Logger:      logger,
	})

	pool.Start(ctx)
	shutdown := func() {
		pool.Stop()
		pool.Wait()
	}

	logger.InfoContext(ctx, "start fetching cities data", "pool_size", pool.Size())
	if err := fetcher.Run(ctx, sources); err != nil {
		shutdown()
		return nil, err
	}
	if err := workQ.Join(ctx); err != nil {
		shutdown()
		return nil, fmt.Errorf("waiting for analysis: %w", err)
	}
	logger.InfoContext(ctx, "fetched and analyzed all cities data")
	shutdown()

	agg := NewAggregator(logger)
	totals := agg.Aggregate(Drain(ctx, resultQ, logger))

	result := &Result{RunID: runID}
	if r.sink != nil {
		collected := slices.Collect(totals)
		result.Table = report.Build(collected)
		if err := r.sink.Write(ctx, result.Table); err != nil {
			return nil, err
		}
		result.Report = r.sink.Location()
		result.Best = report.FindBest(slices.Values(collected))
	} else {
		result.Best = report.FindBest(totals)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("draining results: %w", err)
	}

	result.Fetch = fetcher.Stats()
	result.Analyze = pool.Stats()
	result.Totals = agg.Stats()
	result.Duration = time.Since(start)

	r.metrics.RecordRun(ctx, metrics.RunReport{
		Ranked:   result.Totals.Succeeded,
		Failed:   result.Failed(),
		Duration: result.Duration,
		Stages: map[string]metrics.StageCounts{
			types.StageFetch:   {Succeeded: result.Fetch.Succeeded, Failed: result.Fetch.Failed},
			types.StageAnalyze: {Succeeded: result.Analyze.Succeeded, Failed: result.Analyze.Failed},
			types.StageAggregate: {
				Succeeded: result.Totals.Succeeded,
				Failed:    result.Totals.Malformed,
			},
		},
	})

	logger.InfoContext(ctx, "ranking run complete",
		"cities", len(sources),
		"ranked", result.Totals.Succeeded,
		"failed", result.Totals.Failed,
		"malformed", result.Totals.Malformed,
		"best", len(result.Best),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}
