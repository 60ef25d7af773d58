package forecasts

import (
	"context"
	"log/slog"

	"forecasting/internal/pipeline"
	"forecasting/internal/report"
)

// Service ranks cities of a Registry on demand. It backs the HTTP API and
// the scheduled ranker.
type Service struct {
	registry *Registry
	runner   *pipeline.Runner
	logger   *slog.Logger
}

// NewService creates a Service running runner over cities of registry.
func NewService(registry *Registry, runner *pipeline.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		runner:   runner,
		logger:   logger,
	}
}

// Cities returns the names of every known city, sorted.
func (s *Service) Cities() []string {
	return s.registry.Names()
}

// Rank runs the pipeline over the named cities; no names means every city.
// Unknown names fail before any fetch with config_unknown_city.
func (s *Service) Rank(ctx context.Context, cities []string) (*pipeline.Result, error) {
	sources, err := s.registry.Resolve(cities)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, sources)
}

// RankWithReport is Rank with the report table built and written to sink.
// A nil sink keeps the table in memory; Result.Table carries it either way.
func (s *Service) RankWithReport(ctx context.Context, cities []string, sink report.Sink) (*pipeline.Result, error) {
	sources, err := s.registry.Resolve(cities)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = &report.MemorySink{}
	}
	return s.runner.WithSink(sink).Run(ctx, sources)
}
