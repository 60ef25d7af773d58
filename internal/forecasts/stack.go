package forecasts

import (
	"fmt"
	"log/slog"
	"net/http"

	"forecasting/internal/config"
	"forecasting/internal/external"
	"forecasting/internal/metrics"
	"forecasting/internal/pipeline"
	"forecasting/internal/report"
)

// maxRedirects caps redirects followed by the guarded forecast client.
const maxRedirects = 3

// StackDeps carries the clients a Stack cannot build from configuration
// alone. Every field is optional.
type StackDeps struct {
	// Archive serves s3:// forecast sources. Without it those cities fail.
	Archive S3GetClient
	Metrics metrics.PipelineMetrics
	// Sink receives the report of every Rank call. RankWithReport overrides it.
	Sink   report.Sink
	Logger *slog.Logger
}

// Stack is the wired ranking service together with the pieces the entry
// points inspect directly.
type Stack struct {
	Service  *Service
	Registry *Registry
	Upstream *external.BaseClient
}

// NewStack loads the city registry and wires the forecast client, the
// archive reader and the pipeline runner from cfg.
func NewStack(cfg *config.Config, deps StackDeps) (*Stack, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := LoadRegistry(cfg.Pipeline.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("loading city registry: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Weather.Timeout}
	if cfg.Weather.BlockPrivateNetworks {
		httpClient = external.NewGuardedHTTPClient(cfg.Weather.Timeout, maxRedirects, nil)
	}
	upstream := external.NewBaseClient(
		httpClient,
		external.BreakerSettings{
			Name:          "forecast-api",
			TripThreshold: cfg.Weather.BreakerThreshold,
		},
		cfg.Weather.UserAgent,
	)
	client := NewClient(upstream, cfg.Weather.APIKey, logger)

	var archive SourceFetcher
	if deps.Archive != nil {
		archive = NewArchiveReader(deps.Archive, logger)
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Fetch:            NewFetcher(client, archive).Fetch,
		Analyze:          Analyze,
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		PoolSize:         cfg.Pipeline.WorkerPoolSize,
		Sink:             deps.Sink,
		Metrics:          deps.Metrics,
		Logger:           logger,
	})

	return &Stack{
		Service:  NewService(registry, runner, logger),
		Registry: registry,
		Upstream: upstream,
	}, nil
}
