// Package main is the entrypoint for the scheduled Ranker Lambda function.
//
// An EventBridge rule invokes the Ranker once a day. It ranks the configured
// cities (or the subset named in the event), uploads the rating report to
// REPORT_BUCKET and announces the run on RANKING_QUEUE_URL.
//
// This file handles dependency wiring (Cold Start) and delegates the ranking
// itself to internal/forecasts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"forecasting/internal/config"
	"forecasting/internal/forecasts"
	"forecasting/internal/metrics"
	"forecasting/internal/pipeline"
	"forecasting/internal/queue"
	"forecasting/internal/report"
	"forecasting/internal/types"
)

// RankerInput is the invocation event. Both fields are optional.
type RankerInput struct {
	// Cities restricts the run to these registry names; empty ranks all.
	Cities []string `json:"cities,omitempty"`
	// ReportKey is the object key of the report inside REPORT_BUCKET.
	// Defaults to ratings/YYYY/MM/DD/rating-HHMMSS.csv.
	ReportKey string `json:"report_key,omitempty"`
}

// rankingService is the part of forecasts.Service the handler needs.
type rankingService interface {
	RankWithReport(ctx context.Context, cities []string, sink report.Sink) (*pipeline.Result, error)
}

// completionPublisher announces finished runs.
type completionPublisher interface {
	Publish(ctx context.Context, msg types.RankingCompleted) error
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}))

	logger.Info("Ranker Lambda initializing (cold start)")

	store := config.NewSSMStore(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(store)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireRanker(); err != nil {
		logger.Error("ranker configuration incomplete", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWS.EndpointURL != ""
	})
	sqsClient := sqs.NewFromConfig(awsCfg)

	var pipelineMetrics metrics.PipelineMetrics = metrics.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		pipelineMetrics = metrics.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	stack, err := forecasts.NewStack(cfg, forecasts.StackDeps{
		Archive: s3Client,
		Metrics: pipelineMetrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to build ranking stack", "error", err)
		os.Exit(1)
	}

	publisher := queue.NewRankingPublisher(sqsClient, cfg.AWS.RankingQueueURL, logger)

	logger.Info("Ranker Lambda initialized",
		"cities", stack.Registry.Len(),
		"report_bucket", cfg.AWS.ReportBucket,
		"queue_url", cfg.AWS.RankingQueueURL,
		"fetch_concurrency", cfg.Pipeline.FetchConcurrency,
		"worker_pool_size", cfg.Pipeline.WorkerPoolSize,
	)

	handler := newHandler(handlerDeps{
		Service:   stack.Service,
		S3:        s3Client,
		Bucket:    cfg.AWS.ReportBucket,
		Publisher: publisher,
		Logger:    logger,
	})

	lambda.Start(handler)
}

// handlerDeps holds what newHandler closes over.
type handlerDeps struct {
	Service   rankingService
	S3        report.S3PutClient
	Bucket    string
	Publisher completionPublisher
	Logger    *slog.Logger
	Now       func() time.Time // default time.Now
}

// newHandler creates the Lambda handler. A failed publish fails the
// invocation so the scheduler's retry policy applies; the report object is
// simply overwritten on retry.
func newHandler(deps handlerDeps) func(ctx context.Context, input RankerInput) (types.RankingCompleted, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return func(ctx context.Context, input RankerInput) (types.RankingCompleted, error) {
		started := now().UTC()
		key := strings.TrimPrefix(input.ReportKey, "/")
		if key == "" {
			key = defaultReportKey(started)
		}
		cities := normalizeCities(input.Cities)

		logger.InfoContext(ctx, "Ranker handler invoked",
			"cities", cities,
			"report_key", key,
		)

		sink := report.NewS3Sink(deps.S3, deps.Bucket, key, logger)
		result, err := deps.Service.RankWithReport(ctx, cities, sink)
		if err != nil {
			logger.ErrorContext(ctx, "ranking run failed", "error", err)
			return types.RankingCompleted{}, fmt.Errorf("ranker failed: %w", err)
		}

		msg := result.Completed(now().UTC())
		if err := deps.Publisher.Publish(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "publishing ranking completion failed",
				"run_id", result.RunID,
				"error", err,
			)
			return types.RankingCompleted{}, fmt.Errorf("ranker failed: %w", err)
		}

		logger.InfoContext(ctx, "ranking run complete",
			"run_id", result.RunID,
			"ranked", msg.Ranked,
			"failed", msg.Failed,
			"best", len(msg.Best),
			"report", msg.Report,
		)
		return msg, nil
	}
}

// defaultReportKey lays reports out by day: ratings/2022/05/26/rating-093000.csv.
func defaultReportKey(t time.Time) string {
	return t.Format("ratings/2006/01/02/rating-150405.csv")
}

// normalizeCities upper-cases and trims names and drops empty entries.
func normalizeCities(names []string) []string {
	var out []string
	for _, name := range names {
		if name = strings.ToUpper(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}
