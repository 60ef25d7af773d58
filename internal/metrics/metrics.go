// Package metrics records pipeline and API telemetry. The CloudWatch
// implementation publishes per-run counters and per-request latency;
// NoopMetrics is used when metrics are disabled (local runs and tests).
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"forecasting/internal/types"
)

// StageResult is the Result dimension value of a StageItems datum.
type StageResult string

const (
	ResultSuccess StageResult = "success"
	ResultFailure StageResult = "failure"
)

// RunReport is the telemetry summary of one pipeline run.
type RunReport struct {
	Ranked   int
	Failed   int
	Duration time.Duration
	Stages   map[string]StageCounts
}

// StageCounts is the number of successful and failed items of one stage.
type StageCounts struct {
	Succeeded int
	Failed    int
}

// PipelineMetrics records the outcome of ranking runs.
type PipelineMetrics interface {
	RecordRun(ctx context.Context, report RunReport)
}

// RequestMetrics records API request latency and counts.
type RequestMetrics interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

// RecordRun does nothing.
func (NoopMetrics) RecordRun(context.Context, RunReport) {}

// RecordRequest does nothing.
func (NoopMetrics) RecordRequest(string, string, string, time.Duration) {}

// requestPublishTimeout bounds the PutMetricData call made per API request.
const requestPublishTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertions.
var (
	_ PipelineMetrics = (*CloudWatchMetrics)(nil)
	_ RequestMetrics  = (*CloudWatchMetrics)(nil)
	_ PipelineMetrics = NoopMetrics{}
	_ RequestMetrics  = NoopMetrics{}
)

// CloudWatchMetrics publishes run telemetry to CloudWatch.
//
// Metrics emitted per run, in a single PutMetricData call:
//   - CitiesRanked: no dims
//   - CityFailures: no dims
//   - PipelineDuration: no dims, milliseconds
//   - StageItems: Dims {Stage, Result}, one datum per stage and result
//
// and per API request:
//   - APILatency: Dims {Method, Endpoint, Status}, milliseconds
//   - APIRequestCount: Dims {Method, Endpoint, Status}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing into namespace.
// An empty namespace falls back to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRun publishes the run report. Publishing failures are logged and
// otherwise ignored; telemetry never fails a run.
func (m *CloudWatchMetrics) RecordRun(ctx context.Context, report RunReport) {
	data := []cwtypes.MetricDatum{
		count(types.MetricCitiesRanked, report.Ranked),
		count(types.MetricCityFailures, report.Failed),
		{
			MetricName: aws.String(types.MetricPipelineDuration),
			Value:      aws.Float64(float64(report.Duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
	}

	for stage, counts := range report.Stages {
		data = append(data,
			stageDatum(stage, ResultSuccess, counts.Succeeded),
			stageDatum(stage, ResultFailure, counts.Failed),
		)
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record pipeline metrics",
			"error", err.Error(),
			"ranked", report.Ranked,
			"failed", report.Failed,
		)
	}
}

// RecordRequest publishes latency and count for one API request. It is
// called after the response is written, so it uses its own short deadline.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Dimensions: dims,
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
			{
				MetricName: aws.String(types.MetricAPIRequestCount),
				Dimensions: dims,
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestPublishTimeout)
	defer cancel()
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record request metrics",
			"error", err.Error(),
			"method", method,
			"endpoint", endpoint,
		)
	}
}

func count(name string, v int) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(v)),
		Unit:       cwtypes.StandardUnitCount,
	}
}

func stageDatum(stage string, result StageResult, v int) cwtypes.MetricDatum {
	d := count(types.MetricStageItems, v)
	d.Dimensions = []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimStage),
			Value: aws.String(stage),
		},
		{
			Name:  aws.String(types.DimResult),
			Value: aws.String(string(result)),
		},
	}
	return d
}
