// Package config defines the configuration of the forecasting binaries.
// Configuration is loaded once at process initialization (CLI start, server
// start or Lambda cold start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Pipeline      PipelineConfig
	Weather       WeatherConfig
	Server        ServerConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// PipelineConfig holds the ranking pipeline tuning and its inputs/outputs.
type PipelineConfig struct {
	CitiesFile       string `envconfig:"CITIES_FILE" default:"cities.json" validate:"required"`
	FetchConcurrency int    `envconfig:"FETCH_CONCURRENCY" default:"16" validate:"min=1,max=256"`
	WorkerPoolSize   int    `envconfig:"WORKER_POOL_SIZE" default:"4" validate:"min=1,max=128"`
	// ReportPath is a local path or s3://bucket/key. Empty disables the report.
	ReportPath string `envconfig:"REPORT_PATH"`
}

// WeatherConfig holds the forecast API client settings.
type WeatherConfig struct {
	APIKey    SecretString  `envconfig:"WEATHER_API_KEY"`
	UserAgent string        `envconfig:"WEATHER_USER_AGENT" default:"Forecasting/1.0"`
	Timeout   time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s" validate:"gt=0"`
	// BreakerThreshold is the number of consecutive failures that opens the
	// circuit breaker.
	BreakerThreshold uint32 `envconfig:"WEATHER_BREAKER_THRESHOLD" default:"5" validate:"min=1"`
	// BlockPrivateNetworks refuses forecast URLs that resolve to loopback,
	// private or link-local addresses.
	BlockPrivateNetworks bool `envconfig:"WEATHER_BLOCK_PRIVATE_NETWORKS" default:"false"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	// RequestTimeout bounds a single API request, including the ranking run
	// it triggers.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s" validate:"gt=0"`
	// CorsAllowedOrigins lists the browser origins allowed to call the API.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers (required by the scheduled ranker only)
	ReportBucket    string `envconfig:"REPORT_BUCKET"`
	RankingQueueURL string `envconfig:"RANKING_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Forecasting"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	// PrometheusPath is where the API serves Prometheus metrics. Empty
	// disables the endpoint.
	PrometheusPath string `envconfig:"PROMETHEUS_PATH" default:"/metrics" validate:"omitempty,startswith=/"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// RequireRanker checks the settings only the scheduled ranker needs.
func (c *Config) RequireRanker() error {
	var missing []string
	if c.AWS.ReportBucket == "" {
		missing = append(missing, "REPORT_BUCKET")
	}
	if c.AWS.RankingQueueURL == "" {
		missing = append(missing, "RANKING_QUEUE_URL")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "ranker requires " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel maps "debug", "info", "warn" and "error" (any case) to their
// slog levels. Anything else is Info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
