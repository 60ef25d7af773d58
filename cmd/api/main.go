// Package main is the entry point for the forecasting API server.
//
// It loads the configuration, wires the ranking service into the core
// chassis (middleware, routing, health checks) and serves requests.
//
// Outside Lambda it runs as a standard HTTP server on the configured port.
// Inside Lambda it answers API Gateway HTTP API (payload v2) events through
// the same chi router.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"forecasting/internal/api/handlers"
	"forecasting/internal/config"
	"forecasting/internal/core"
	"forecasting/internal/forecasts"
	"forecasting/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// Secrets referenced by *_SSM_PARAM variables are resolved while loading.
	// The store creates its SSM client only when a lookup is needed, and
	// local runs never reach it.
	store := config.NewSSMStore(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(store)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("forecasting API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		logger.Info("running in Lambda mode")
		lambda.Start(newLambdaHandler(srv.Handler()))
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires the ranking stack into a core.Server and mounts its
// routes.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWS.EndpointURL != ""
	})

	prom := metrics.NewPrometheusMetrics()
	collector := metrics.Multi{prom}
	if cfg.Observability.EnableMetrics {
		collector = append(collector, metrics.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		))
	}

	stack, err := forecasts.NewStack(cfg, forecasts.StackDeps{
		Archive: s3Client,
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.MetricsHandler = prom.Handler()
	srv.HealthChecks = healthChecks(stack)

	rankingHandler := handlers.NewRankingHandler(stack.Service, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, rankingHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// healthChecks reports the city registry and the forecast API circuit
// breakers. Breakers are kept per source, so a single dead city does not
// make the service unhealthy; every known source being open does.
func healthChecks(stack *forecasts.Stack) []core.HealthCheck {
	return []core.HealthCheck{
		core.CheckFunc{
			CheckName: "cities",
			Fn: func(context.Context) error {
				if stack.Registry.Len() == 0 {
					return errors.New("no cities configured")
				}
				return nil
			},
		},
		core.CheckFunc{
			CheckName: "forecast_api",
			Fn: func(context.Context) error {
				if b := stack.Upstream.Breakers(); b.Total > 0 && b.Open == b.Total {
					return fmt.Errorf("circuit breaker is open for all %d sources", b.Total)
				}
				return nil
			},
		},
	}
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// A ranking run may take up to the request timeout; leave room to write
	// the response after it.
	writeTimeout := cfg.Server.RequestTimeout + 10*time.Second

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger on stdout at the given level.
func newLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	})
	return slog.New(handler)
}
