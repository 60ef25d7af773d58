// Package main is the command-line entry point of the forecasting ranker.
//
// It fetches the forecast of every configured city, ranks the cities by
// sunny daytime hours and temperature and prints the winners. With -r the
// full rating table is written to a CSV file or an s3:// object.
//
// Usage:
//
//	forecasting [-f 16] [-w 4] [-r] [-o rating.csv] [-c cities.json] [-city MOSCOW -city PARIS]
//
// Flags default to the values of the environment configuration
// (FETCH_CONCURRENCY, WORKER_POOL_SIZE, CITIES_FILE, REPORT_PATH).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/term"

	"forecasting/internal/config"
	"forecasting/internal/forecasts"
	"forecasting/internal/metrics"
	"forecasting/internal/report"
	"forecasting/internal/types"
)

// defaultRatingFile is used by -r when neither -o nor REPORT_PATH is set.
const defaultRatingFile = "rating.csv"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	fetchers   int
	workers    int
	rating     bool
	ratingFile string
	citiesFile string
	cities     cityList
}

// cityList collects repeated -city flags. A single value may also hold a
// comma-separated list.
type cityList []string

func (c *cityList) String() string {
	return strings.Join(*c, ",")
}

func (c *cityList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		*c = append(*c, name)
	}
	return nil
}

// parseFlags parses args. It runs before the configuration is loaded, so
// -h works in any environment; flags left unset stay zero and are filled
// from the configuration by withDefaults. Short and long names share one
// variable, so the last occurrence wins.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("forecasting", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.IntVar(&opts.fetchers, "f", 0, "Number of data fetchers (default FETCH_CONCURRENCY)")
	fs.IntVar(&opts.fetchers, "fetchers", 0, "Number of data fetchers (default FETCH_CONCURRENCY)")
	fs.IntVar(&opts.workers, "w", 0, "Number of analyzing workers (default WORKER_POOL_SIZE)")
	fs.IntVar(&opts.workers, "workers", 0, "Number of analyzing workers (default WORKER_POOL_SIZE)")
	fs.BoolVar(&opts.rating, "r", false, "Save the cities rating to a separate file")
	fs.BoolVar(&opts.rating, "rating", false, "Save the cities rating to a separate file")
	fs.StringVar(&opts.ratingFile, "o", "", "File to store the cities rating (path or s3://bucket/key, .zst compresses; default REPORT_PATH or "+defaultRatingFile+")")
	fs.StringVar(&opts.ratingFile, "rating-file", "", "File to store the cities rating (path or s3://bucket/key, .zst compresses; default REPORT_PATH or "+defaultRatingFile+")")
	fs.StringVar(&opts.citiesFile, "c", "", "JSON file mapping city names to forecast URLs (default CITIES_FILE)")
	fs.Var(&opts.cities, "city", "Rank only this city (repeatable, comma-separated accepted)")

	fs.Usage = func() {
		fmt.Fprintf(output, "Weather forecasts analyzer\n\n")
		fmt.Fprintf(output, "Usage:\n")
		fmt.Fprintf(output, "  forecasting [-f N] [-w N] [-r] [-o FILE] [-c FILE] [-city NAME]...\n\n")
		fmt.Fprintf(output, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if (set["f"] || set["fetchers"]) && opts.fetchers < 1 {
		return options{}, fmt.Errorf("-fetchers must be at least 1, got %d", opts.fetchers)
	}
	if (set["w"] || set["workers"]) && opts.workers < 1 {
		return options{}, fmt.Errorf("-workers must be at least 1, got %d", opts.workers)
	}
	if opts.rating && (set["o"] || set["rating-file"]) && opts.ratingFile == "" {
		return options{}, errors.New("-rating-file must not be empty")
	}
	return opts, nil
}

// withDefaults fills the flags left unset from cfg.
func (o options) withDefaults(cfg *config.Config) options {
	if o.fetchers == 0 {
		o.fetchers = cfg.Pipeline.FetchConcurrency
	}
	if o.workers == 0 {
		o.workers = cfg.Pipeline.WorkerPoolSize
	}
	if o.citiesFile == "" {
		o.citiesFile = cfg.Pipeline.CitiesFile
	}
	if o.ratingFile == "" {
		o.ratingFile = cfg.Pipeline.ReportPath
	}
	if o.ratingFile == "" {
		o.ratingFile = defaultRatingFile
	}
	return o
}

// run parses the flags, loads the configuration, ranks the cities and
// prints the winners to stdout. Logs go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	opts = opts.withDefaults(cfg)
	cfg.Pipeline.FetchConcurrency = opts.fetchers
	cfg.Pipeline.WorkerPoolSize = opts.workers
	cfg.Pipeline.CitiesFile = opts.citiesFile

	logger := newLogger(stderr, cfg.SlogLevel())

	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return err
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWS.EndpointURL != ""
	})

	var sink report.Sink
	if opts.rating {
		sink, err = report.NewSink(opts.ratingFile, s3Client, logger)
		if err != nil {
			return err
		}
	}

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
		Sink:    sink,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("ranking cities",
		"cities_file", cfg.Pipeline.CitiesFile,
		"known_cities", stack.Registry.Len(),
		"filter", []string(opts.cities),
		"fetchers", opts.fetchers,
		"workers", opts.workers,
	)

	result, err := stack.Service.Rank(ctx, opts.cities)
	if err != nil {
		return err
	}

	logger.Info("ranking finished",
		"run_id", result.RunID,
		"ranked", result.Totals.Succeeded,
		"failed", result.Failed(),
		"report", result.Report,
		"duration", result.Duration,
	)

	return printBest(stdout, result.Best)
}

// printBest writes the winners in the form
//
//	Best city(ies):
//	MOSCOW. Shiny hours: 42. Average temperature: 17.30
func printBest(w io.Writer, best []types.TotalSummary) error {
	if _, err := fmt.Fprintln(w, "Best city(ies):"); err != nil {
		return err
	}
	for _, city := range best {
		if _, err := fmt.Fprintf(w, "%s. Shiny hours: %d. Average temperature: %.2f\n",
			city.City(), city.ShinyHours, city.TempAvg()); err != nil {
			return err
		}
	}
	return nil
}

// newLogger writes human-readable text when w is a terminal and JSON lines
// otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
