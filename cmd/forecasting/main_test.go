package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecasting/internal/config"
	"forecasting/internal/types"
)

func defaultConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			CitiesFile:       "cities.json",
			FetchConcurrency: 16,
			WorkerPoolSize:   4,
		},
	}
}

// parseWith parses args and fills the unset flags from cfg, as run does.
func parseWith(args []string, cfg *config.Config) (options, error) {
	opts, err := parseFlags(args, &bytes.Buffer{})
	if err != nil {
		return options{}, err
	}
	return opts.withDefaults(cfg), nil
}

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseWith(nil, defaultConfig())

	require.NoError(t, err)
	assert.Equal(t, 16, opts.fetchers)
	assert.Equal(t, 4, opts.workers)
	assert.False(t, opts.rating)
	assert.Equal(t, "rating.csv", opts.ratingFile)
	assert.Equal(t, "cities.json", opts.citiesFile)
	assert.Empty(t, opts.cities)
}

func TestParseFlags_ShortAndLongNames(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"short", []string{"-f", "8", "-w", "2", "-r", "-o", "out.csv"}},
		{"long", []string{"-fetchers", "8", "-workers", "2", "-rating", "-rating-file", "out.csv"}},
		{"double dash", []string{"--fetchers=8", "--workers=2", "--rating", "--rating-file=out.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseWith(tt.args, defaultConfig())

			require.NoError(t, err)
			assert.Equal(t, 8, opts.fetchers)
			assert.Equal(t, 2, opts.workers)
			assert.True(t, opts.rating)
			assert.Equal(t, "out.csv", opts.ratingFile)
		})
	}
}

func TestParseFlags_Cities(t *testing.T) {
	opts, err := parseWith([]string{"-city", "moscow", "-city", "Paris, berlin,", "-c", "other.json"}, defaultConfig())

	require.NoError(t, err)
	assert.Equal(t, cityList{"MOSCOW", "PARIS", "BERLIN"}, opts.cities)
	assert.Equal(t, "other.json", opts.citiesFile)
}

func TestParseFlags_ReportPathDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.Pipeline.ReportPath = "s3://reports/rating.csv.zst"

	opts, err := parseWith([]string{"-r"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/rating.csv.zst", opts.ratingFile)

	opts, err = parseWith([]string{"-r", "-o", "local.csv"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "local.csv", opts.ratingFile, "flag wins over REPORT_PATH")
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"zero fetchers", []string{"-f", "0"}, "-fetchers must be at least 1"},
		{"negative workers", []string{"-w", "-3"}, "-workers must be at least 1"},
		{"not a number", []string{"-f", "many"}, "invalid value"},
		{"unknown flag", []string{"-x"}, "flag provided but not defined"},
		{"positional", []string{"MOSCOW"}, "unexpected arguments: MOSCOW"},
		{"empty rating file", []string{"-r", "-o", ""}, "-rating-file must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &out)

	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "Weather forecasts analyzer")
	assert.Contains(t, out.String(), "-rating-file")
	assert.Contains(t, out.String(), "FETCH_CONCURRENCY")
}

func TestRun_HelpIgnoresInvalidEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "nowhere")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-h"}, &stdout, &stderr)

	assert.True(t, errors.Is(err, flag.ErrHelp), "got %v", err)
	assert.Contains(t, stderr.String(), "Weather forecasts analyzer")
	assert.Empty(t, stdout.String())
}

func TestRun_InvalidEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "nowhere")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestPrintBest(t *testing.T) {
	best := []types.TotalSummary{
		{CitySummary: types.CitySummary{City: "MOSCOW"}, TempSum: 173, ShinyHours: 42, AnalyzingHours: 10},
		{CitySummary: types.CitySummary{City: "PARIS"}, TempSum: 0, ShinyHours: 42},
	}
	var out bytes.Buffer

	require.NoError(t, printBest(&out, best))

	assert.Equal(t,
		"Best city(ies):\n"+
			"MOSCOW. Shiny hours: 42. Average temperature: 17.30\n"+
			"PARIS. Shiny hours: 42. Average temperature: 0.00\n",
		out.String())
}

func TestNewLogger_NonTerminalWritesJSON(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger(&out, config.ParseLogLevel("warn"))

	logger.Info("hidden")
	logger.Warn("shown", "city", "MOSCOW")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "MOSCOW", entry["city"])
}

// forecastBody returns a one-day forecast where every hour has the given
// temperature and condition.
func forecastBody(temp float64, condition string) string {
	hours := make([]string, 0, 24)
	for h := range 24 {
		hours = append(hours, fmt.Sprintf(`{"hour":"%d","temp":%g,"condition":%q}`, h, temp, condition))
	}
	return `{"forecasts":[{"date":"2022-05-26","hours":[` + strings.Join(hours, ",") + `]}]}`
}

func TestRun_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moscow":
			fmt.Fprint(w, forecastBody(18, "clear"))
		case "/paris":
			fmt.Fprint(w, forecastBody(21, "rain"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "local")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("LOG_LEVEL", "error")

	cities, err := json.Marshal(map[string]string{
		"MOSCOW": server.URL + "/moscow",
		"PARIS":  server.URL + "/paris",
	})
	require.NoError(t, err)
	citiesFile := filepath.Join(dir, "cities.json")
	require.NoError(t, os.WriteFile(citiesFile, cities, 0o600))
	ratingFile := filepath.Join(dir, "rating.csv")

	var stdout, stderr bytes.Buffer
	err = run(context.Background(), []string{"-c", citiesFile, "-f", "2", "-w", "1", "-r", "-o", ratingFile}, &stdout, &stderr)

	require.NoError(t, err, stderr.String())
	assert.Equal(t, "Best city(ies):\nMOSCOW. Shiny hours: 11. Average temperature: 18.00\n", stdout.String())

	rating, err := os.ReadFile(ratingFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rating), "City,Measurement/days,2022-05-26,Average,Rating\n"))
	assert.Contains(t, string(rating), "MOSCOW")
	assert.Contains(t, string(rating), "PARIS")
}

func TestRun_UnknownCity(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "error")
	citiesFile := filepath.Join(dir, "cities.json")
	require.NoError(t, os.WriteFile(citiesFile, []byte(`{"MOSCOW":"http://127.0.0.1:1/moscow"}`), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", citiesFile, "-city", "atlantis"}, &stdout, &stderr)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "got %v", err)
	assert.Equal(t, types.ErrCodeConfigUnknownCity, appErr.Code)
	assert.Empty(t, stdout.String())
}
