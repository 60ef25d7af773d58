package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and RequireRanker.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// localEnv is the APP_ENV value that never reads SSM.
const localEnv = "local"

// resolveTimeout bounds the SSM reads of one LoadConfig call.
const resolveTimeout = 30 * time.Second

// loaderEnv is the process environment as seen by the loader. Tests swap it
// for a map.
type loaderEnv struct {
	lookup func(key string) (string, bool)
	set    func(key, value string) error
}

func osEnv() loaderEnv {
	return loaderEnv{lookup: os.LookupEnv, set: os.Setenv}
}

// LoadConfig builds the Config of the current process:
//
//	.env file (godotenv, never overrides) -> SSM parameters (non-local only)
//	-> envconfig defaults and parsing -> validator rules
//
// Only the forecasting Parameters are read from SSM, and only when their
// {EnvVar}_SSM_PARAM pointer is set and EnvVar itself is not. A nil store is
// fine as long as no pointer needs resolving.
func LoadConfig(store ParameterStore) (*Config, error) {
	return loadConfig(store, osEnv())
}

func loadConfig(store ParameterStore, env loaderEnv) (*Config, error) {
	// Dates in forecasts and reports are calendar days; keep them in UTC.
	time.Local = time.UTC

	_ = godotenv.Load()

	appEnv, _ := env.lookup("APP_ENV")
	if appEnv == "" {
		appEnv = localEnv
	}
	if appEnv != localEnv {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		if err := resolveParameters(ctx, appEnv, store, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return &cfg, nil
}

// resolveParameters copies the SSM value of every pointed-to parameter into
// its variable. Pointers must stay under /{appEnv}/forecasting/ so one
// environment can never read another's values.
func resolveParameters(ctx context.Context, appEnv string, store ParameterStore, env loaderEnv) error {
	prefix := ParameterPrefix(appEnv)

	var (
		pending  []Parameter
		paths    []string
		foreign  []string
		byTarget = make(map[string]string)
	)
	for _, p := range Parameters {
		path, _ := env.lookup(p.PointerVar())
		if path == "" {
			continue
		}
		if _, set := env.lookup(p.EnvVar); set {
			continue
		}
		if !strings.HasPrefix(path, prefix) {
			foreign = append(foreign, p.PointerVar()+"="+path)
			continue
		}
		pending = append(pending, p)
		paths = append(paths, path)
		byTarget[p.EnvVar] = path
	}

	if len(foreign) > 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("SSM parameters outside %s: %s", prefix, strings.Join(foreign, ", ")),
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if store == nil {
		names := make([]string, 0, len(pending))
		for _, p := range pending {
			names = append(names, p.EnvVar)
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "no parameter store to resolve " + strings.Join(names, ", "),
		}
	}

	values, err := store.GetParameters(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to read %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range pending {
		value, ok := values[byTarget[p.EnvVar]]
		if !ok {
			if !p.Optional {
				missing = append(missing, p.EnvVar)
			}
			continue
		}
		if err := env.set(p.EnvVar, value); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to set " + p.EnvVar, Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SSM parameters not found for: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
