package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

// localDefaults are added to an exported file unless SSM supplied the key.
var localDefaults = map[string]string{
	"APP_ENV":     "local",
	"LOG_LEVEL":   "debug",
	"CITIES_FILE": "cities.json",
	"PORT":        "8080",
}

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath string
	SSM        *SSMManager
	Stderr     io.Writer

	// IncludeLocalDefaults adds localDefaults for keys SSM did not supply.
	IncludeLocalDefaults bool

	// Inventory defaults to BuildInventory.
	Inventory []BootstrapStep
}

// ExportEnvFile reads every inventory parameter back from SSM and writes
// them as a dotenv file readable by the config loader. Parameters that do
// not exist are left out with a warning. The file is created with 0600
// permissions because it holds decrypted secrets.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.OutputPath == "" {
		return errors.New("export path must not be empty")
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	inventory := cfg.Inventory
	if inventory == nil {
		inventory = BuildInventory(NewValidatorWithDeps(nil, ""))
	}

	env := make(map[string]string, len(inventory)+len(localDefaults))
	for _, step := range inventory {
		value, err := cfg.SSM.Read(ctx, step.Param)
		if errors.Is(err, errNotStored) {
			fmt.Fprintf(stderr, "  Warning: %s not found, %s left out\n", cfg.SSM.Path(step.Param), step.Param.EnvVar)
			continue
		}
		if err != nil {
			return fmt.Errorf("exporting %s: %w", step.Param.EnvVar, err)
		}
		env[step.Param.EnvVar] = value
	}

	if cfg.IncludeLocalDefaults {
		for key, value := range localDefaults {
			if _, ok := env[key]; !ok {
				env[key] = value
			}
		}
	}

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding .env: %w", err)
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(stderr, "  Wrote %d variables to %s\n", len(env), cfg.OutputPath)
	return nil
}
