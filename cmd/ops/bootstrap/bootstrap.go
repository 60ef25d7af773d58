package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"forecasting/internal/config"
)

// InputSource describes how the value for a bootstrap step is obtained.
type InputSource int

const (
	// SourcePrompt means the operator types the value.
	SourcePrompt InputSource = iota
	// SourceFixed means the value is a constant of the deployment.
	SourceFixed
)

// BootstrapStep is one parameter of the inventory. Param.Secure input is
// read without echo; Param.Optional steps are skipped on empty input
// without asking.
type BootstrapStep struct {
	HumanLabel string
	Param      config.Parameter
	Source     InputSource
	FixedValue string
	Prompt     string

	// ValidateFn checks operator input. Nil accepts anything.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	Phase string
}

// maxRetries is how often the operator may retry an invalid value.
const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the ordered parameters of a forecasting deployment,
// one step per config.Parameters entry.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel: "Weather API Key",
			Param:      config.ParamWeatherAPIKey,
			Source:     SourcePrompt,
			Prompt: `1. Open the weather provider's developer console.
   2. Create a key for the forecast API.
   3. Paste it here:`,
			ValidateFn: v.ValidateWeatherAPIKey,
			Phase:      "Forecast Provider",
		},
		{
			HumanLabel: "Weather User Agent",
			Param:      config.ParamWeatherUserAgent,
			Source:     SourceFixed,
			FixedValue: "Forecasting/1.0",
			Phase:      "Forecast Provider",
		},
		{
			HumanLabel: "Report Bucket",
			Param:      config.ParamReportBucket,
			Source:     SourcePrompt,
			Prompt:     `Paste the name of the S3 bucket that receives rating reports:`,
			ValidateFn: v.ValidateBucketName,
			Phase:      "Ranker Resources",
		},
		{
			HumanLabel: "Ranking Queue URL",
			Param:      config.ParamRankingQueueURL,
			Source:     SourcePrompt,
			Prompt:     `Paste the URL of the SQS queue that receives ranking-completed events:`,
			ValidateFn: v.ValidateQueueURL,
			Phase:      "Ranker Resources",
		},
		{
			HumanLabel: "Metric Namespace (optional)",
			Param:      config.ParamMetricNamespace,
			Source:     SourcePrompt,
			Prompt:     `CloudWatch namespace for pipeline metrics (or press Enter to keep "Forecasting"):`,
			Phase:      "Ranker Resources",
		},
	}
}

// BootstrapRunner drives the inventory against SSM.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// scanner is shared so buffered input is not lost between prompts.
	scanner *bufio.Scanner

	// inventoryOverride replaces BuildInventory in tests.
	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext, v *Validator) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: v,
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run checks each parameter in SSM, prompts for missing or replaced values,
// validates them and writes them. It prints a summary at the end.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	var results []stepResult

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepResult struct {
	Label      string
	Action     string // written, skipped, overwritten
	Path       string
	PointerVar string
	// Stored is set when SSM holds a value for Path after the step.
	Stored bool
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.Path(step.Param)
	result := stepResult{Label: step.HumanLabel, Path: path, PointerVar: step.Param.PointerVar()}

	exists, err := r.SSM.Exists(ctx, step.Param)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		choice, err := r.promptSkipOrOverwrite()
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			result.Stored = true
			return result, nil
		}
	}

	var value string
	switch step.Source {
	case SourcePrompt:
		value, err = r.promptAndValidate(ctx, step)
		if errors.Is(err, errSkipped) {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
		if err != nil {
			return result, err
		}
	case SourceFixed:
		value = step.FixedValue
		fmt.Fprintf(r.Stderr, "  Using fixed value: %s\n", value)
	}

	if err := r.SSM.Write(ctx, step.Param, value, exists); err != nil {
		return result, err
	}

	result.Action = "written"
	result.Stored = true
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads a value, retrying up to maxRetries times while
// validation fails. Secret input is never echoed.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var input string
		var err error
		if step.Param.Secure {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Param.Optional {
				return "", errSkipped
			}
			choice, err := r.promptSkipOrRetry()
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			// Retrying after empty input does not use up an attempt.
			attempt--
			continue
		}

		if step.Param.Secure {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reading for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(secret), nil
	}
	return r.scanLine()
}

func (r *BootstrapRunner) promptSkipOrOverwrite() (string, error) {
	return r.promptChoice("  [S]kip or [O]verwrite? ", map[string]string{
		"s": "skip", "skip": "skip",
		"o": "overwrite", "overwrite": "overwrite",
	}, "  Please enter 'S' to skip or 'O' to overwrite.\n")
}

func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	return r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", map[string]string{
		"s": "skip", "skip": "skip",
		"r": "retry", "retry": "retry",
	}, "  Please enter 'S' to skip or 'R' to retry.\n")
}

func (r *BootstrapRunner) promptChoice(prompt string, choices map[string]string, help string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)
		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		if choice, ok := choices[strings.TrimSpace(strings.ToLower(line))]; ok {
			return choice, nil
		}
		fmt.Fprint(r.Stderr, help)
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

// printSummary lists every step's action and the _SSM_PARAM variables the
// deployment must set for the stored parameters.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")

	fmt.Fprintf(r.Stderr, "  Deployment environment:\n")
	for _, res := range results {
		if res.Stored {
			fmt.Fprintf(r.Stderr, "    %s=%s\n", res.PointerVar, res.Path)
		}
	}
	fmt.Fprintln(r.Stderr)
}
