// Package main implements the bootstrap CLI for the forecasting deployment.
//
// It walks an operator through the parameters the deployed ranker and API
// read from AWS SSM Parameter Store, writes them under
// /{env}/forecasting/, and can export them to a .env file for local runs.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap -env=dev
//	go run ./cmd/ops/bootstrap -env=dev -export-env
//	go run ./cmd/ops/bootstrap -env=prod -profile=forecasting-prod -region=eu-west-1
//
// The tool:
//  1. Verifies the active AWS identity with STS GetCallerIdentity.
//  2. Requires typing "yes" before touching prod.
//  3. Prompts for each missing parameter, validates it and stores it.
//  4. Optionally reads the parameters back into a .env file.
package main

import (
	"bufio"
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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"forecasting/internal/config"
)

// Supported environments for the bootstrap tool.
var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// BootstrapContext holds the session-wide context established during
// initialization.
type BootstrapContext struct {
	Environment string
	AWSProfile  string
	AWSRegion   string

	// AccountID and CallerARN come from STS GetCallerIdentity.
	AccountID string
	CallerARN string

	AWSConfig aws.Config
	Logger    *slog.Logger
}

type options struct {
	env        string
	profile    string
	region     string
	verifyURL  string
	exportEnv  bool
	exportPath string
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.env, "env", "", "Target environment (dev/staging/prod) [required]")
	fs.StringVar(&opts.profile, "profile", "", "AWS CLI profile (default: uses default credential chain)")
	fs.StringVar(&opts.region, "region", "us-east-1", "AWS region")
	fs.StringVar(&opts.verifyURL, "verify-url", "", "Forecast URL used to verify the weather API key (skipped when empty)")
	fs.BoolVar(&opts.exportEnv, "export-env", false, "After bootstrap, export the SSM parameters to a .env file")
	fs.StringVar(&opts.exportPath, "export-env-path", ".env", "Path for the exported .env file")
	fs.Usage = func() {
		fmt.Fprintf(output, "Forecasting Bootstrap Tool\n\n")
		fmt.Fprintf(output, "Stores the SSM parameters the deployed ranker and API read at start.\n\n")
		fmt.Fprintf(output, "Usage:\n")
		fmt.Fprintf(output, "  bootstrap -env=dev [-profile=NAME] [-region=REGION] [-export-env]\n\n")
		fmt.Fprintf(output, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.env == "" {
		return opts, errors.New("-env is required")
	}
	if !validEnvironments[opts.env] {
		return opts, fmt.Errorf("invalid environment %q (must be dev, staging, or prod)", opts.env)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bctx, err := initializeSession(ctx, opts.env, opts.profile, opts.region, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if bctx.Environment == "prod" && !confirmProduction(os.Stdin, os.Stderr, bctx) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		os.Exit(0)
	}

	printBanner(os.Stderr, bctx)

	runner := NewBootstrapRunner(bctx, NewValidator(opts.verifyURL))
	if err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	logger.Info("bootstrap completed successfully",
		"env", bctx.Environment,
		"account", bctx.AccountID,
		"region", bctx.AWSRegion,
	)

	if opts.exportEnv {
		exportCfg := ExportEnvConfig{
			OutputPath:           opts.exportPath,
			SSM:                  runner.SSM,
			Stderr:               os.Stderr,
			IncludeLocalDefaults: true,
		}
		if err := ExportEnvFile(ctx, exportCfg); err != nil {
			logger.Error("failed to export .env file", "error", err)
			os.Exit(1)
		}
		logger.Info(".env file exported", "path", opts.exportPath)
	}
}

// callerIdentity is the subset of the STS client used to verify credentials.
type callerIdentity interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// initializeSession configures the AWS SDK session and confirms the active
// identity before anything is written.
func initializeSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*BootstrapContext, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	bctx := &BootstrapContext{
		Environment: env,
		AWSProfile:  profile,
		AWSRegion:   region,
		AWSConfig:   cfg,
		Logger:      logger,
	}
	if err := verifyIdentity(ctx, sts.NewFromConfig(cfg), bctx); err != nil {
		return nil, fmt.Errorf("%w\n  Check that your AWS credentials are configured correctly.\n  Profile: %q, Region: %q",
			err, profile, region)
	}
	return bctx, nil
}

// verifyIdentity fills AccountID and CallerARN from STS.
func verifyIdentity(ctx context.Context, client callerIdentity, bctx *BootstrapContext) error {
	identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := client.GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w", err)
	}

	bctx.AccountID = aws.ToString(identity.Account)
	bctx.CallerARN = aws.ToString(identity.Arn)
	if bctx.Logger != nil {
		bctx.Logger.Info("AWS identity verified",
			"account_id", bctx.AccountID,
			"arn", bctx.CallerARN,
			"region", bctx.AWSRegion,
		)
	}
	return nil
}

// confirmProduction returns true only if the operator types "yes".
func confirmProduction(in io.Reader, out io.Writer, bctx *BootstrapContext) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "  Account: %s\n", bctx.AccountID)
	fmt.Fprintf(out, "  Region:  %s\n", bctx.AWSRegion)
	fmt.Fprintf(out, "  ARN:     %s\n", bctx.CallerARN)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(out io.Writer, bctx *BootstrapContext) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintln(out, "  Forecasting Bootstrap")
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintf(out, "  Environment:  %s\n", bctx.Environment)
	fmt.Fprintf(out, "  AWS Account:  %s\n", bctx.AccountID)
	fmt.Fprintf(out, "  AWS Region:   %s\n", bctx.AWSRegion)
	fmt.Fprintf(out, "  Identity:     %s\n", bctx.CallerARN)
	if bctx.AWSProfile != "" {
		fmt.Fprintf(out, "  Profile:      %s\n", bctx.AWSProfile)
	}
	fmt.Fprintf(out, "  SSM Prefix:   %s\n", config.ParameterPrefix(bctx.Environment))
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintln(out)
}
