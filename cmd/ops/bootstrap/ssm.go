package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"forecasting/internal/config"
)

// SSMClient is the part of the SSM API the bootstrap tool calls.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

const ssmOperationTimeout = 15 * time.Second

// errNotStored is returned by Read for a parameter SSM does not hold.
var errNotStored = errors.New("parameter not stored")

// SSMManager reads and writes the config.Parameters of one environment.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

// NewSSMManager creates an SSMManager from the session's AWS config.
func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return NewSSMManagerWithClient(ssm.NewFromConfig(bctx.AWSConfig), bctx.Environment, bctx.Logger)
}

func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSMManager{client: client, env: env, logger: logger}
}

// Path is where p lives in this environment.
func (m *SSMManager) Path(p config.Parameter) string {
	return p.Path(m.env)
}

// Exists reports whether p is stored. It never decrypts, so it works
// without kms:Decrypt.
func (m *SSMManager) Exists(ctx context.Context, p config.Parameter) (bool, error) {
	_, err := m.get(ctx, p, false)
	if errors.Is(err, errNotStored) {
		return false, nil
	}
	return err == nil, err
}

// Read returns the stored value of p, decrypted when p is secure. A missing
// parameter returns errNotStored.
func (m *SSMManager) Read(ctx context.Context, p config.Parameter) (string, error) {
	out, err := m.get(ctx, p, p.Secure)
	if err != nil {
		return "", err
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %q has no value", m.Path(p))
	}

	value := aws.ToString(out.Parameter.Value)
	m.logger.Info("SSM parameter read", m.valueAttrs(p, value)...)
	return value, nil
}

func (m *SSMManager) get(ctx context.Context, p config.Parameter, decrypt bool) (*ssm.GetParameterOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	path := m.Path(p)
	out, err := m.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", path, errNotStored)
		}
		return nil, fmt.Errorf("reading SSM parameter %q: %w", path, err)
	}
	return out, nil
}

// Write stores value for p. Secure parameters become SecureStrings and
// replace an existing value only when overwrite is set; plain parameters
// are always replaced.
func (m *SSMManager) Write(ctx context.Context, p config.Parameter, value string, overwrite bool) error {
	if value == "" {
		return fmt.Errorf("empty value for %s", p.EnvVar)
	}

	paramType := ssmtypes.ParameterTypeString
	if p.Secure {
		paramType = ssmtypes.ParameterTypeSecureString
	} else {
		overwrite = true
	}

	ctx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	path := m.Path(p)
	_, err := m.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}

	m.logger.Info("SSM parameter written", append(m.valueAttrs(p, value), "type", string(paramType))...)
	return nil
}

// valueAttrs logs plain values and only the length of secure ones.
func (m *SSMManager) valueAttrs(p config.Parameter, value string) []any {
	if p.Secure {
		return []any{"path", m.Path(p), "value_length", len(value)}
	}
	return []any{"path", m.Path(p), "value", value}
}
