package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStore reads parameter values by SSM path. Paths the store does not
// hold are left out of the result; the loader decides whether that is fatal.
type ParameterStore interface {
	GetParameters(ctx context.Context, paths []string) (map[string]string, error)
}

// ssmGetParametersLimit is the most names one GetParameters call accepts.
const ssmGetParametersLimit = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMStore is the ParameterStore of non-local deployments. The SSM client is
// created on first use, so local runs that never resolve a parameter need no
// AWS credentials.
type SSMStore struct {
	region      string
	endpointURL string
	client      ssmClient
}

// NewSSMStore creates an SSMStore for region. endpointURL may be empty.
func NewSSMStore(region, endpointURL string) *SSMStore {
	return &SSMStore{region: region, endpointURL: endpointURL}
}

func (s *SSMStore) ssm(ctx context.Context) (ssmClient, error) {
	if s.client != nil {
		return s.client, nil
	}
	cfg, err := LoadAWS(ctx, s.region, s.endpointURL)
	if err != nil {
		return nil, fmt.Errorf("SSM store: %w", err)
	}
	s.client = ssm.NewFromConfig(cfg)
	return s.client, nil
}

// GetParameters reads paths with decryption, ten per call. Decrypting a
// plain String parameter is a no-op, so secure and plain parameters share
// one request.
func (s *SSMStore) GetParameters(ctx context.Context, paths []string) (map[string]string, error) {
	values := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return values, nil
	}

	client, err := s.ssm(ctx)
	if err != nil {
		return nil, err
	}

	for chunk := range slices.Chunk(paths, ssmGetParametersLimit) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reading SSM parameters: %w", err)
		}
		out, err := client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          chunk,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters %v: %w", chunk, err)
		}
		for _, p := range out.Parameters {
			if p.Name != nil && p.Value != nil {
				values[*p.Name] = *p.Value
			}
		}
	}
	return values, nil
}
