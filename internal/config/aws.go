package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWS loads the AWS SDK configuration for the given region. When
// endpointURL is set (LocalStack in local development) every service client
// built from the returned config talks to it.
func LoadAWS(ctx context.Context, region, endpointURL string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if endpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpointURL))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", region, err)
	}
	return cfg, nil
}

// LoadAWS loads the AWS SDK configuration described by c.
func (c AWSConfig) LoadAWS(ctx context.Context) (aws.Config, error) {
	return LoadAWS(ctx, c.Region, c.EndpointURL)
}
