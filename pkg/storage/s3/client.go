package s3

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/williamokano/s3backend/pkg/storage"
)

// newClient builds an S3 client from the volume settings and the storage's
// credentials. Without static credentials the default AWS chain is used.
func newClient(ctx context.Context, cfg *Config, opts *StorageOptions) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	if len(cfg.RootCA) > 0 {
		loadOpts = append(loadOpts, config.WithCustomCABundle(bytes.NewReader(cfg.RootCA)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storage.WrapError("s3", "init", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return client, nil
}

// resolveRegion fills an unset region from the default AWS chain so bucket
// creation uses the same region as the clients
func (c *Config) resolveRegion(ctx context.Context) {
	if c.Region != "" {
		return
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err == nil && awsCfg.Region != "" {
		c.Region = awsCfg.Region
	}
}

// region reports the region a client built from cfg talks to
func (c *Config) region() string {
	if c.Region == "" {
		return defaultRegion
	}
	return c.Region
}
