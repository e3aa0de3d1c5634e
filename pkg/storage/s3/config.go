package s3

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/williamokano/s3backend/pkg/storage"
)

const (
	defaultRegion             = "us-east-1"
	defaultMultipartThreshold = 8 << 20
	defaultConcurrency        = 16

	closureDoNothing     = "do_nothing"
	closureDestroyBucket = "destroy_bucket"
)

// Config holds the volume-wide S3 settings
type Config struct {
	Endpoint       string // Optional: for MinIO and LocalStack
	Region         string // Empty means the default chain, then us-east-1
	ForcePathStyle bool   // For MinIO
	MaxRetries     int    // SDK retryer attempts, 0 keeps the SDK default
	RootCA         []byte // Optional PEM bundle of trusted roots
	Concurrency    int    // max_concurrent_requests, storages may override it
}

// StorageOptions holds the per-storage S3 settings found under "volume"
type StorageOptions struct {
	Bucket             string
	ReuseBucket        bool
	OnClosure          string
	AccessKey          string // Static credentials, both or neither
	SecretKey          string
	ConditionalWrites  bool
	MultipartThreshold int
}

func parseConfig(options map[string]any) (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Endpoint, _, err = storage.StringOption(options, "url"); err != nil {
		return nil, err
	}
	if cfg.Region, _, err = storage.StringOption(options, "region"); err != nil {
		return nil, err
	}
	if cfg.ForcePathStyle, err = storage.BoolOption(options, "force_path_style", false); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = storage.IntOption(options, "max_retries", 0); err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must not be negative", storage.ErrInvalidConfig)
	}
	if cfg.Concurrency, err = storage.IntOption(options, "max_concurrent_requests", defaultConcurrency); err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: max_concurrent_requests must be positive", storage.ErrInvalidConfig)
	}

	tls, ok, err := storage.MapOption(options, "tls")
	if err != nil {
		return nil, err
	}
	if ok {
		if cfg.RootCA, err = loadRootCA(tls); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRootCA reads tls.root_ca_certificate (a file) or
// tls.root_ca_certificate_base64 (inline)
func loadRootCA(tls map[string]any) ([]byte, error) {
	file, hasFile, err := storage.StringOption(tls, "root_ca_certificate")
	if err != nil {
		return nil, err
	}
	inline, hasInline, err := storage.StringOption(tls, "root_ca_certificate_base64")
	if err != nil {
		return nil, err
	}

	switch {
	case hasFile && hasInline:
		return nil, fmt.Errorf("%w: tls: only one of root_ca_certificate and root_ca_certificate_base64 may be set", storage.ErrInvalidConfig)
	case hasFile:
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: tls: read root CA: %v", storage.ErrInvalidConfig, err)
		}
		return pem, nil
	case hasInline:
		pem, err := base64.StdEncoding.DecodeString(inline)
		if err != nil {
			return nil, fmt.Errorf("%w: tls: decode root CA: %v", storage.ErrInvalidConfig, err)
		}
		return pem, nil
	default:
		return nil, nil
	}
}

func parseStorageOptions(options map[string]any) (*StorageOptions, error) {
	opts := &StorageOptions{}
	var err error

	if opts.Bucket, err = storage.RequiredString(options, "bucket"); err != nil {
		return nil, err
	}
	if opts.ReuseBucket, err = storage.BoolOption(options, "reuse_bucket", false); err != nil {
		return nil, err
	}

	closure, _, err := storage.StringOption(options, "on_closure")
	if err != nil {
		return nil, err
	}
	switch closure {
	case "", closureDoNothing:
		opts.OnClosure = closureDoNothing
	case closureDestroyBucket:
		opts.OnClosure = closureDestroyBucket
	default:
		return nil, fmt.Errorf("%w: unknown on_closure policy %q", storage.ErrInvalidConfig, closure)
	}

	private, ok, err := storage.MapOption(options, "private")
	if err != nil {
		return nil, err
	}
	if ok {
		if opts.AccessKey, err = storage.RequiredString(private, "access_key"); err != nil {
			return nil, err
		}
		if opts.SecretKey, err = storage.RequiredString(private, "secret_key"); err != nil {
			return nil, err
		}
	}

	if opts.ConditionalWrites, err = storage.BoolOption(options, "conditional_writes", false); err != nil {
		return nil, err
	}
	if opts.MultipartThreshold, err = storage.IntOption(options, "multipart_threshold", defaultMultipartThreshold); err != nil {
		return nil, err
	}
	if opts.MultipartThreshold < 1 {
		return nil, fmt.Errorf("%w: multipart_threshold must be positive", storage.ErrInvalidConfig)
	}

	return opts, nil
}
