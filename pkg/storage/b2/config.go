package b2

import (
	"fmt"

	"github.com/williamokano/s3backend/pkg/storage"
)

const (
	closureDoNothing     = "do_nothing"
	closureDestroyBucket = "destroy_bucket"
)

type Config struct {
	AccountID      string `json:"account_id"`
	ApplicationKey string `json:"application_key"`
}

// StorageOptions holds the per-storage settings found under "volume"
type StorageOptions struct {
	Bucket      string `json:"bucket"`
	ReuseBucket bool   `json:"reuse_bucket"`
	OnClosure   string `json:"on_closure"`
}

func parseConfig(options map[string]any) (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.AccountID, err = storage.RequiredString(options, "account_id"); err != nil {
		return nil, err
	}
	if cfg.ApplicationKey, err = storage.RequiredString(options, "application_key"); err != nil {
		return nil, err
	}

	return cfg, nil
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

	return opts, nil
}
