// Package s3 implements the S3 volume: every storage is a bucket whose
// objects carry their timestamp in user metadata.
package s3

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/williamokano/s3backend/pkg/storage"
)

const backendType = "s3"

// Volume creates S3-backed storages sharing one endpoint configuration
type Volume struct {
	name   string
	cfg    *Config
	logger zerolog.Logger

	// newClient is swapped in tests
	newClient func(ctx context.Context, cfg *Config, opts *StorageOptions) (S3API, error)
}

func init() {
	storage.RegisterVolume(backendType, func(ctx context.Context, cfg storage.VolumeConfig, logger zerolog.Logger) (storage.Volume, error) {
		return New(ctx, cfg, logger)
	})
}

// New creates a new S3 volume
func New(ctx context.Context, cfg storage.VolumeConfig, logger zerolog.Logger) (*Volume, error) {
	s3Cfg, err := parseConfig(cfg.Options)
	if err != nil {
		return nil, storage.WrapError(cfg.Name, "parse config", err)
	}
	s3Cfg.resolveRegion(ctx)

	logger.Debug().
		Str("endpoint", s3Cfg.Endpoint).
		Str("region", s3Cfg.region()).
		Bool("path_style", s3Cfg.ForcePathStyle).
		Bool("custom_ca", len(s3Cfg.RootCA) > 0).
		Msg("s3 volume configured")

	return &Volume{
		name:   cfg.Name,
		cfg:    s3Cfg,
		logger: logger,
		newClient: func(ctx context.Context, cfg *Config, opts *StorageOptions) (S3API, error) {
			return newClient(ctx, cfg, opts)
		},
	}, nil
}

func (v *Volume) Name() string { return v.name }
func (v *Volume) Type() string { return backendType }

func (v *Volume) AdminStatus() map[string]any {
	status := map[string]any{
		"name":             v.name,
		"backend":          backendType,
		"region":           v.cfg.region(),
		"force_path_style": v.cfg.ForcePathStyle,
		"tls":              len(v.cfg.RootCA) > 0,
	}
	if v.cfg.Endpoint != "" {
		status["url"] = v.cfg.Endpoint
	}
	return status
}

func (v *Volume) Capability() storage.Capability {
	return storage.Capability{
		Persistence: storage.Durable,
		History:     storage.HistoryLatest,
		ReadCost:    1,
	}
}

// CreateStorage builds the storage's client, creates or reuses its bucket
// and returns the storage
func (v *Volume) CreateStorage(ctx context.Context, cfg storage.StorageConfig) (storage.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := parseStorageOptions(cfg.Volume)
	if err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}
	engineOpts, err := storage.ParseEngineOptions(cfg)
	if err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}
	// the volume sets the default fan-out, a storage may override it
	if _, set := cfg.Volume["max_concurrent_requests"]; !set {
		engineOpts.Concurrency = v.cfg.Concurrency
	}
	engineOpts.AdminStatus = map[string]any{
		"bucket":                  opts.Bucket,
		"conditional_writes":      opts.ConditionalWrites,
		"on_closure":              opts.OnClosure,
		"max_concurrent_requests": engineOpts.Concurrency,
	}

	client, err := v.newClient(ctx, v.cfg, opts)
	if err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}

	logger := v.logger.With().Str("bucket", opts.Bucket).Logger()
	if err := ensureBucket(ctx, client, opts.Bucket, v.cfg.region(), opts.ReuseBucket, logger); err != nil {
		return nil, err
	}

	store := newObjectStore(client, opts, engineOpts.Concurrency, logger)
	engine, err := storage.NewEngine(cfg, store, engineOpts, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// Close is a no-op: clients belong to their storages
func (v *Volume) Close() error {
	return nil
}

var _ storage.Volume = (*Volume)(nil)
