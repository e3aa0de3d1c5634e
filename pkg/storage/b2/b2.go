// Package b2 implements a Backblaze B2 volume. Object attributes live in
// the B2 file info of each file.
package b2

import (
	"context"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kurin/blazer/b2"
	"github.com/rs/zerolog"

	"github.com/williamokano/s3backend/pkg/storage"
)

const backendType = "b2"

type Volume struct {
	name   string
	client *b2.Client
	logger zerolog.Logger

	// openBucket is swapped in tests
	openBucket func(ctx context.Context, opts *StorageOptions) (bucketHandle, error)
}

func init() {
	storage.RegisterVolume(backendType, func(ctx context.Context, cfg storage.VolumeConfig, logger zerolog.Logger) (storage.Volume, error) {
		return New(ctx, cfg, logger)
	})
}

// New creates a new Backblaze B2 volume
func New(ctx context.Context, cfg storage.VolumeConfig, logger zerolog.Logger) (*Volume, error) {
	b2Cfg, err := parseConfig(cfg.Options)
	if err != nil {
		return nil, storage.WrapError(cfg.Name, "parse config", err)
	}

	// Create B2 client
	client, err := b2.NewClient(ctx, b2Cfg.AccountID, b2Cfg.ApplicationKey)
	if err != nil {
		return nil, storage.WrapError(cfg.Name, "init", fmt.Errorf("%w: %v", storage.ErrAuthFailed, err))
	}

	v := &Volume{
		name:   cfg.Name,
		client: client,
		logger: logger,
	}
	v.openBucket = v.ensureBucket
	return v, nil
}

func (v *Volume) Name() string { return v.name }
func (v *Volume) Type() string { return backendType }

func (v *Volume) AdminStatus() map[string]any {
	return map[string]any{
		"name":    v.name,
		"backend": backendType,
	}
}

func (v *Volume) Capability() storage.Capability {
	return storage.Capability{
		Persistence: storage.Durable,
		History:     storage.HistoryLatest,
		ReadCost:    1,
	}
}

// ensureBucket creates the storage's bucket, or reuses it when allowed
func (v *Volume) ensureBucket(ctx context.Context, opts *StorageOptions) (bucketHandle, error) {
	bucket, err := v.client.Bucket(ctx, opts.Bucket)
	if err == nil {
		if !opts.ReuseBucket {
			return nil, fmt.Errorf("%w: %s (set reuse_bucket to use it)", storage.ErrBucketExists, opts.Bucket)
		}
		v.logger.Debug().Str("bucket", opts.Bucket).Msg("reusing existing bucket")
		return &blazerBucket{bucket: bucket}, nil
	}

	bucket, err = v.client.NewBucket(ctx, opts.Bucket, &b2.BucketAttrs{Type: b2.Private})
	if err != nil {
		return nil, storage.WrapError(v.name, "create bucket "+opts.Bucket, classify(err))
	}
	v.logger.Info().Str("bucket", opts.Bucket).Msg("bucket created")
	return &blazerBucket{bucket: bucket}, nil
}

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
	engineOpts.AdminStatus = map[string]any{
		"bucket":     opts.Bucket,
		"on_closure": opts.OnClosure,
	}

	bucket, err := v.openBucket(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger := v.logger.With().Str("bucket", opts.Bucket).Logger()
	store := &objectStore{bucket: bucket, opts: opts, logger: logger}
	engine, err := storage.NewEngine(cfg, store, engineOpts, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// Close releases resources
func (v *Volume) Close() error {
	return nil
}

// objectStore persists storage objects as B2 files. B2 has no conditional
// uploads, so write conditions are ignored.
type objectStore struct {
	bucket bucketHandle
	opts   *StorageOptions
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func objectFromAttrs(key string, attrs *b2.Attrs) (*storage.Object, error) {
	obj := &storage.Object{
		Key:  key,
		ETag: attrs.SHA1,
		Size: attrs.Size,
	}
	if err := obj.ApplyMetadata(attrs.Info); err != nil {
		return obj, err
	}
	return obj, nil
}

func (s *objectStore) Head(ctx context.Context, key string) (*storage.Object, error) {
	attrs, err := s.bucket.Attrs(ctx, key)
	if err != nil {
		return nil, storage.WrapError(backendType, "head "+key, classify(err))
	}
	return objectFromAttrs(key, attrs)
}

func (s *objectStore) Read(ctx context.Context, key string) (*storage.Object, error) {
	data, attrs, err := s.bucket.Read(ctx, key)
	if err != nil {
		return nil, storage.WrapError(backendType, "get "+key, classify(err))
	}
	obj, err := objectFromAttrs(key, attrs)
	if err != nil {
		return nil, err
	}
	obj.Payload = data
	return obj, nil
}

func (s *objectStore) Write(ctx context.Context, obj *storage.Object, cond storage.Condition) error {
	contentType := obj.Encoding
	if contentType == "" {
		contentType = mimetype.Detect(obj.Payload).String()
	}

	attrs := &b2.Attrs{
		ContentType: contentType,
		Info:        obj.Metadata(),
	}
	if err := s.bucket.Write(ctx, obj.Key, obj.Payload, attrs); err != nil {
		return storage.WrapError(backendType, "upload "+obj.Key, classify(err))
	}
	return nil
}

func (s *objectStore) Remove(ctx context.Context, key string, cond storage.Condition) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !b2.IsNotExist(err) {
		return storage.WrapError(backendType, "delete "+key, classify(err))
	}
	return nil
}

func (s *objectStore) Keys(ctx context.Context) ([]string, error) {
	names, err := s.bucket.Names(ctx)
	if err != nil {
		return nil, storage.WrapError(backendType, "list", classify(err))
	}
	return names, nil
}

// Close applies the on_closure policy once
func (s *objectStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.opts.OnClosure != closureDestroyBucket {
			return
		}
		if err := s.bucket.Destroy(ctx); err != nil {
			s.closeErr = storage.WrapError(backendType, "destroy bucket "+s.opts.Bucket, classify(err))
			s.logger.Error().Err(s.closeErr).Msg("failed to destroy bucket")
			return
		}
		s.logger.Info().Str("bucket", s.opts.Bucket).Msg("bucket destroyed")
	})
	return s.closeErr
}

// classify maps blazer errors onto the storage sentinels
func classify(err error) error {
	if b2.IsNotExist(err) {
		return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	}
	return err
}

var (
	_ storage.Volume      = (*Volume)(nil)
	_ storage.ObjectStore = (*objectStore)(nil)
)
