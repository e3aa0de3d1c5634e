package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
)

const (
	defaultConcurrency      = 16
	defaultMaxWriteAttempts = 5
)

// EngineOptions tunes an Engine
type EngineOptions struct {
	Codec            Codec
	Stats            bool
	Concurrency      int // bound for listing and wildcard fan-out
	MaxWriteAttempts int // check-and-write rounds before a lost race is reported
	Retry            RetryConfig
	AdminStatus      map[string]any // extra backend fields merged into AdminStatus
}

// ParseEngineOptions reads the backend-independent storage options:
// compression, stats and max_concurrent_requests
func ParseEngineOptions(cfg StorageConfig) (EngineOptions, error) {
	opts := EngineOptions{
		Concurrency:      defaultConcurrency,
		MaxWriteAttempts: defaultMaxWriteAttempts,
		Retry:            DefaultRetryConfig(),
	}

	compression, _, err := StringOption(cfg.Volume, "compression")
	if err != nil {
		return opts, err
	}
	if opts.Codec, err = CodecByName(compression); err != nil {
		return opts, err
	}
	if opts.Stats, err = BoolOption(cfg.Volume, "stats", false); err != nil {
		return opts, err
	}
	if opts.Concurrency, err = IntOption(cfg.Volume, "max_concurrent_requests", defaultConcurrency); err != nil {
		return opts, err
	}
	if opts.Concurrency < 1 {
		return opts, fmt.Errorf("%w: max_concurrent_requests must be positive", ErrInvalidConfig)
	}

	return opts, nil
}

// Engine implements Storage on top of an ObjectStore. It owns key mapping,
// last-writer-wins ordering, read-only enforcement, compression and stats,
// so backends only move bytes and metadata.
type Engine struct {
	cfg    StorageConfig
	store  ObjectStore
	opts   EngineOptions
	logger zerolog.Logger
	locks  *keyLocks
	stats  *Stats
}

// NewEngine builds a Storage for cfg persisted in store
func NewEngine(cfg StorageConfig, store ObjectStore, opts EngineOptions, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		opts.Codec = noneCodec{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxWriteAttempts < 1 {
		opts.MaxWriteAttempts = defaultMaxWriteAttempts
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryConfig()
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		opts:   opts,
		logger: logger.With().Str("storage", cfg.Name).Logger(),
		locks:  newKeyLocks(),
	}
	if opts.Stats {
		e.stats = &Stats{}
	}
	return e, nil
}

func (e *Engine) Name() string { return e.cfg.Name }

// Stats returns the engine's counters, nil when stats are disabled
func (e *Engine) Stats() *Stats { return e.stats }

func (e *Engine) AdminStatus() map[string]any {
	status := map[string]any{
		"name":      e.cfg.Name,
		"key_expr":  e.cfg.KeyExpr.String(),
		"read_only": e.cfg.ReadOnly,
		"volume_id": e.cfg.VolumeID,
		"volume":    Redact(e.cfg.Volume),
	}
	if !e.cfg.StripPrefix.IsEmpty() {
		status["strip_prefix"] = e.cfg.StripPrefix.String()
	}
	for k, v := range e.opts.AdminStatus {
		status[k] = v
	}
	if e.stats != nil {
		status["stats"] = e.stats.Snapshot()
	}
	return status
}

// Put stores value under key unless the stored timestamp is newer
func (e *Engine) Put(ctx context.Context, key keyexpr.KeyExpr, value Value, ts hlc.Timestamp) (InsertionResult, error) {
	objectKey := ObjectKey(key)
	log := e.logger.With().Str("key", objectKey).Str("timestamp", ts.String()).Logger()
	log.Debug().Msg("put")

	if e.cfg.ReadOnly {
		log.Warn().Msg("received put for read-only storage - ignored")
		return Outdated, ErrReadOnly
	}
	if key.IsWild() {
		return Outdated, fmt.Errorf("%w: cannot put on wildcard key %q", ErrInvalidKey, key)
	}
	if err := checkReserved(key); err != nil {
		return Outdated, err
	}

	payload, err := e.opts.Codec.Encode(value.Payload)
	if err != nil {
		e.stats.failure()
		return Outdated, fmt.Errorf("put %s: compress: %w", objectKey, err)
	}
	obj := &Object{
		Key:         objectKey,
		Payload:     payload,
		Encoding:    value.Encoding,
		Compression: e.opts.Codec.Name(),
		Timestamp:   ts,
		Size:        int64(len(payload)),
	}

	result, err := e.applyIfNewer(ctx, objectKey, ts, Inserted, func(cond Condition) error {
		return e.store.Write(ctx, obj, cond)
	})
	switch {
	case err != nil:
		e.stats.failure()
		log.Error().Err(err).Msg("put failed")
	case result == Outdated:
		e.stats.outdatedWrite()
	default:
		e.stats.put(len(payload))
	}
	return result, err
}

// Delete removes key unless the stored timestamp is newer
func (e *Engine) Delete(ctx context.Context, key keyexpr.KeyExpr, ts hlc.Timestamp) (InsertionResult, error) {
	objectKey := ObjectKey(key)
	log := e.logger.With().Str("key", objectKey).Str("timestamp", ts.String()).Logger()
	log.Debug().Msg("delete")

	if e.cfg.ReadOnly {
		log.Warn().Msg("received delete for read-only storage - ignored")
		return Outdated, ErrReadOnly
	}
	if key.IsWild() {
		return Outdated, fmt.Errorf("%w: cannot delete wildcard key %q", ErrInvalidKey, key)
	}
	if err := checkReserved(key); err != nil {
		return Outdated, err
	}

	result, err := e.applyIfNewer(ctx, objectKey, ts, Deleted, func(cond Condition) error {
		return e.store.Remove(ctx, objectKey, cond)
	})
	switch {
	case err != nil:
		e.stats.failure()
		log.Error().Err(err).Msg("delete failed")
	case result == Outdated:
		e.stats.outdatedWrite()
	default:
		e.stats.delete()
	}
	return result, err
}

// applyIfNewer runs apply when ts is not older than the stored timestamp.
// A lost conditional write re-reads the stored timestamp and tries again.
func (e *Engine) applyIfNewer(ctx context.Context, objectKey string, ts hlc.Timestamp, onSuccess InsertionResult, apply func(Condition) error) (InsertionResult, error) {
	unlock := e.locks.Lock(objectKey)
	defer unlock()

	for attempt := 1; ; attempt++ {
		current, err := e.head(ctx, objectKey)

		var cond Condition
		switch {
		case errors.Is(err, ErrNotFound):
			if onSuccess == Deleted {
				return Deleted, nil
			}
			cond.IfNoneMatch = true
		case errors.Is(err, ErrCorruptObject):
			e.logger.Warn().Err(err).Str("key", objectKey).Msg("overwriting object without valid timestamp")
			if current != nil {
				cond.IfMatch = current.ETag
			}
		case err != nil:
			return Outdated, err
		default:
			if ts.Before(current.Timestamp) {
				e.logger.Debug().
					Str("key", objectKey).
					Str("stored", current.Timestamp.String()).
					Str("received", ts.String()).
					Msg("stored value is newer - write ignored")
				return Outdated, nil
			}
			cond.IfMatch = current.ETag
		}

		err = WithRetry(ctx, e.opts.Retry, func() error { return apply(cond) })
		if errors.Is(err, ErrPreconditionFailed) && attempt < e.opts.MaxWriteAttempts {
			e.logger.Debug().Str("key", objectKey).Int("attempt", attempt).Msg("concurrent write detected, re-checking")
			continue
		}
		if err != nil {
			return Outdated, err
		}
		return onSuccess, nil
	}
}

// checkReserved rejects a key spelled like the none key's object key,
// which would alias the storage prefix
func checkReserved(key keyexpr.KeyExpr) error {
	if !key.IsEmpty() && key.String() == NoneKey {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	return nil
}

func (e *Engine) head(ctx context.Context, objectKey string) (*Object, error) {
	var obj *Object
	err := WithRetry(ctx, e.opts.Retry, func() error {
		var err error
		obj, err = e.store.Head(ctx, objectKey)
		return err
	})
	return obj, err
}

func (e *Engine) read(ctx context.Context, objectKey string) (*Object, error) {
	var obj *Object
	err := WithRetry(ctx, e.opts.Retry, func() error {
		var err error
		obj, err = e.store.Read(ctx, objectKey)
		return err
	})
	return obj, err
}

// Get returns the value stored for key, or every value intersecting a
// wildcard key. parameters are accepted for the host contract and ignored.
func (e *Engine) Get(ctx context.Context, key keyexpr.KeyExpr, parameters string) ([]StoredData, error) {
	e.logger.Debug().Str("key", key.String()).Msg("get")

	if key.IsWild() {
		return e.getMatching(ctx, key)
	}
	if err := checkReserved(key); err != nil {
		return nil, err
	}

	data, err := e.getOne(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return []StoredData{}, nil
	}
	if err != nil {
		e.stats.failure()
		return nil, err
	}
	return []StoredData{*data}, nil
}

func (e *Engine) getOne(ctx context.Context, key keyexpr.KeyExpr) (*StoredData, error) {
	objectKey := ObjectKey(key)
	obj, err := e.read(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	codec, err := CodecByName(obj.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptObject, objectKey, err)
	}
	payload, err := codec.Decode(obj.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decompress: %v", ErrCorruptObject, objectKey, err)
	}
	e.stats.get(len(obj.Payload))

	return &StoredData{
		Key:       key,
		Value:     Value{Payload: payload, Encoding: obj.Encoding},
		Timestamp: obj.Timestamp,
	}, nil
}

func (e *Engine) getMatching(ctx context.Context, query keyexpr.KeyExpr) ([]StoredData, error) {
	keys, err := e.storedKeys(ctx, keyexpr.Join(e.cfg.StripPrefix, query))
	if err != nil {
		e.stats.failure()
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]StoredData, 0, len(keys))
	)
	err = e.fanOut(ctx, keys, func(ctx context.Context, key keyexpr.KeyExpr) error {
		data, err := e.getOne(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil // deleted since listing
		}
		if err != nil {
			return err
		}
		mu.Lock()
		results = append(results, *data)
		mu.Unlock()
		return nil
	})
	if err != nil {
		e.stats.failure()
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// GetAllEntries lists every stored key intersecting the storage key_expr.
// Objects whose timestamp cannot be read are logged and skipped.
func (e *Engine) GetAllEntries(ctx context.Context) ([]Entry, error) {
	keys, err := e.storedKeys(ctx, e.cfg.KeyExpr)
	if err != nil {
		e.stats.failure()
		return nil, err
	}

	var (
		mu      sync.Mutex
		entries = make([]Entry, 0, len(keys))
	)
	err = e.fanOut(ctx, keys, func(ctx context.Context, key keyexpr.KeyExpr) error {
		obj, err := e.head(ctx, ObjectKey(key))
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				e.logger.Error().Err(err).Str("key", ObjectKey(key)).Msg("unable to read entry")
			}
			return nil
		}
		mu.Lock()
		entries = append(entries, Entry{Key: key, Timestamp: obj.Timestamp})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// storedKeys returns the stripped keys whose full key intersects filter
func (e *Engine) storedKeys(ctx context.Context, filter keyexpr.KeyExpr) ([]keyexpr.KeyExpr, error) {
	var objectKeys []string
	err := WithRetry(ctx, e.opts.Retry, func() error {
		var err error
		objectKeys, err = e.store.Keys(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	keys := make([]keyexpr.KeyExpr, 0, len(objectKeys))
	for _, objectKey := range objectKeys {
		key, err := KeyFromObject(objectKey)
		if err != nil {
			e.logger.Error().Err(err).Msg("skipping object with invalid key")
			continue
		}
		if !keyexpr.Intersects(filter, keyexpr.Join(e.cfg.StripPrefix, key)) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// fanOut runs fn for every key with at most Concurrency calls in flight
func (e *Engine) fanOut(ctx context.Context, keys []keyexpr.KeyExpr, fn func(context.Context, keyexpr.KeyExpr) error) error {
	sem := semaphore.NewWeighted(int64(e.opts.Concurrency))
	g, gCtx := errgroup.WithContext(ctx)

	for _, key := range keys {
		if err := sem.Acquire(gCtx, 1); err != nil {
			break
		}
		key := key
		g.Go(func() error {
			defer sem.Release(1)
			return fn(gCtx, key)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close applies the store's closure policy
func (e *Engine) Close(ctx context.Context) error {
	e.logger.Debug().Msg("closing storage")
	return e.store.Close(ctx)
}

var _ Storage = (*Engine)(nil)
