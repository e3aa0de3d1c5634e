// Package fs implements a volume on the local filesystem. Each key is a
// directory holding the payload in "#value" and its attributes in
// "#meta.json"; '#' never appears in a key expression.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/storage"
)

const (
	backendType = "fs"

	valueFile = "#value"
	metaFile  = "#meta.json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Volume struct {
	name     string
	basePath string
	logger   zerolog.Logger
}

func init() {
	storage.RegisterVolume(backendType, func(ctx context.Context, cfg storage.VolumeConfig, logger zerolog.Logger) (storage.Volume, error) {
		return New(cfg, logger)
	})
}

// New creates a new local filesystem volume
func New(cfg storage.VolumeConfig, logger zerolog.Logger) (*Volume, error) {
	path, err := storage.RequiredString(cfg.Options, "path")
	if err != nil {
		return nil, storage.WrapError(cfg.Name, "parse config", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Volume{
		name:     cfg.Name,
		basePath: path,
		logger:   logger,
	}, nil
}

func (v *Volume) Name() string { return v.name }
func (v *Volume) Type() string { return backendType }

func (v *Volume) AdminStatus() map[string]any {
	return map[string]any{
		"name":    v.name,
		"backend": backendType,
		"path":    v.basePath,
	}
}

func (v *Volume) Capability() storage.Capability {
	return storage.Capability{
		Persistence: storage.Durable,
		History:     storage.HistoryLatest,
		ReadCost:    0,
	}
}

// CreateStorage roots a storage at <path>/<volume.dir>, dir defaulting to
// the storage name
func (v *Volume) CreateStorage(ctx context.Context, cfg storage.StorageConfig) (storage.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir, ok, err := storage.StringOption(cfg.Volume, "dir")
	if err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}
	if !ok || dir == "" {
		dir = cfg.Name
	}
	if !filepath.IsLocal(dir) {
		return nil, fmt.Errorf("%w: storage %s: dir %q must be a relative path inside the volume", storage.ErrInvalidConfig, cfg.Name, dir)
	}

	engineOpts, err := storage.ParseEngineOptions(cfg)
	if err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}

	root := filepath.Join(v.basePath, dir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, storage.WrapError(v.name, "storage "+cfg.Name, err)
	}
	engineOpts.AdminStatus = map[string]any{"dir": root}

	logger := v.logger.With().Str("dir", root).Logger()
	engine, err := storage.NewEngine(cfg, &objectStore{root: root, logger: logger}, engineOpts, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// Close is a no-op for local volume
func (v *Volume) Close() error {
	return nil
}

// meta is the on-disk form of an object's attributes
type meta struct {
	Timestamp   string `json:"timestamp"`
	Encoding    string `json:"encoding,omitempty"`
	Compression string `json:"compression,omitempty"`
	ETag        string `json:"etag"`
}

type objectStore struct {
	root   string
	logger zerolog.Logger

	// held for writing across the value and meta renames
	mu sync.RWMutex
}

// keyDir maps an object key to its directory, refusing keys that would
// escape the storage root
func (s *objectStore) keyDir(key string) (string, error) {
	for _, chunk := range strings.Split(key, "/") {
		if chunk == "." || chunk == ".." {
			return "", fmt.Errorf("%w: %q cannot be stored on a filesystem", storage.ErrInvalidKey, key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *objectStore) readMeta(key string) (*storage.Object, error) {
	dir, err := s.keyDir(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.WrapError(backendType, "head "+key, err)
	}

	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptObject, key, err)
	}

	obj := &storage.Object{
		Key:         key,
		Encoding:    m.Encoding,
		Compression: m.Compression,
		ETag:        m.ETag,
	}
	if info, err := os.Stat(filepath.Join(dir, valueFile)); err == nil {
		obj.Size = info.Size()
	}
	if obj.Timestamp, err = hlc.Parse(m.Timestamp); err != nil {
		return obj, fmt.Errorf("%w: %s: %v", storage.ErrCorruptObject, key, err)
	}
	return obj, nil
}

func (s *objectStore) Head(ctx context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(key)
}

func (s *objectStore) Read(ctx context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.readMeta(key)
	if err != nil {
		return nil, err
	}

	dir, _ := s.keyDir(key)
	if obj.Payload, err = os.ReadFile(filepath.Join(dir, valueFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.WrapError(backendType, "read "+key, err)
	}
	return obj, nil
}

func (s *objectStore) Write(ctx context.Context, obj *storage.Object, cond storage.Condition) error {
	dir, err := s.keyDir(obj.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(obj.Key, cond); err != nil {
		return err
	}

	// Ensure destination directory exists
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storage.WrapError(backendType, "write "+obj.Key, err)
	}

	raw, err := json.Marshal(meta{
		Timestamp:   obj.Timestamp.String(),
		Encoding:    obj.Encoding,
		Compression: obj.Compression,
		ETag:        uuid.NewString(),
	})
	if err != nil {
		return storage.WrapError(backendType, "write "+obj.Key, err)
	}

	// meta last: it publishes the new value
	if err := writeAtomic(filepath.Join(dir, valueFile), obj.Payload); err != nil {
		return storage.WrapError(backendType, "write "+obj.Key, err)
	}
	if err := writeAtomic(filepath.Join(dir, metaFile), raw); err != nil {
		return storage.WrapError(backendType, "write "+obj.Key, err)
	}
	return nil
}

// check enforces cond against the stored ETag. Caller holds s.mu for writing.
func (s *objectStore) check(key string, cond storage.Condition) error {
	if !cond.IfNoneMatch && cond.IfMatch == "" {
		return nil
	}
	current, err := s.readMeta(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if cond.IfMatch != "" {
			return storage.ErrPreconditionFailed
		}
		return nil
	case err != nil && current == nil:
		return err
	case cond.IfNoneMatch:
		return storage.ErrPreconditionFailed
	case current.ETag != cond.IfMatch:
		return storage.ErrPreconditionFailed
	}
	return nil
}

// writeAtomic writes data to a temp file next to path and renames it over path
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // Clean up on failure; a no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *objectStore) Remove(ctx context.Context, key string, cond storage.Condition) error {
	dir, err := s.keyDir(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(key, cond); err != nil {
		return err
	}

	for _, name := range []string{metaFile, valueFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storage.WrapError(backendType, "delete "+key, err)
		}
	}
	s.prune(dir)
	return nil
}

// prune removes now-empty directories from dir up to the storage root
func (s *objectStore) prune(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return // not empty, or gone
		}
		dir = filepath.Dir(dir)
	}
}

func (s *objectStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != metaFile {
			return nil
		}

		rel, err := filepath.Rel(s.root, filepath.Dir(path))
		if err != nil || rel == "." {
			s.logger.Warn().Str("path", path).Msg("skipping metadata outside any key")
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, storage.WrapError(backendType, "list", err)
	}

	return keys, nil
}

func (s *objectStore) Close(ctx context.Context) error {
	return nil
}

var (
	_ storage.Volume      = (*Volume)(nil)
	_ storage.ObjectStore = (*objectStore)(nil)
)
