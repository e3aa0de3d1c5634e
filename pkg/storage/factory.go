package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// VolumeConstructor is a function that creates a volume instance
type VolumeConstructor func(ctx context.Context, cfg VolumeConfig, logger zerolog.Logger) (Volume, error)

var (
	registryMu     sync.RWMutex
	volumeRegistry = make(map[string]VolumeConstructor)
)

// RegisterVolume registers a volume constructor under a backend type
func RegisterVolume(backendType string, constructor VolumeConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	volumeRegistry[backendType] = constructor
}

// RegisteredTypes lists the backend types known to the registry
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(volumeRegistry))
	for t := range volumeRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Factory creates volumes from configuration
type Factory struct {
	logger zerolog.Logger
}

// NewFactory creates a new factory instance
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{logger: logger}
}

// Create instantiates a volume from config
func (f *Factory) Create(ctx context.Context, cfg VolumeConfig) (Volume, error) {
	registryMu.RLock()
	constructor, ok := volumeRegistry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend type: %s", ErrInvalidConfig, cfg.Type)
	}

	if cfg.Options == nil {
		cfg.Options = map[string]any{}
	}

	logger := f.logger.With().Str("volume", cfg.Name).Str("backend", cfg.Type).Logger()
	return constructor(ctx, cfg, logger)
}

// CreateAll creates all volumes from slice of configs
func (f *Factory) CreateAll(ctx context.Context, configs []VolumeConfig) ([]Volume, error) {
	volumes := make([]Volume, 0, len(configs))

	for _, cfg := range configs {
		volume, err := f.Create(ctx, cfg)
		if err != nil {
			// Close already created volumes
			for _, v := range volumes {
				v.Close()
			}
			return nil, fmt.Errorf("failed to create volume %s: %w", cfg.Name, err)
		}

		volumes = append(volumes, volume)
	}

	return volumes, nil
}
