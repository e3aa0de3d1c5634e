package config

import (
	"fmt"

	"github.com/williamokano/s3backend/pkg/keyexpr"
	"github.com/williamokano/s3backend/pkg/storage"
)

// StorageEntry defines one storage in the configuration file
type StorageEntry struct {
	Name        string         `json:"name"`
	KeyExpr     string         `json:"key_expr"`
	StripPrefix string         `json:"strip_prefix,omitempty"`
	ReadOnly    bool           `json:"read_only,omitempty"`
	Volume      map[string]any `json:"volume"` // "id" names the volume, the rest are backend storage options
}

// Config is the root configuration structure
type Config struct {
	LogLevel  string                 `json:"log_level,omitempty"`  // trace, debug, info, warn, error (default: info)
	LogFormat string                 `json:"log_format,omitempty"` // json, console (default: json)
	Volumes   []storage.VolumeConfig `json:"volumes"`
	Storages  []StorageEntry         `json:"storages"`
}

// GetLogLevel returns the log level (defaults to info)
func (c *Config) GetLogLevel() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return "info"
}

// GetLogFormat returns the log format (defaults to json)
func (c *Config) GetLogFormat() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	return "json"
}

// Volume returns the volume named name
func (c *Config) Volume(name string) (storage.VolumeConfig, bool) {
	for _, v := range c.Volumes {
		if v.Name == name {
			return v, true
		}
	}
	return storage.VolumeConfig{}, false
}

// Storage returns the storage named name, converted for its volume
func (c *Config) Storage(name string) (storage.StorageConfig, error) {
	for _, s := range c.Storages {
		if s.Name == name {
			return s.StorageConfig()
		}
	}
	return storage.StorageConfig{}, fmt.Errorf("%w: unknown storage %q", storage.ErrInvalidConfig, name)
}

// VolumeID returns the name of the volume serving the storage
func (s StorageEntry) VolumeID() string {
	id, _ := s.Volume["id"].(string)
	return id
}

// StorageConfig converts the entry into the form volumes consume
func (s StorageEntry) StorageConfig() (storage.StorageConfig, error) {
	keyExpr, err := keyexpr.New(s.KeyExpr)
	if err != nil {
		return storage.StorageConfig{}, fmt.Errorf("%w: storage %s: key_expr: %v", storage.ErrInvalidConfig, s.Name, err)
	}

	var strip keyexpr.KeyExpr
	if s.StripPrefix != "" {
		if strip, err = keyexpr.New(s.StripPrefix); err != nil {
			return storage.StorageConfig{}, fmt.Errorf("%w: storage %s: strip_prefix: %v", storage.ErrInvalidConfig, s.Name, err)
		}
	}

	options := make(map[string]any, len(s.Volume))
	for k, v := range s.Volume {
		if k == "id" {
			continue
		}
		options[k] = v
	}

	cfg := storage.StorageConfig{
		Name:        s.Name,
		KeyExpr:     keyExpr,
		StripPrefix: strip,
		ReadOnly:    s.ReadOnly,
		VolumeID:    s.VolumeID(),
		Volume:      options,
	}
	if err := cfg.Validate(); err != nil {
		return storage.StorageConfig{}, err
	}
	return cfg, nil
}
