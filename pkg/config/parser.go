package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/williamokano/s3backend/pkg/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseConfig reads, validates and parses a configuration file
func ParseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(data)
}

// Parse validates and parses a configuration document
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.check(); err != nil {
		return nil, err
	}
	return &config, nil
}

// check enforces what the schema cannot express: unique names, known
// volume references and well-formed key expressions
func (c *Config) check() error {
	volumes := make(map[string]bool, len(c.Volumes))
	for _, v := range c.Volumes {
		if volumes[v.Name] {
			return fmt.Errorf("%w: duplicate volume %q", storage.ErrInvalidConfig, v.Name)
		}
		volumes[v.Name] = true
	}

	storages := make(map[string]bool, len(c.Storages))
	for _, s := range c.Storages {
		if storages[s.Name] {
			return fmt.Errorf("%w: duplicate storage %q", storage.ErrInvalidConfig, s.Name)
		}
		storages[s.Name] = true

		if !volumes[s.VolumeID()] {
			return fmt.Errorf("%w: storage %s: unknown volume %q", storage.ErrInvalidConfig, s.Name, s.VolumeID())
		}
		if _, err := s.StorageConfig(); err != nil {
			return err
		}
	}
	return nil
}
