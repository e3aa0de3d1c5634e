package storage

import (
	"context"
	"fmt"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
)

// Volume is a configured backend instance that storages are created from
type Volume interface {
	// Name returns the configured volume name (e.g., "s3_primary")
	Name() string

	// Type returns the backend type (s3, fs, b2)
	Type() string

	// AdminStatus describes the volume for the host's admin space
	AdminStatus() map[string]any

	// Capability advertises what storages of this volume can do
	Capability() Capability

	// CreateStorage builds a storage serving cfg.KeyExpr
	CreateStorage(ctx context.Context, cfg StorageConfig) (Storage, error)

	// Close releases resources shared by the volume's storages
	Close() error
}

// Storage serves the latest value of every key under its key expression.
// Keys handed to a Storage are already stripped of the storage's
// StripPrefix; the empty key addresses the prefix itself.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Name returns the configured storage name
	Name() string

	// AdminStatus describes the storage for the host's admin space
	AdminStatus() map[string]any

	// Get returns the values stored for key. A wildcard key returns every
	// stored value it intersects; a missing exact key returns no values.
	Get(ctx context.Context, key keyexpr.KeyExpr, parameters string) ([]StoredData, error)

	// Put stores value for key unless a newer timestamp is already stored
	Put(ctx context.Context, key keyexpr.KeyExpr, value Value, ts hlc.Timestamp) (InsertionResult, error)

	// Delete removes key unless a newer timestamp is already stored
	Delete(ctx context.Context, key keyexpr.KeyExpr, ts hlc.Timestamp) (InsertionResult, error)

	// GetAllEntries lists every stored key with its timestamp
	GetAllEntries(ctx context.Context) ([]Entry, error)

	// Close applies the storage's closure policy
	Close(ctx context.Context) error
}

// Value is a payload and its encoding
type Value struct {
	Payload  []byte
	Encoding string // MIME-like, may be empty
}

// StoredData is a value read back from a storage
type StoredData struct {
	Key       keyexpr.KeyExpr // stripped key, empty for the prefix itself
	Value     Value
	Timestamp hlc.Timestamp
}

// Entry is a stored key and the timestamp of its latest value
type Entry struct {
	Key       keyexpr.KeyExpr
	Timestamp hlc.Timestamp
}

// InsertionResult tells the host what a write did
type InsertionResult int

const (
	Outdated InsertionResult = iota
	Inserted
	Deleted
)

func (r InsertionResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	default:
		return "outdated"
	}
}

type Persistence string

const (
	Volatile Persistence = "volatile"
	Durable  Persistence = "durable"
)

type History string

const (
	HistoryLatest History = "latest"
	HistoryAll    History = "all"
)

// Capability describes a volume's guarantees
type Capability struct {
	Persistence Persistence
	History     History
	ReadCost    int
}

// VolumeConfig represents volume configuration
type VolumeConfig struct {
	Name    string         `json:"name"`    // User-friendly name (e.g., "s3_primary")
	Type    string         `json:"backend"` // Backend type: s3, fs, b2
	Options map[string]any `json:"options"` // Backend-specific options
}

// StorageConfig represents one storage served by a volume
type StorageConfig struct {
	Name        string          `json:"name"`
	KeyExpr     keyexpr.KeyExpr `json:"key_expr"`
	StripPrefix keyexpr.KeyExpr `json:"strip_prefix,omitempty"`
	ReadOnly    bool            `json:"read_only,omitempty"`
	VolumeID    string          `json:"volume_id"`
	Volume      map[string]any  `json:"volume,omitempty"` // Backend-specific storage options
}

// Validate checks the invariants between key_expr and strip_prefix
func (c StorageConfig) Validate() error {
	if c.KeyExpr.IsEmpty() {
		return fmt.Errorf("%w: storage %s: key_expr is required", ErrInvalidConfig, c.Name)
	}
	if !c.KeyExpr.HasPrefix(c.StripPrefix) {
		return fmt.Errorf("%w: storage %s: strip_prefix %q is not a prefix of key_expr %q",
			ErrInvalidConfig, c.Name, c.StripPrefix, c.KeyExpr)
	}
	if c.StripPrefix.IsWild() {
		return fmt.Errorf("%w: storage %s: strip_prefix %q must not contain wildcards",
			ErrInvalidConfig, c.Name, c.StripPrefix)
	}
	return nil
}
