package storage

import (
	"context"
	"fmt"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
)

const (
	// NoneKey is the object key holding the value of a storage's strip
	// prefix itself
	NoneKey = "@@none_key@@"

	// TimestampMetadataKey names the object metadata entry holding the
	// value's timestamp
	TimestampMetadataKey = "timestamp_uhlc"
	// EncodingMetadataKey names the metadata entry holding Value.Encoding
	EncodingMetadataKey = "encoding"
	// CompressionMetadataKey names the metadata entry holding the codec
	CompressionMetadataKey = "compression"
)

// Object is a value as persisted by an ObjectStore
type Object struct {
	Key         string // object key, see ObjectKey
	Payload     []byte // as stored, after compression; nil for Head results
	Encoding    string
	Compression string
	Timestamp   hlc.Timestamp
	ETag        string // opaque version tag, empty when unsupported
	Size        int64
}

// Metadata renders the object's attributes as string metadata
func (o *Object) Metadata() map[string]string {
	md := map[string]string{
		TimestampMetadataKey: o.Timestamp.String(),
	}
	if o.Encoding != "" {
		md[EncodingMetadataKey] = o.Encoding
	}
	if o.Compression != "" && o.Compression != CodecNone {
		md[CompressionMetadataKey] = o.Compression
	}
	return md
}

// ApplyMetadata fills the object's attributes from string metadata
func (o *Object) ApplyMetadata(md map[string]string) error {
	raw, ok := md[TimestampMetadataKey]
	if !ok {
		return fmt.Errorf("%w: %s: missing %s metadata", ErrCorruptObject, o.Key, TimestampMetadataKey)
	}
	ts, err := hlc.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptObject, o.Key, err)
	}
	o.Timestamp = ts
	o.Encoding = md[EncodingMetadataKey]
	o.Compression = md[CompressionMetadataKey]
	return nil
}

// Condition guards a write against concurrent writers. Stores that cannot
// enforce it ignore it.
type Condition struct {
	IfMatch     string // the object's ETag must still be this
	IfNoneMatch bool   // the object must not exist
}

// ObjectStore is the per-backend persistence used by Engine
type ObjectStore interface {
	// Head returns the object's attributes without its payload, or
	// ErrNotFound. An object with unreadable metadata is returned together
	// with ErrCorruptObject so its ETag stays usable.
	Head(ctx context.Context, key string) (*Object, error)

	// Read returns the object with its payload, or ErrNotFound
	Read(ctx context.Context, key string) (*Object, error)

	// Write stores obj, returning ErrPreconditionFailed when cond does not hold
	Write(ctx context.Context, obj *Object, cond Condition) error

	// Remove deletes the object. Removing a missing object is not an error.
	Remove(ctx context.Context, key string, cond Condition) error

	// Keys lists every object key in the store
	Keys(ctx context.Context) ([]string, error)

	// Close applies the store's closure policy
	Close(ctx context.Context) error
}

// ObjectKey maps a stripped key to its object key
func ObjectKey(key keyexpr.KeyExpr) string {
	if key.IsEmpty() {
		return NoneKey
	}
	return key.String()
}

// KeyFromObject maps an object key back to a stripped key
func KeyFromObject(objectKey string) (keyexpr.KeyExpr, error) {
	if objectKey == NoneKey {
		return "", nil
	}
	key, err := keyexpr.New(objectKey)
	if err != nil {
		return "", fmt.Errorf("%w: object %q: %v", ErrInvalidKey, objectKey, err)
	}
	return key, nil
}
