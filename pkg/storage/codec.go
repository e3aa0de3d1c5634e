package storage

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	CodecNone = "none"
	CodecGzip = "gzip"
	CodecZstd = "zstd"
)

// Codec compresses payloads before they reach an ObjectStore
type Codec interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// CodecByName returns the codec for name. The empty name is CodecNone.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecNone:
		return noneCodec{}, nil
	case CodecGzip:
		return gzipCodec{}, nil
	case CodecZstd:
		return zstdCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, name)
	}
}

type noneCodec struct{}

func (noneCodec) Name() string                      { return CodecNone }
func (noneCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (noneCodec) Decode(src []byte) ([]byte, error) { return src, nil }

type gzipCodec struct{}

func (gzipCodec) Name() string { return CodecGzip }

func (gzipCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func initZstd() {
	zstdEncoder, zstdErr = zstd.NewWriter(nil)
	if zstdErr != nil {
		return
	}
	zstdDecoder, zstdErr = zstd.NewReader(nil)
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return CodecZstd }

func (zstdCodec) Encode(src []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdErr != nil {
		return nil, zstdErr
	}
	return zstdEncoder.EncodeAll(src, nil), nil
}

func (zstdCodec) Decode(src []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	if zstdErr != nil {
		return nil, zstdErr
	}
	return zstdDecoder.DecodeAll(src, nil)
}
