package b2

import (
	"context"
	"fmt"
	"io"

	"github.com/kurin/blazer/b2"

	"github.com/williamokano/s3backend/pkg/storage"
)

// bucketHandle is the part of a B2 bucket the object store needs
type bucketHandle interface {
	Attrs(ctx context.Context, name string) (*b2.Attrs, error)
	Read(ctx context.Context, name string) ([]byte, *b2.Attrs, error)
	Write(ctx context.Context, name string, data []byte, attrs *b2.Attrs) error
	Delete(ctx context.Context, name string) error
	Names(ctx context.Context) ([]string, error)
	Destroy(ctx context.Context) error
}

// blazerBucket adapts *b2.Bucket to bucketHandle
type blazerBucket struct {
	bucket *b2.Bucket
}

func (b *blazerBucket) Attrs(ctx context.Context, name string) (*b2.Attrs, error) {
	return b.bucket.Object(name).Attrs(ctx)
}

func (b *blazerBucket) Read(ctx context.Context, name string) ([]byte, *b2.Attrs, error) {
	obj := b.bucket.Object(name)

	return readConsistent(ctx, name, obj.Attrs, func(ctx context.Context) ([]byte, error) {
		reader := obj.NewReader(ctx)
		defer reader.Close()
		return io.ReadAll(reader)
	})
}

// maxReadAttempts bounds the reads retried because the file changed underneath
const maxReadAttempts = 3

// readConsistent reads the body between two attribute fetches. Info and
// body come from separate requests, so a differing SHA1 means an upload
// landed in between and the read starts over.
func readConsistent(ctx context.Context, name string,
	attrs func(context.Context) (*b2.Attrs, error),
	body func(context.Context) ([]byte, error)) ([]byte, *b2.Attrs, error) {
	for attempt := 1; ; attempt++ {
		before, err := attrs(ctx)
		if err != nil {
			return nil, nil, err
		}
		data, err := body(ctx)
		if err != nil {
			return nil, nil, err
		}
		after, err := attrs(ctx)
		if err != nil {
			return nil, nil, err
		}
		if before.SHA1 == after.SHA1 {
			return data, before, nil
		}
		if attempt == maxReadAttempts {
			return nil, nil, fmt.Errorf("%w: %s changed while reading", storage.ErrConnFailed, name)
		}
	}
}

func (b *blazerBucket) Write(ctx context.Context, name string, data []byte, attrs *b2.Attrs) error {
	writer := b.bucket.Object(name).NewWriter(ctx).WithAttrs(attrs)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (b *blazerBucket) Delete(ctx context.Context, name string) error {
	return b.bucket.Object(name).Delete(ctx)
}

func (b *blazerBucket) Names(ctx context.Context) ([]string, error) {
	var names []string

	iter := b.bucket.List(ctx)
	for iter.Next() {
		names = append(names, iter.Object().Name())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (b *blazerBucket) Destroy(ctx context.Context) error {
	names, err := b.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := b.Delete(ctx, name); err != nil && !b2.IsNotExist(err) {
			return err
		}
	}
	return b.bucket.Delete(ctx)
}
