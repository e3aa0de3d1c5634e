package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/williamokano/s3backend/pkg/storage"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects call
const maxDeleteBatch = 1000

// objectStore persists storage objects in one S3 bucket
type objectStore struct {
	client      S3API
	uploader    *manager.Uploader
	bucket      string
	opts        *StorageOptions
	concurrency int
	logger      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newObjectStore(client S3API, opts *StorageOptions, concurrency int, logger zerolog.Logger) *objectStore {
	return &objectStore{
		client:      client,
		uploader:    manager.NewUploader(client),
		bucket:      opts.Bucket,
		opts:        opts,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (s *objectStore) Head(ctx context.Context, key string) (*storage.Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("head "+key, err)
	}

	obj := &storage.Object{
		Key:  key,
		ETag: aws.ToString(out.ETag),
		Size: aws.ToInt64(out.ContentLength),
	}
	err = obj.ApplyMetadata(out.Metadata)
	fallbackEncoding(obj, out.Metadata, out.ContentEncoding)
	if err != nil {
		return obj, err
	}
	return obj, nil
}

func (s *objectStore) Read(ctx context.Context, key string) (*storage.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get "+key, err)
	}
	defer out.Body.Close()

	obj := &storage.Object{
		Key:  key,
		ETag: aws.ToString(out.ETag),
		Size: aws.ToInt64(out.ContentLength),
	}
	if err := obj.ApplyMetadata(out.Metadata); err != nil {
		return nil, err
	}
	fallbackEncoding(obj, out.Metadata, out.ContentEncoding)

	if obj.Payload, err = io.ReadAll(out.Body); err != nil {
		return nil, classify("read body "+key, err)
	}
	return obj, nil
}

func (s *objectStore) Write(ctx context.Context, obj *storage.Object, cond storage.Condition) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Payload),
		ContentType: aws.String(contentType(obj)),
		Metadata:    obj.Metadata(),
	}

	if s.opts.ConditionalWrites {
		switch {
		case cond.IfNoneMatch:
			input.IfNoneMatch = aws.String("*")
		case cond.IfMatch != "":
			input.IfMatch = aws.String(cond.IfMatch)
		}
		// the uploader does not carry conditions over to multipart
		// completion, so guarded writes always go through PutObject
		input.ContentLength = aws.Int64(int64(len(obj.Payload)))
		_, err := s.client.PutObject(ctx, input)
		return classify("put "+obj.Key, err)
	}

	if len(obj.Payload) < s.opts.MultipartThreshold {
		input.ContentLength = aws.Int64(int64(len(obj.Payload)))
		_, err := s.client.PutObject(ctx, input)
		return classify("put "+obj.Key, err)
	}

	s.logger.Debug().Str("key", obj.Key).Int("size", len(obj.Payload)).Msg("multipart upload")
	_, err := s.uploader.Upload(ctx, input)
	return classify("upload "+obj.Key, err)
}

// fallbackEncoding takes the encoding from Content-Encoding for objects
// written without encoding metadata, as older writers of this layout did
func fallbackEncoding(obj *storage.Object, metadata map[string]string, contentEncoding *string) {
	if _, ok := metadata[storage.EncodingMetadataKey]; ok {
		return
	}
	obj.Encoding = aws.ToString(contentEncoding)
}

// contentType is the value encoding, or a sniffed type when none was given
func contentType(obj *storage.Object) string {
	if obj.Encoding != "" {
		return obj.Encoding
	}
	return mimetype.Detect(obj.Payload).String()
}

// Remove ignores cond: DeleteObject has no portable precondition
func (s *objectStore) Remove(ctx context.Context, key string, cond storage.Condition) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	err = classify("delete "+key, err)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (s *objectStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// Close applies the on_closure policy once
func (s *objectStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.opts.OnClosure != closureDestroyBucket {
			s.logger.Debug().Str("bucket", s.bucket).Msg("closing storage, keeping bucket as it is")
			return
		}
		s.closeErr = destroyBucket(ctx, s.client, s.bucket, s.concurrency, s.logger)
		if s.closeErr != nil {
			s.logger.Error().Err(s.closeErr).Str("bucket", s.bucket).Msg("failed to destroy bucket")
			return
		}
		s.logger.Info().Str("bucket", s.bucket).Msg("bucket destroyed")
	})
	return s.closeErr
}

// deleteAll removes keys in DeleteObjects batches, at most concurrency
// batches in flight
func deleteAll(ctx context.Context, client S3API, bucket string, keys []string, concurrency int) error {
	sem := semaphore.NewWeighted(int64(concurrency))
	g, gCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		batch := keys[start:end]

		if err := sem.Acquire(gCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return deleteBatch(gCtx, client, bucket, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func deleteBatch(ctx context.Context, client S3API, bucket string, keys []string) error {
	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return classify("delete objects", err)
	}

	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return classify("delete objects", &smithy.GenericAPIError{
			Code:    aws.ToString(first.Code),
			Message: aws.ToString(first.Key) + ": " + aws.ToString(first.Message),
		})
	}
	return nil
}

var _ storage.ObjectStore = (*objectStore)(nil)
