package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/williamokano/s3backend/pkg/storage"
)

// ensureBucket creates bucket, or reuses it when it already belongs to us
// and reuse is allowed. A reused bucket is probed with HeadBucket.
func ensureBucket(ctx context.Context, client S3API, bucket, region string, reuse bool, logger zerolog.Logger) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := client.CreateBucket(ctx, input)
	if err == nil {
		logger.Info().Str("bucket", bucket).Str("region", region).Msg("bucket created")
		return nil
	}

	if !ownedByCaller(err) {
		return storage.WrapError("s3", "create bucket "+bucket, classify("create bucket", err))
	}
	if !reuse {
		return fmt.Errorf("%w: %s (set reuse_bucket to use it)", storage.ErrBucketExists, bucket)
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return storage.WrapError("s3", "head bucket "+bucket, classify("head bucket", err))
	}
	logger.Debug().Str("bucket", bucket).Msg("reusing existing bucket")
	return nil
}

// destroyBucket deletes every object in bucket, then the bucket itself
func destroyBucket(ctx context.Context, client S3API, bucket string, concurrency int, logger zerolog.Logger) error {
	store := &objectStore{client: client, bucket: bucket}
	keys, err := store.Keys(ctx)
	if err != nil {
		return storage.WrapError("s3", "destroy bucket "+bucket, err)
	}

	logger.Debug().Str("bucket", bucket).Int("objects", len(keys)).Msg("deleting bucket contents")
	if err := deleteAll(ctx, client, bucket, keys, concurrency); err != nil {
		return storage.WrapError("s3", "destroy bucket "+bucket, err)
	}

	if _, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return storage.WrapError("s3", "destroy bucket "+bucket, classify("delete bucket", err))
	}
	return nil
}
