package s3

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
	"github.com/williamokano/s3backend/pkg/storage"
)

var testID, _ = hlc.ParseID("5eed")

func ts(seconds int) hlc.Timestamp {
	return hlc.New(time.Unix(int64(1_700_000_000+seconds), 0), testID)
}

func newTestVolume(t *testing.T, fake *fakeS3, options map[string]any) *Volume {
	t.Helper()
	if options == nil {
		options = map[string]any{"region": "eu-west-1"}
	}
	v, err := New(context.Background(), storage.VolumeConfig{Name: "s3-test", Type: "s3", Options: options}, zerolog.Nop())
	require.NoError(t, err)
	v.newClient = func(ctx context.Context, cfg *Config, opts *StorageOptions) (S3API, error) {
		return fake, nil
	}
	return v
}

func storageConfig(volume map[string]any) storage.StorageConfig {
	return storage.StorageConfig{
		Name:        "s3-storage",
		KeyExpr:     keyexpr.MustNew("demo/**"),
		StripPrefix: keyexpr.MustNew("demo"),
		VolumeID:    "s3-test",
		Volume:      volume,
	}
}

func TestVolume_CreateStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_bucket_with_location_constraint", func(t *testing.T) {
		fake := newFakeS3()
		v := newTestVolume(t, fake, nil)

		st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
		require.NoError(t, err)
		require.NotNil(t, st)

		assert.Contains(t, fake.buckets, "values")
		assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), fake.locationConstraint)
	})

	t.Run("no_location_constraint_in_us_east_1", func(t *testing.T) {
		fake := newFakeS3()
		v := newTestVolume(t, fake, map[string]any{"region": "us-east-1"})

		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
		require.NoError(t, err)
		assert.Empty(t, fake.locationConstraint)
	})

	t.Run("existing_bucket_without_reuse_fails", func(t *testing.T) {
		fake := newFakeS3()
		fake.seed("values", 0, nil)
		v := newTestVolume(t, fake, nil)

		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
		assert.ErrorIs(t, err, storage.ErrBucketExists)
	})

	t.Run("existing_bucket_with_reuse", func(t *testing.T) {
		fake := newFakeS3()
		fake.seed("values", 0, nil)
		v := newTestVolume(t, fake, nil)

		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "reuse_bucket": true}))
		require.NoError(t, err)
	})

	t.Run("bucket_owned_by_someone_else", func(t *testing.T) {
		fake := newFakeS3()
		fake.failures["CreateBucket"] = &types.BucketAlreadyExists{Message: aws.String("taken")}
		v := newTestVolume(t, fake, nil)

		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "reuse_bucket": true}))
		assert.ErrorIs(t, err, storage.ErrBucketExists)
	})

	t.Run("reuse_probe_denied", func(t *testing.T) {
		fake := newFakeS3()
		fake.seed("values", 0, nil)
		fake.failures["HeadBucket"] = &smithy.GenericAPIError{Code: codeAccessDenied}
		v := newTestVolume(t, fake, nil)

		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "reuse_bucket": true}))
		assert.ErrorIs(t, err, storage.ErrPermissionDenied)
	})

	t.Run("missing_bucket_option", func(t *testing.T) {
		v := newTestVolume(t, newFakeS3(), nil)
		_, err := v.CreateStorage(ctx, storageConfig(map[string]any{}))
		assert.ErrorIs(t, err, storage.ErrInvalidConfig)
	})

	t.Run("invalid_strip_prefix", func(t *testing.T) {
		v := newTestVolume(t, newFakeS3(), nil)
		cfg := storageConfig(map[string]any{"bucket": "values"})
		cfg.StripPrefix = keyexpr.MustNew("elsewhere")
		_, err := v.CreateStorage(ctx, cfg)
		assert.ErrorIs(t, err, storage.ErrInvalidConfig)
	})
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
	require.NoError(t, err)

	res, err := st.Put(ctx, keyexpr.MustNew("a/b"), storage.Value{Payload: []byte(`{"v":1}`), Encoding: "application/json"}, ts(1))
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, res)

	obj, ok := fake.object("values", "a/b")
	require.True(t, ok)
	assert.Equal(t, ts(1).String(), obj.metadata[storage.TimestampMetadataKey])
	assert.Equal(t, "application/json", obj.contentType)

	data, err := st.Get(ctx, keyexpr.MustNew("a/b"), "")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, []byte(`{"v":1}`), data[0].Value.Payload)
	assert.Equal(t, "application/json", data[0].Value.Encoding)

	// older write loses
	res, err = st.Put(ctx, keyexpr.MustNew("a/b"), storage.Value{Payload: []byte("stale")}, ts(0))
	require.NoError(t, err)
	assert.Equal(t, storage.Outdated, res)

	// none key
	_, err = st.Put(ctx, "", storage.Value{Payload: []byte("root")}, ts(2))
	require.NoError(t, err)
	_, ok = fake.object("values", storage.NoneKey)
	assert.True(t, ok)

	entries, err := st.GetAllEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Key.IsEmpty())
	assert.Equal(t, keyexpr.KeyExpr("a/b"), entries[1].Key)

	res, err = st.Delete(ctx, keyexpr.MustNew("a/b"), ts(3))
	require.NoError(t, err)
	assert.Equal(t, storage.Deleted, res)
	_, ok = fake.object("values", "a/b")
	assert.False(t, ok)

	data, err = st.Get(ctx, keyexpr.MustNew("a/b"), "")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStorage_SniffsContentType(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
	require.NoError(t, err)

	_, err = st.Put(ctx, keyexpr.MustNew("img"), storage.Value{Payload: []byte("\x89PNG\r\n\x1a\n0000")}, ts(1))
	require.NoError(t, err)

	obj, _ := fake.object("values", "img")
	assert.Equal(t, "image/png", obj.contentType)
}

func TestStorage_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "conditional_writes": true}))
	require.NoError(t, err)

	_, err = st.Put(ctx, keyexpr.MustNew("k"), storage.Value{Payload: []byte("1")}, ts(1))
	require.NoError(t, err)
	_, err = st.Put(ctx, keyexpr.MustNew("k"), storage.Value{Payload: []byte("2")}, ts(2))
	require.NoError(t, err)

	require.Len(t, fake.putInputs, 2)
	assert.Equal(t, "*", aws.ToString(fake.putInputs[0].IfNoneMatch))
	assert.Nil(t, fake.putInputs[0].IfMatch)
	assert.NotEmpty(t, aws.ToString(fake.putInputs[1].IfMatch))
	assert.Nil(t, fake.putInputs[1].IfNoneMatch)
}

func TestStorage_UnconditionalWritesCarryNoPreconditions(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
	require.NoError(t, err)

	_, err = st.Put(ctx, keyexpr.MustNew("k"), storage.Value{Payload: []byte("1")}, ts(1))
	require.NoError(t, err)

	require.Len(t, fake.putInputs, 1)
	assert.Nil(t, fake.putInputs[0].IfNoneMatch)
	assert.Nil(t, fake.putInputs[0].IfMatch)
}

func TestStorage_UploaderAboveThreshold(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "multipart_threshold": float64(4)}))
	require.NoError(t, err)

	// below the uploader part size, so it still lands as a single PutObject
	payload := bytes.Repeat([]byte("z"), 64)
	_, err = st.Put(ctx, keyexpr.MustNew("big"), storage.Value{Payload: payload}, ts(1))
	require.NoError(t, err)

	data, err := st.Get(ctx, keyexpr.MustNew("big"), "")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, payload, data[0].Value.Payload)
}

func TestStorage_Compression(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "compression": "zstd"}))
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("compress me "), 100)
	_, err = st.Put(ctx, keyexpr.MustNew("c"), storage.Value{Payload: payload, Encoding: "text/plain"}, ts(1))
	require.NoError(t, err)

	obj, _ := fake.object("values", "c")
	assert.Equal(t, storage.CodecZstd, obj.metadata[storage.CompressionMetadataKey])
	assert.Less(t, len(obj.data), len(payload))

	data, err := st.Get(ctx, keyexpr.MustNew("c"), "")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, payload, data[0].Value.Payload)
}

func TestStorage_CorruptObjects(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("values", 2, map[string]string{})
	v := newTestVolume(t, fake, nil)

	cfg := storageConfig(map[string]any{"bucket": "values", "reuse_bucket": true})
	cfg.KeyExpr = keyexpr.MustNew("demo/**")
	st, err := v.CreateStorage(ctx, cfg)
	require.NoError(t, err)

	entries, err := st.GetAllEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = st.Get(ctx, keyexpr.MustNew("seed/00000"), "")
	assert.ErrorIs(t, err, storage.ErrCorruptObject)

	// a valid write replaces the broken object
	res, err := st.Put(ctx, keyexpr.MustNew("seed/00000"), storage.Value{Payload: []byte("ok")}, ts(1))
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, res)
}

func TestStorage_EncodingFromContentEncoding(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.seed("values", 2, map[string]string{storage.TimestampMetadataKey: ts(1).String()})
	fake.buckets["values"]["seed/00000"].contentEncoding = "application/json"
	fake.buckets["values"]["seed/00001"].contentEncoding = "application/json"
	fake.buckets["values"]["seed/00001"].metadata = map[string]string{
		storage.TimestampMetadataKey: ts(1).String(),
		storage.EncodingMetadataKey:  "text/plain",
	}
	v := newTestVolume(t, fake, nil)

	cfg := storageConfig(map[string]any{"bucket": "values", "reuse_bucket": true})
	cfg.StripPrefix = ""
	cfg.KeyExpr = keyexpr.MustNew("seed/**")
	st, err := v.CreateStorage(ctx, cfg)
	require.NoError(t, err)

	data, err := st.Get(ctx, keyexpr.MustNew("seed/00000"), "")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "application/json", data[0].Value.Encoding)

	data, err = st.Get(ctx, keyexpr.MustNew("seed/00001"), "")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "text/plain", data[0].Value.Encoding)
}

func TestStorage_CloseDestroysBucket(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.pageSize = 1000
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "on_closure": "destroy_bucket"}))
	require.NoError(t, err)
	fake.seed("values", 2500, map[string]string{storage.TimestampMetadataKey: ts(1).String()})

	require.NoError(t, st.Close(ctx))
	assert.NotContains(t, fake.buckets, "values")
	assert.ElementsMatch(t, []int{1000, 1000, 500}, fake.deleteBatches)

	// closing twice is harmless
	require.NoError(t, st.Close(ctx))
}

func TestStorage_CloseKeepsBucketByDefault(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values"}))
	require.NoError(t, err)

	require.NoError(t, st.Close(ctx))
	assert.Contains(t, fake.buckets, "values")
	assert.Empty(t, fake.deleteBatches)
}

func TestStorage_CloseReportsFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	v := newTestVolume(t, fake, nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "values", "on_closure": "destroy_bucket"}))
	require.NoError(t, err)
	fake.failures["DeleteBucket"] = &smithy.GenericAPIError{Code: codeAccessDenied}

	err = st.Close(ctx)
	assert.ErrorIs(t, err, storage.ErrPermissionDenied)
}

func TestVolume_Status(t *testing.T) {
	v := newTestVolume(t, newFakeS3(), map[string]any{
		"region":           "eu-central-1",
		"url":              "http://localhost:4566",
		"force_path_style": true,
	})

	assert.Equal(t, "s3-test", v.Name())
	assert.Equal(t, "s3", v.Type())
	assert.Equal(t, storage.Capability{Persistence: storage.Durable, History: storage.HistoryLatest, ReadCost: 1}, v.Capability())

	status := v.AdminStatus()
	assert.Equal(t, "eu-central-1", status["region"])
	assert.Equal(t, "http://localhost:4566", status["url"])
	assert.Equal(t, true, status["force_path_style"])
	assert.NoError(t, v.Close())
}

func TestStorage_AdminStatusRedactsCredentials(t *testing.T) {
	ctx := context.Background()
	v := newTestVolume(t, newFakeS3(), nil)

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{
		"bucket":  "values",
		"private": map[string]any{"access_key": "AKIA", "secret_key": "shh"},
	}))
	require.NoError(t, err)

	status := st.AdminStatus()
	assert.Equal(t, "values", status["bucket"])
	assert.Equal(t, "***", status["volume"].(map[string]any)["private"])
}

func TestVolume_MaxConcurrentRequests(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, storage.VolumeConfig{Name: "s3-test", Options: map[string]any{"max_concurrent_requests": "not-a-number"}}, zerolog.Nop())
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)

	v := newTestVolume(t, newFakeS3(), map[string]any{"region": "eu-west-1", "max_concurrent_requests": 3.0})

	st, err := v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "inherits"}))
	require.NoError(t, err)
	assert.Equal(t, 3, st.AdminStatus()["max_concurrent_requests"])

	st, err = v.CreateStorage(ctx, storageConfig(map[string]any{"bucket": "overrides", "max_concurrent_requests": 8.0}))
	require.NoError(t, err)
	assert.Equal(t, 8, st.AdminStatus()["max_concurrent_requests"])
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, storage.RegisteredTypes(), "s3")
}
