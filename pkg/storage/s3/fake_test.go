package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	data            []byte
	metadata        map[string]string
	contentType     string
	contentEncoding string
	etag            string
}

// fakeS3 is an in-memory S3API with one namespace per bucket
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]map[string]*fakeObject
	version  int
	pageSize int

	// inspection
	locationConstraint types.BucketLocationConstraint
	putInputs          []*s3.PutObjectInput
	deleteBatches      []int

	// failures injected per operation name, e.g. "HeadObject"
	failures map[string]error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets:  make(map[string]map[string]*fakeObject),
		pageSize: 2,
		failures: make(map[string]error),
	}
}

func (f *fakeS3) fail(op string) error {
	return f.failures[op]
}

func (f *fakeS3) bucket(name *string) (map[string]*fakeObject, error) {
	b, ok := f.buckets[aws.ToString(name)]
	if !ok {
		return nil, &types.NoSuchBucket{Message: aws.String("no such bucket")}
	}
	return b, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("PutObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}

	key := aws.ToString(params.Key)
	current, exists := b[key]
	if aws.ToString(params.IfNoneMatch) == "*" && exists {
		return nil, &smithy.GenericAPIError{Code: codePreconditionFailed, Message: "object exists"}
	}
	if params.IfMatch != nil && (!exists || current.etag != aws.ToString(params.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: codePreconditionFailed, Message: "etag mismatch"}
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	f.version++
	etag := strconv.Quote(strconv.Itoa(f.version))
	b[key] = &fakeObject{
		data:            data,
		metadata:        metadata,
		contentType:     aws.ToString(params.ContentType),
		contentEncoding: aws.ToString(params.ContentEncoding),
		etag:            etag,
	}
	f.putInputs = append(f.putInputs, params)

	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("GetObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	obj, ok := b[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	return &s3.GetObjectOutput{
		Body:            io.NopCloser(strings.NewReader(string(obj.data))),
		ContentLength:   aws.Int64(int64(len(obj.data))),
		ContentType:     aws.String(obj.contentType),
		ContentEncoding: aws.String(obj.contentEncoding),
		ETag:            aws.String(obj.etag),
		Metadata:        obj.metadata,
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("HeadObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	obj, ok := b[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}

	return &s3.HeadObjectOutput{
		ContentLength:   aws.Int64(int64(len(obj.data))),
		ContentType:     aws.String(obj.contentType),
		ContentEncoding: aws.String(obj.contentEncoding),
		ETag:            aws.String(obj.etag),
		Metadata:        obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteObject"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	delete(b, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteObjects"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	if len(params.Delete.Objects) > maxDeleteBatch {
		return nil, &smithy.GenericAPIError{Code: "MalformedXML", Message: "too many keys"}
	}

	f.deleteBatches = append(f.deleteBatches, len(params.Delete.Objects))
	for _, obj := range params.Delete.Objects {
		delete(b, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("ListObjectsV2"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(b))
	for k := range b {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		start, _ = strconv.Atoi(*params.ContinuationToken)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(b[k].data))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("CreateBucket"); err != nil {
		return nil, err
	}
	name := aws.ToString(params.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String("owned by you")}
	}
	if params.CreateBucketConfiguration != nil {
		f.locationConstraint = params.CreateBucketConfiguration.LocationConstraint
	}
	f.buckets[name] = make(map[string]*fakeObject)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("HeadBucket"); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteBucket"); err != nil {
		return nil, err
	}
	b, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 {
		return nil, &smithy.GenericAPIError{Code: "BucketNotEmpty", Message: "bucket not empty"}
	}
	delete(f.buckets, aws.ToString(params.Bucket))
	return &s3.DeleteBucketOutput{}, nil
}

var errMultipartUnsupported = errors.New("fake: multipart uploads not supported")

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipartUnsupported
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipartUnsupported
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipartUnsupported
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipartUnsupported
}

// seed stores raw objects directly, bypassing the store
func (f *fakeS3) seed(bucket string, n int, metadata map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.buckets[bucket]
	if !ok {
		b = make(map[string]*fakeObject)
		f.buckets[bucket] = b
	}
	for i := 0; i < n; i++ {
		f.version++
		b[fmt.Sprintf("seed/%05d", i)] = &fakeObject{
			data:     []byte("x"),
			metadata: metadata,
			etag:     strconv.Quote(strconv.Itoa(f.version)),
		}
	}
}

func (f *fakeS3) object(bucket, key string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.buckets[bucket][key]
	return obj, ok
}

var _ S3API = (*fakeS3)(nil)
