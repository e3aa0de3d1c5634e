package s3

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/williamokano/s3backend/pkg/storage"
)

// S3 error codes we classify
const (
	codeNoSuchKey                  = "NoSuchKey"
	codeNotFound                   = "NotFound"
	codeNoSuchBucket               = "NoSuchBucket"
	codeAccessDenied               = "AccessDenied"
	codeForbidden                  = "Forbidden"
	codeInvalidAccessKeyID         = "InvalidAccessKeyId"
	codeSignatureDoesNotMatch      = "SignatureDoesNotMatch"
	codeExpiredToken               = "ExpiredToken"
	codeSlowDown                   = "SlowDown"
	codeThrottling                 = "Throttling"
	codeRequestTimeout             = "RequestTimeout"
	codeServiceUnavailable         = "ServiceUnavailable"
	codeInternalError              = "InternalError"
	codePreconditionFailed         = "PreconditionFailed"
	codeConditionalRequestConflict = "ConditionalRequestConflict"
	codeBucketAlreadyOwnedByYou    = "BucketAlreadyOwnedByYou"
	codeBucketAlreadyExists        = "BucketAlreadyExists"
)

// classify maps an SDK error to the storage sentinels, keeping the original
// error in the chain
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrTimeout, err)
	}

	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
		ownedByYou   *types.BucketAlreadyOwnedByYou
		exists       *types.BucketAlreadyExists
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return wrap(op, storage.ErrNotFound, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%s: %w: bucket does not exist: %w", op, storage.ErrInvalidConfig, err)
	case errors.As(err, &ownedByYou), errors.As(err, &exists):
		return wrap(op, storage.ErrBucketExists, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case codeNoSuchKey, codeNotFound:
			return wrap(op, storage.ErrNotFound, err)
		case codeNoSuchBucket:
			return fmt.Errorf("%s: %w: bucket does not exist: %w", op, storage.ErrInvalidConfig, err)
		case codeAccessDenied, codeForbidden:
			return wrap(op, storage.ErrPermissionDenied, err)
		case codeInvalidAccessKeyID, codeSignatureDoesNotMatch, codeExpiredToken:
			return wrap(op, storage.ErrAuthFailed, err)
		case codeSlowDown, codeThrottling:
			return wrap(op, storage.ErrThrottled, err)
		case codeRequestTimeout:
			return wrap(op, storage.ErrTimeout, err)
		case codeServiceUnavailable, codeInternalError:
			return wrap(op, storage.ErrConnFailed, err)
		case codePreconditionFailed, codeConditionalRequestConflict:
			return wrap(op, storage.ErrPreconditionFailed, err)
		case codeBucketAlreadyOwnedByYou, codeBucketAlreadyExists:
			return wrap(op, storage.ErrBucketExists, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return wrap(op, storage.ErrTimeout, err)
		}
		return wrap(op, storage.ErrConnFailed, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func wrap(op string, sentinel, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}

// ownedByCaller reports whether a create error means the bucket already
// belongs to the caller
func ownedByCaller(err error) bool {
	var ownedByYou *types.BucketAlreadyOwnedByYou
	if errors.As(err, &ownedByYou) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == codeBucketAlreadyOwnedByYou
}
