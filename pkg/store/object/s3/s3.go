// Package s3 implements the object store on Amazon S3 or any S3-compatible
// service.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dittostore/pkg/store/object"
)

// S3ObjectStore implements object.ObjectStore using an S3 bucket.
//
// Path-Based Key Design:
//   - The storage key is used directly as the object key, behind an optional
//     prefix
//   - The bucket mirrors the tenant/module hierarchy and stays inspectable
//
// Exclusive Create:
// Put first issues a HEAD on the key so a collision is reported before the
// caller's reader is consumed. The upload itself is conditional
// (If-None-Match: *), so a writer that loses a race after the HEAD still
// gets ErrKeyExists instead of overwriting.
//
// Thread Safety:
// Safe for concurrent use by multiple goroutines.
type S3ObjectStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   S3Metrics
}

// S3ObjectStoreConfig contains configuration for the S3 object store.
type S3ObjectStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "dittostore/" results in keys like "dittostore/tenants/..."
	KeyPrefix string

	// Metrics is optional. Nil disables collection.
	Metrics S3Metrics
}

// NewS3ObjectStore creates a new S3-backed object store and verifies that
// the bucket is reachable.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3ObjectStore: Initialized store
//   - error: If the configuration is invalid or the bucket cannot be reached
func NewS3ObjectStore(ctx context.Context, cfg S3ObjectStoreConfig) (*S3ObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	return &S3ObjectStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

func (s *S3ObjectStore) objectKey(key string) string {
	return s.keyPrefix + key
}

// Put implements object.ObjectStore.
//
// The body is buffered in memory so the request can be signed and retried by
// the SDK. The upload size ceiling is enforced by the caller before bytes
// reach the store.
func (s *S3ObjectStore) Put(ctx context.Context, key string, r io.Reader) (n int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("PutObject", time.Since(start), err) }()

	// ========================================================================
	// Step 1: Validate the key and check for a collision
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := object.ValidateKey(key); err != nil {
		return 0, err
	}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("object %s: %w", key, object.ErrKeyExists)
	}

	// ========================================================================
	// Step 2: Buffer the body
	// ========================================================================

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("object %s: read object data: %w", key, err)
	}

	// ========================================================================
	// Step 3: Conditional upload
	// ========================================================================

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return 0, fmt.Errorf("object %s: %w", key, object.ErrKeyExists)
		}
		return 0, s.wrap("put", key, err)
	}

	s.metrics.RecordBytes("write", int64(len(data)))
	return int64(len(data)), nil
}

// Get implements object.ObjectStore.
func (s *S3ObjectStore) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("GetObject", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := object.ValidateKey(key); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
		}
		return nil, s.wrap("get", key, err)
	}

	if result.ContentLength != nil {
		s.metrics.RecordBytes("read", *result.ContentLength)
	}
	return result.Body, nil
}

// Delete implements object.ObjectStore. S3 already treats deleting a missing
// key as success.
func (s *S3ObjectStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("DeleteObject", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := object.ValidateKey(key); err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return s.wrap("delete", key, err)
	}
	return nil
}

// Exists implements object.ObjectStore.
func (s *S3ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := object.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap("head", key, err)
	}
	return true, nil
}

// List implements object.ObjectStore by paging through the bucket under the
// configured prefix.
func (s *S3ObjectStore) List(ctx context.Context) (infos []object.ObjectInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err) }()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list objects: %w", object.ErrUnavailable, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := object.ObjectInfo{
				Key: strings.TrimPrefix(*obj.Key, s.keyPrefix),
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// wrap classifies an SDK error. Context errors pass through untouched so
// callers can tell cancellation from an outage.
func (s *S3ObjectStore) wrap(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", object.ErrUnavailable, op, key, err)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
