package mediastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/botmesh/botmesh/internal/telemetry"
)

// S3Config holds the settings for the S3 backend.
type S3Config struct {
	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the S3 endpoint for S3-compatible storage
	// (MinIO, LocalStack). Empty means AWS.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When both
	// are empty the default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle uses path-style addressing, required by most
	// S3-compatible endpoints.
	ForcePathStyle bool

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "botmesh/media/" results in keys like "botmesh/media/acme/m1".
	KeyPrefix string
}

// NewS3Client builds an S3 client from flat configuration values.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return client, nil
}

// S3Store keeps media objects in an S3 bucket, one object per media ID
// under <keyPrefix><tenant>/<mediaID>.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	log       *slog.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store verifies bucket access and returns the store. The bucket
// must already exist; this function does not create it.
func NewS3Store(ctx context.Context, client *s3.Client, cfg S3Config, log *slog.Logger) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	log.Info("Media store opened", "backend", "s3", "bucket", cfg.Bucket, "key_prefix", cfg.KeyPrefix)

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		log:       log,
	}, nil
}

// Backend names the storage backend.
func (s *S3Store) Backend() string { return "s3" }

// Bucket returns the bucket media objects are stored in.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) key(tenant, mediaID string) string {
	return s.keyPrefix + tenant + "/" + mediaID
}

// Write stores one media object. The content is buffered in memory so
// the upload carries an exact length; bot attachments are small.
func (s *S3Store) Write(ctx context.Context, tenant, mediaID string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return 0, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return 0, err
	}

	key := s.key(tenant, mediaID)
	ctx, span := telemetry.StartMediaSpan(ctx, "write", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("s3"),
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
	)
	defer span.End()

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read media content: %w", err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return 0, fmt.Errorf("failed to put object %q: %w", key, err)
	}

	n := int64(len(data))
	span.SetAttributes(telemetry.StorageSize(n))

	return n, nil
}

// Read opens one media object for streaming.
func (s *S3Store) Read(ctx context.Context, tenant, mediaID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return nil, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return nil, err
	}

	key := s.key(tenant, mediaID)
	ctx, span := telemetry.StartMediaSpan(ctx, "read", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("s3"),
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
	)
	defer span.End()

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	return resp.Body, nil
}

// Stat describes one media object.
func (s *S3Store) Stat(ctx context.Context, tenant, mediaID string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName("tenant", tenant); err != nil {
		return nil, err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return nil, err
	}

	key := s.key(tenant, mediaID)
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to head object %q: %w", key, err)
	}

	var modTime time.Time
	if resp.LastModified != nil {
		modTime = *resp.LastModified
	}

	return &Info{
		Tenant:  tenant,
		MediaID: mediaID,
		Size:    aws.ToInt64(resp.ContentLength),
		ModTime: modTime,
	}, nil
}

// Delete removes one media object. S3 deletes are idempotent, so absent
// objects are not an error.
func (s *S3Store) Delete(ctx context.Context, tenant, mediaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName("tenant", tenant); err != nil {
		return err
	}
	if err := validateName("media ID", mediaID); err != nil {
		return err
	}

	key := s.key(tenant, mediaID)
	ctx, span := telemetry.StartMediaSpan(ctx, "delete", mediaID,
		telemetry.TenantID(tenant),
		telemetry.StoreType("s3"),
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
	)
	defer span.End()

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}

	return nil
}

// isNotFoundError returns true if the error indicates a missing object.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	// Check typed errors
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	// Check error message for 404 patterns
	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}
