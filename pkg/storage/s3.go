package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

var tracer = otel.Tracer("tenantgate/storage")

// Config holds S3-compatible object storage settings
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string // custom endpoint for MinIO and other S3-compatible services
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Object describes a stored object
type Object struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum_sha256"`
}

// S3Store keeps tenant files in one bucket, partitioned by owner
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3 store. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := append([]func(*s3.Options){func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}}, optFns...)

	return &S3Store{
		client: s3.NewFromConfig(awsConfig, opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads body as name for the tenant selected by filter
func (s *S3Store) Put(ctx context.Context, filter orgs.OwnerFilter, name string, body io.Reader, contentType string) (*Object, error) {
	key, err := ObjectKey(filter, name)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
			attribute.String("content.type", contentType),
		),
	)
	defer span.End()

	data, err := io.ReadAll(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read content")
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": checksum,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return nil, fmt.Errorf("failed to upload to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "object uploaded")
	return &Object{
		Key:         key,
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    checksum,
	}, nil
}

// Delete removes name for the tenant selected by filter and returns the size
// of the removed object.
func (s *S3Store) Delete(ctx context.Context, filter orgs.OwnerFilter, name string) (int64, error) {
	key, err := ObjectKey(filter, name)
	if err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "S3.DeleteObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	size, err := s.headSize(ctx, span, key)
	if err != nil {
		return 0, err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return 0, fmt.Errorf("failed to delete object: %w", err)
	}

	span.SetStatus(codes.Ok, "object deleted")
	return size, nil
}

// Size returns the size of name for the tenant selected by filter, or
// ErrObjectNotFound when nothing is stored under it.
func (s *S3Store) Size(ctx context.Context, filter orgs.OwnerFilter, name string) (int64, error) {
	key, err := ObjectKey(filter, name)
	if err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "S3.HeadObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	size, err := s.headSize(ctx, span, key)
	if err != nil {
		return 0, err
	}
	span.SetStatus(codes.Ok, "object found")
	return size, nil
}

func (s *S3Store) headSize(ctx context.Context, span trace.Span, key string) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			span.SetStatus(codes.Error, "object not found")
			return 0, ErrObjectNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat object")
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	span.SetAttributes(attribute.Int64("content.size", size))
	return size, nil
}

// HealthCheck verifies the bucket is reachable
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
