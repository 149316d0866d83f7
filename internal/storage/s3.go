package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/wacrm/wacrm/internal/config"
	"go.uber.org/zap"
)

// MediaStore keeps message attachments in an S3-compatible bucket. Outbox
// entries reference objects by URL, so uploads happen before a send is queued.
type MediaStore struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	region     string
	endpoint   string
	publicRead bool
	logger     *zap.Logger
}

// NewMediaStore builds a media store from the workspace media config. A
// non-empty endpoint switches to path-style addressing for MinIO and friends.
func NewMediaStore(ctx context.Context, cfg config.MediaConfig, logger *zap.Logger) (*MediaStore, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &MediaStore{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		endpoint:   cfg.Endpoint,
		publicRead: cfg.PublicRead,
		logger:     logger,
	}, nil
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (m *MediaStore) EnsureBucket(ctx context.Context) error {
	_, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(m.bucket)}
	if m.region != "" && m.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(m.region),
		}
	}
	_, err = m.client.CreateBucket(ctx, input)
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	m.logger.Info("created media bucket", zap.String("bucket", m.bucket))
	return nil
}

// Upload stores an object and returns its URL. The URL is what the outbox and
// message rows carry; for private buckets it is a presigned GET.
func (m *MediaStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	m.logger.Debug("media uploaded",
		zap.String("key", key),
		zap.Int("bytes", len(data)))

	if m.publicRead {
		return m.ObjectURL(key), nil
	}
	return m.PresignGet(ctx, key, 24*time.Hour)
}

// ObjectURL returns the plain object URL, valid only for public buckets.
func (m *MediaStore) ObjectURL(key string) string {
	escaped := url.PathEscape(key)
	if m.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", m.endpoint, m.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.bucket, m.region, escaped)
}

// PresignGet returns a time-limited download URL for an object.
func (m *MediaStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(m.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
