// Package reliability provides run archiving and database maintenance.
package reliability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// archiveContentType is the media type of archived run snapshots
const archiveContentType = "application/msgpack"

// S3Config configures an S3-compatible archive (AWS, R2, MinIO)
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3Archiver uploads finished run snapshots to object storage
type S3Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Archiver loads AWS configuration and builds an archiver. Static
// credentials are used when given, the default chain otherwise.
func NewS3Archiver(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Archiver(client manager.UploadAPIClient, bucket, prefix string, log zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "s3_archiver").Str("bucket", bucket).Logger(),
	}
}

// Archive uploads body under the configured prefix and returns the object key
func (a *S3Archiver) Archive(ctx context.Context, key string, body []byte) (string, error) {
	objectKey := a.objectKey(key)
	start := time.Now()

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(archiveContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	a.log.Debug().
		Str("key", objectKey).
		Int("size_bytes", len(body)).
		Dur("duration_ms", time.Since(start)).
		Msg("Run archived")
	return objectKey, nil
}

func (a *S3Archiver) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if a.prefix == "" {
		return key
	}
	return strings.TrimSuffix(a.prefix, "/") + "/" + key
}
