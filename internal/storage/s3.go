package storage

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const mirrorPrefix = "tenant-backups"

// objectAPI is the part of *s3.Client the mirror uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures the off-host mirror.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Mirror copies finished archives to an S3-compatible bucket.
type S3Mirror struct {
	client objectAPI
	bucket string
	logger zerolog.Logger
}

// NewS3Mirror returns nil when no bucket is configured.
func NewS3Mirror(opts S3Options, logger zerolog.Logger) *S3Mirror {
	if opts.Bucket == "" {
		return nil
	}
	s3opts := s3.Options{
		Region:       opts.Region,
		UsePathStyle: true,
	}
	if opts.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		s3opts.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
	}
	return newS3Mirror(s3.New(s3opts), opts.Bucket, logger)
}

func newS3Mirror(client objectAPI, bucket string, logger zerolog.Logger) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("component", "s3-mirror").Str("bucket", bucket).Logger(),
	}
}

// Key is the object key of a job's archive.
func Key(tenantID, token string) string {
	return path.Join(mirrorPrefix, tenantID, token+".zip")
}

// Upload copies the archive at localPath to the bucket.
func (m *S3Mirror) Upload(ctx context.Context, tenantID, token, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive for upload: %w", err)
	}

	key := Key(tenantID, token)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	m.logger.Debug().Str("key", key).Int64("size", info.Size()).Msg("archive mirrored")
	return nil
}

// Delete removes a mirrored archive. S3 treats a missing key as success.
func (m *S3Mirror) Delete(ctx context.Context, tenantID, token string) error {
	key := Key(tenantID, token)
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
