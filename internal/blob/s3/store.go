// Package s3blob archives the liquidation ledger to S3-compatible object
// storage (AWS, MinIO, R2) using AWS SDK v2.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const (
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 16 * 1024 * 1024
	partSize           = 8 * 1024 * 1024
)

// Config holds the bucket connection settings.
type Config struct {
	// Endpoint overrides the AWS endpoint for MinIO or R2. A bare host gets
	// a scheme from UseSSL.
	Endpoint string
	Region   string
	Bucket   string

	AccessKey string
	SecretKey string

	UseSSL bool
	// ForcePathStyle puts the bucket in the path; MinIO needs it.
	ForcePathStyle bool
}

// Store is one bucket of ledger archives.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

var _ domain.ObjectStore = (*Store)(nil)

// Open builds a Store. It does not contact the bucket; use Ping for that.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: cfg.Bucket,
	}, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload writes body to path. Large bodies go through the multipart
// uploader.
func (s *Store) Upload(ctx context.Context, path string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if len(body) >= multipartThreshold {
		if _, err := s.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
		}
		return nil
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// List returns every object under prefix, following continuation tokens.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.ArchiveObject, error) {
	var out []domain.ArchiveObject
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			o := domain.ArchiveObject{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				o.LastModified = obj.LastModified.UTC()
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// Exists reports whether path is present.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
}

// isNotFound matches NoSuchKey, the typed NotFound HeadObject returns, and
// a bare 404 from providers that send neither.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == 404
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
