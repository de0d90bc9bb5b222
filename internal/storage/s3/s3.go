// Package s3 provides an S3-compatible storage backend.
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
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/logging"
	"github.com/appdrop/appdrop/internal/metrics"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// endpointURL returns the endpoint with an explicit scheme. An endpoint
// configured without one gets http or https per UseSSL; an explicit scheme
// in the endpoint wins.
func (c Config) endpointURL() string {
	if strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	if c.UseSSL {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// Backend implements storage.Backend using S3/MinIO.
type Backend struct {
	client *s3.Client
	bucket string
}

// New creates a new S3 backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	endpoint := cfg.endpointURL()
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	backend := &Backend{
		client: client,
		bucket: cfg.Bucket,
	}

	if err := backend.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}

	return backend, nil
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(b.bucket),
		})
		if createErr != nil {
			metrics.RecordStorageOperation("create_bucket", time.Since(start), false)
			return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, createErr)
		}
		metrics.RecordStorageOperation("create_bucket", time.Since(start), true)
		logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
	}
	return nil
}

// Exists checks whether an object exists at the given path.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			metrics.RecordStorageOperation("exists", time.Since(start), true)
			return false, nil
		}
		metrics.RecordStorageOperation("exists", time.Since(start), false)
		return false, fmt.Errorf("head object %s: %w", path, err)
	}
	metrics.RecordStorageOperation("exists", time.Since(start), true)
	return true, nil
}

// ReadFile retrieves the full contents of an object.
func (b *Backend) ReadFile(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		metrics.RecordStorageOperation("read", time.Since(start), false)
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		metrics.RecordStorageOperation("read", time.Since(start), false)
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	metrics.RecordStorageOperation("read", time.Since(start), true)
	return data, nil
}

// WriteFile uploads content to the given path.
func (b *Backend) WriteFile(ctx context.Context, path string, content []byte) error {
	start := time.Now()
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("put object %s: %w", path, err)
	}
	metrics.RecordStorageOperation("write", time.Since(start), true)
	return nil
}

// CreateDirectory is a no-op: S3 keys have no directory hierarchy, so the
// containing "directory" always exists.
func (b *Backend) CreateDirectory(_ context.Context, _ string) error {
	return nil
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }
