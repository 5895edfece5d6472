// Package archive implements the optional cold-archive tier: sealed
// chunks are uploaded to S3-compatible object storage the moment the
// Chunked Store notices they reached capacity. It is adapted from
// sidechain's internal/storage/s3 provider — same Option pattern, same
// Client interface and bucket-access check on construction — but
// archives finalized chunk bytes synchronously instead of buffering
// live, in-flight events.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Client defines the S3 operations the archiver uses.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Archiver is the capability internal/store depends on; the real
// implementation is *S3Archiver, with a trivial fake usable in tests.
type Archiver interface {
	UploadChunk(ctx context.Context, table, chunkPath string, data []byte) error
}

// S3Archiver uploads sealed chunks to an S3-compatible bucket.
type S3Archiver struct {
	client     Client
	bucket     string
	prefix     string
	region     string
	endpointFn func(*s3.Options)
}

// Option configures an S3Archiver.
type Option func(*S3Archiver)

// WithClient sets a custom S3 client, for tests.
func WithClient(client Client) Option {
	return func(a *S3Archiver) { a.client = client }
}

// WithPrefix sets a key prefix for every archived object.
func WithPrefix(prefix string) Option {
	return func(a *S3Archiver) { a.prefix = prefix }
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(a *S3Archiver) { a.region = region }
}

// WithEndpoint points the client at an S3-compatible endpoint (MinIO,
// LocalStack) instead of AWS, in path-style addressing mode.
func WithEndpoint(endpoint string) Option {
	return func(a *S3Archiver) {
		if endpoint == "" {
			return
		}
		a.endpointFn = func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}
}

// New builds an S3Archiver and verifies bucket access, mirroring
// sidechain's s3.Provider.New.
func New(bucket string, opts ...Option) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive requires a bucket name")
	}

	a := &S3Archiver{bucket: bucket, region: "us-east-1"}
	for _, opt := range opts {
		opt(a)
	}

	if a.client == nil {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(a.region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if a.endpointFn != nil {
			a.client = s3.NewFromConfig(cfg, a.endpointFn)
		} else {
			a.client = s3.NewFromConfig(cfg)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil, fmt.Errorf("archive bucket %s does not exist: %w", a.bucket, err)
		}
		return nil, fmt.Errorf("access bucket %s: %w", a.bucket, err)
	}
	return a, nil
}

func (a *S3Archiver) key(table, chunkPath string) string {
	name := chunkPath
	for i := len(chunkPath) - 1; i >= 0; i-- {
		if chunkPath[i] == '/' {
			name = chunkPath[i+1:]
			break
		}
	}
	if a.prefix == "" {
		return table + "/" + name
	}
	return a.prefix + "/" + table + "/" + name
}

// UploadChunk uploads a sealed chunk's bytes under
// [prefix/]table/<chunk file name>.
func (a *S3Archiver) UploadChunk(ctx context.Context, table, chunkPath string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(table, chunkPath)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload chunk %q: %w", chunkPath, err)
	}
	return nil
}
