// Package objectstore wraps an S3-compatible client for the blobs the
// engine addresses by content hash: file-typed attribute values and
// manual-step attachments.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ternarybob/forge/internal/common"
)

// Client is a thin wrapper around an S3 SDK client scoped to one
// bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds a Client from the object store section of the
// application configuration.
func New(ctx context.Context, cfg common.ObjectStoreConfig) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Upload stores content under key, returning the key for convenience
// chaining.
func (c *Client) Upload(ctx context.Context, key string, content io.Reader) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

// Download fetches the object at key into a process-local temp file
// and returns its path. The caller owns the file and is responsible
// for removing it once done.
func (c *Client) Download(ctx context.Context, key string) (string, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "forge-blob-*")
	if err != nil {
		return "", fmt.Errorf("objectstore: creating temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, out.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("objectstore: writing temp file: %w", err)
	}

	return tmp.Name(), nil
}
