package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// ObjectPutter is the subset of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads dead-lettered webhook payloads to S3.
type Client struct {
	s3Client ObjectPutter
	bucket   string
}

// UploadResult contains the result of a successful upload
type UploadResult struct {
	BucketName string
	ObjectKey  string
	Size       int64
}

// NewClient creates an S3 archive client.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (MinIO, B2) need path-style URLs
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Initialized S3 archive for bucket: %s", cfg.BucketName)
	return NewClientWithAPI(s3Client, cfg.BucketName), nil
}

// NewClientWithAPI wraps an existing S3 API implementation.
func NewClientWithAPI(api ObjectPutter, bucket string) *Client {
	return &Client{s3Client: api, bucket: bucket}
}

// PutDeadLetter stores a raw webhook payload under its dead-letter key.
func (c *Client) PutDeadLetter(ctx context.Context, providerEventID string, receivedAt time.Time, payload []byte, metadata map[string]string) (*UploadResult, error) {
	key := DeadLetterKey(providerEventID, receivedAt)

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload dead letter %s: %w", key, err)
	}

	log.Infof("[Archive] Stored dead letter: s3://%s/%s", c.bucket, key)
	return &UploadResult{BucketName: c.bucket, ObjectKey: key, Size: int64(len(payload))}, nil
}
