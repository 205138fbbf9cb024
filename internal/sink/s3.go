package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// S3Sink uploads the run artifact as a JSON object to the configured bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	logger *log.Logger
}

func NewS3Sink(ctx context.Context, cfg config.S3Config, logger *log.Logger) (*S3Sink, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[SINK] ", log.LstdFlags)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing keeps MinIO and other S3-compatible stores working.
		o.UsePathStyle = true
	})

	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Write(ctx context.Context, result *core.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal run artifact: %w", err)
	}

	key := path.Join(s.prefix, fmt.Sprintf("%s.json", result.RunID))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload run artifact to s3: %w", err)
	}

	s.logger.Printf("wrote run %s to s3://%s/%s (%d bytes)", result.RunID, s.bucket, key, len(data))
	return nil
}
