package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	appconfig "deal_watcher/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const archivePrefix = "profitbase/deals"

// S3Archiver keeps the untouched Profitbase payload of every persisted deal in S3-compatible storage.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(ctx context.Context, cfg appconfig.S3Config) (*S3Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

func ArchiveKey(dealID int64) string {
	return path.Join(archivePrefix, fmt.Sprintf("%d.json", dealID))
}

func (a *S3Archiver) Archive(ctx context.Context, dealID int64, raw json.RawMessage) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(dealID)),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"archived-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
