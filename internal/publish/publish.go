// Package publish uploads a results directory to an S3-compatible bucket.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/valpere/moraleval/internal/logger"
)

type Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint points at a non-AWS store such as MinIO; it enables
	// path-style addressing.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// ObjectPutter is the part of the S3 client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
	log    *slog.Logger
}

var contentTypes = map[string]string{
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
}

// New builds an S3 client. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("publish: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client ObjectPutter, bucket, prefix string) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.Named("publish"),
	}
}

// Key is the object key of a file at rel inside the uploaded directory.
func (p *Publisher) Key(runID, rel string) string {
	parts := []string{}
	if p.prefix != "" {
		parts = append(parts, p.prefix)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.ToSlash(rel))
	return path.Join(parts...)
}

// UploadDir uploads every regular file under dir, skipping temporary files
// left by interrupted writes. It returns the s3:// URIs written.
func (p *Publisher) UploadDir(ctx context.Context, dir, runID string) ([]string, error) {
	var uploaded []string
	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		uri, err := p.upload(ctx, file, p.Key(runID, rel))
		if err != nil {
			return err
		}
		uploaded = append(uploaded, uri)
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	p.log.Info("results published", "bucket", p.bucket, "objects", len(uploaded))
	return uploaded, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(file))]; ok {
		in.ContentType = aws.String(ct)
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	p.log.Debug("uploaded", "key", key, "bytes", len(data))
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
