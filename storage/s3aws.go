// Package storage implements the artifact presign contract: runledger never
// proxies artifact bytes itself (out of scope, see SPEC_FULL.md §1), it only
// hands callers a time-limited S3 URL to PUT/GET directly against the
// configured bucket.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config carries the S3-compatible endpoint runledger presigns artifact URLs
// against. Endpoint is optional: empty uses the AWS default resolver, set for
// MinIO/Hetzner/other S3-compatible backends.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client for presigning against cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ArtifactPresigner issues time-limited upload/download URLs for a single
// bucket. It never touches object bytes; the caller (the API layer here,
// the client SDK beyond it) does the actual transfer.
type ArtifactPresigner struct {
	client *s3.PresignClient
	bucket string
	expiry time.Duration
}

// NewArtifactPresigner wraps client with the presign API, scoped to bucket.
// expiry bounds how long an issued URL stays valid.
func NewArtifactPresigner(client *s3.Client, bucket string, expiry time.Duration) *ArtifactPresigner {
	return &ArtifactPresigner{
		client: s3.NewPresignClient(client, s3.WithPresignExpires(expiry)),
		bucket: bucket,
		expiry: expiry,
	}
}

// PresignUpload returns a PUT URL for key, valid for the presigner's expiry.
func (p *ArtifactPresigner) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign upload for %s: %w", key, err)
	}
	return req.URL, time.Now().Add(p.expiry), nil
}

// PresignDownload returns a GET URL for key, valid for the presigner's expiry.
func (p *ArtifactPresigner) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign download for %s: %w", key, err)
	}
	return req.URL, time.Now().Add(p.expiry), nil
}
