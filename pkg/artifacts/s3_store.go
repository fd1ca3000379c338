package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store is a Store backed by AWS S3, for deployments that share a
// compiled-module cache or audit archive across hosts rather than
// relying on each host's local disk.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint, e.g. for MinIO or LocalStack
	Prefix   string
}

// NewS3Store creates an S3-backed store using the default AWS credential
// chain.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("artifacts: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(rawHash string) string {
	return s.prefix + rawHash + ".blob"
}

func (s *S3Store) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	rawHash := hex.EncodeToString(sum[:])
	prefixed := "sha256:" + rawHash

	if exists, err := s.Exists(ctx, prefixed); err == nil && exists {
		return prefixed, nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(rawHash)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: s3 put: %w", err)
	}
	return prefixed, nil
}

func (s *S3Store) PutAt(ctx context.Context, key string, data []byte) error {
	rawHash, err := rawHashFromKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(rawHash)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("artifacts: s3 put: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: s3 get %s: %w", hash, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, hash string) error {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	})
	if err != nil {
		return fmt.Errorf("artifacts: s3 delete %s: %w", hash, err)
	}
	return nil
}

func rawHashFromKey(key string) (string, error) {
	if len(key) < 7 || key[:7] != "sha256:" {
		return "", fmt.Errorf("artifacts: invalid hash format: %s", key)
	}
	return key[7:], nil
}
