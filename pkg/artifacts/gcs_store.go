//go:build gcp

package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is a Store backed by Google Cloud Storage, selected at build
// time via the "gcp" build tag so a default build never pulls in the
// GCS client for deployments that don't need it.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig configures a GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a GCS-backed store using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: new gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(rawHash string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + rawHash + ".blob")
}

func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	rawHash := hex.EncodeToString(sum[:])
	prefixed := "sha256:" + rawHash

	if exists, err := s.Exists(ctx, prefixed); err == nil && exists {
		return prefixed, nil
	}

	w := s.object(rawHash).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("artifacts: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("artifacts: gcs close: %w", err)
	}
	return prefixed, nil
}

func (s *GCSStore) PutAt(ctx context.Context, key string, data []byte) error {
	rawHash, err := rawHashFromKey(key)
	if err != nil {
		return err
	}
	w := s.object(rawHash).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("artifacts: gcs write: %w", err)
	}
	return w.Close()
}

func (s *GCSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return nil, err
	}
	r, err := s.object(rawHash).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: gcs get %s: %w", hash, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, hash string) (bool, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return false, err
	}
	_, err = s.object(rawHash).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("artifacts: gcs attrs: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, hash string) error {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return err
	}
	err = s.object(rawHash).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifacts: gcs delete %s: %w", hash, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
