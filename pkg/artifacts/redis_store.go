package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for operators running several
// warden processes (e.g. one per CI runner) that should share a single
// compiled-module cache instead of each compiling the same rule corpus
// independently.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. addr is a host:port pair;
// prefix namespaces keys so a cache and an unrelated dataset can share
// one Redis instance.
func NewRedisStore(addr, prefix string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (s *RedisStore) key(rawHash string) string {
	return s.prefix + rawHash
}

func (s *RedisStore) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	rawHash := hex.EncodeToString(sum[:])
	prefixed := "sha256:" + rawHash

	if err := s.client.SetNX(ctx, s.key(rawHash), data, 0).Err(); err != nil {
		return "", fmt.Errorf("artifacts: redis setnx: %w", err)
	}
	return prefixed, nil
}

func (s *RedisStore) PutAt(ctx context.Context, key string, data []byte) error {
	rawHash, err := rawHashFromKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rawHash), data, 0).Err(); err != nil {
		return fmt.Errorf("artifacts: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, hash string) ([]byte, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(rawHash)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("artifacts: not found: %s", hash)
		}
		return nil, fmt.Errorf("artifacts: redis get %s: %w", hash, err)
	}
	return data, nil
}

func (s *RedisStore) Exists(ctx context.Context, hash string) (bool, error) {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.key(rawHash)).Result()
	if err != nil {
		return false, fmt.Errorf("artifacts: redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	rawHash, err := rawHashFromKey(hash)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(rawHash)).Err(); err != nil {
		return fmt.Errorf("artifacts: redis del: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
