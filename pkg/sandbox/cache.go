package sandbox

import (
	"context"
	"fmt"

	"github.com/warden-run/warden/pkg/artifacts"
)

// Cache content-addresses compiled WASM modules by the combined hash of
// their rule sources, so an unchanged corpus across process restarts
// skips the external compiler entirely.
type Cache struct {
	store artifacts.Store
}

// NewCache wraps a CAS store (typically artifacts.NewFileStore under the
// scope's configuration directory) as a compiled-module cache.
func NewCache(store artifacts.Store) *Cache {
	return &Cache{store: store}
}

func cacheKey(combinedHash string) string {
	return "sha256:" + combinedHash
}

// Get looks up a previously compiled module by its combined source hash.
// A miss is not an error: callers fall through to the external compiler.
func (c *Cache) Get(ctx context.Context, combinedHash string) ([]byte, bool, error) {
	key := cacheKey(combinedHash)
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("sandbox: cache exists check: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("sandbox: cache get: %w", err)
	}
	return data, true, nil
}

// Put stores a freshly compiled module keyed by combinedHash (the rule
// sources' hash), not by the wasm output's own content hash, so Get's
// lookup by source hash always hits after the first compile.
func (c *Cache) Put(ctx context.Context, combinedHash string, wasmBytes []byte) error {
	if err := c.store.PutAt(ctx, cacheKey(combinedHash), wasmBytes); err != nil {
		return fmt.Errorf("sandbox: cache put: %w", err)
	}
	return nil
}
