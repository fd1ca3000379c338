package crypto

import (
	"fmt"

	"github.com/warden-run/warden/pkg/canonicalize"
)

// Hasher provides deterministic hashing for engine artifacts; the audit
// logs use it to hash their entries.
type Hasher interface {
	Hash(v interface{}) (string, error)
}

// CanonicalHasher hashes v by first reducing it to RFC 8785 canonical
// JSON (pkg/canonicalize), so two equivalent values hash identically
// regardless of struct field order or map iteration order.
type CanonicalHasher struct{}

func NewCanonicalHasher() *CanonicalHasher {
	return &CanonicalHasher{}
}

func (h *CanonicalHasher) Hash(v interface{}) (string, error) {
	hash, err := canonicalize.CanonicalHash(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return hash, nil
}
