package audit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// exportClaims binds an audit export bundle to the operator who signed
// it and the hash of the bundle's contents, so a downstream consumer
// (a compliance pipeline, an incident reviewer) can verify the export
// wasn't substituted in transit.
type exportClaims struct {
	jwt.RegisteredClaims
	BundleHash string `json:"bundle_hash"`
	EntryCount int    `json:"entry_count"`
}

// ExportSigner signs audit-bundle export tokens with an HMAC secret.
// It exists for operators who ship audit log excerpts out of the host
// (to a SIEM, to a support ticket) and want the recipient able to prove
// the excerpt came from this warden instance unmodified.
type ExportSigner struct {
	Issuer string
	secret []byte
}

// NewExportSigner builds a signer from a raw secret. The secret is used
// directly as the HMAC key; callers deriving it from a file should run
// it through the same HKDF step trust.deriveKey uses, so export tokens
// and trust manifests never share key material end to end.
func NewExportSigner(issuer string, secret []byte) *ExportSigner {
	return &ExportSigner{Issuer: issuer, secret: secret}
}

// Sign produces a compact JWT asserting bundleHash is the canonical
// hash of an audit export containing entryCount records, valid for ttl.
func (s *ExportSigner) Sign(bundleHash string, entryCount int, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := exportClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		BundleHash: bundleHash,
		EntryCount: entryCount,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("audit: sign export token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns the bundle hash it attests to,
// failing closed on expiry, signature mismatch, or issuer mismatch.
func (s *ExportSigner) Verify(tokenString string) (bundleHash string, entryCount int, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &exportClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithIssuer(s.Issuer))
	if err != nil {
		return "", 0, fmt.Errorf("audit: verify export token: %w", err)
	}

	claims, ok := token.Claims.(*exportClaims)
	if !ok || !token.Valid {
		return "", 0, fmt.Errorf("audit: export token invalid")
	}
	return claims.BundleHash, claims.EntryCount, nil
}
