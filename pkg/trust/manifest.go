// Package trust implements the script-integrity manifest: a persisted,
// HMAC-signed mapping from script reference to content hash that gates
// every signal and action execution.
//
// A manifest's HMAC MUST verify on load; a verification failure is fatal
// for the scope (the engine refuses to execute any script in it). Absence
// of a manifest file disables verification for that scope entirely.
package trust

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/warden-run/warden/pkg/canonicalize"
)

// hkdfInfo binds the derived HMAC key to this manifest's signing purpose,
// so the same on-disk key material can never be replayed against a
// different HMAC context.
var hkdfInfo = []byte("warden-trust-manifest-v1")

// ErrorKind names the reason a trust operation failed, matching §7's
// error taxonomy entries for trust violations.
type ErrorKind string

const (
	ErrManifestTampered ErrorKind = "manifest_tampered"
	ErrNotInManifest    ErrorKind = "script_not_trusted"
	ErrHashMismatch     ErrorKind = "script_modified"
	ErrMissingFile      ErrorKind = "missing_file"
)

// Error is returned by verification and update operations. It always
// names the kind so callers can distinguish fatal manifest corruption
// (ErrManifestTampered) from a per-script failure that the signal
// gatherer simply records and continues past.
type Error struct {
	Kind      ErrorKind
	Reference string
	Err       error
}

func (e *Error) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("trust: %s: %s", e.Kind, e.Reference)
	}
	return fmt.Sprintf("trust: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Manifest is the on-disk document. Scripts maps a canonical script
// reference (see Reference) to its lowercase hex SHA-256 digest.
type Manifest struct {
	Version   int               `json:"version"`
	Timestamp string            `json:"timestamp"`
	Scripts   map[string]string `json:"scripts"`
	HMAC      string            `json:"hmac"`
}

// hashableManifest excludes the HMAC field from the signed payload.
type hashableManifest struct {
	Version   int               `json:"version"`
	Timestamp string            `json:"timestamp"`
	Scripts   map[string]string `json:"scripts"`
}

// Reference identifies one trust-checked script. Exactly one of Inline,
// FilePath should be set; Interpreter+Args is used when the reference is
// an interpreter invocation of a script file (the hash covers only the
// script file, per §3).
type Reference struct {
	Inline      string   // inline command string
	FilePath    string   // direct file path
	Interpreter string   // e.g. "python3", "bash"
	Args        []string // interpreter args, not hashed
}

// Canonical returns the stable string key this reference is stored and
// looked up under in the manifest.
func (r Reference) Canonical() string {
	switch {
	case r.Interpreter != "" && r.FilePath != "":
		return r.Interpreter + ":" + r.FilePath
	case r.FilePath != "":
		return "file:" + r.FilePath
	default:
		return "inline:" + r.Inline
	}
}

// Hash computes the live content hash for this reference.
func (r Reference) Hash() (string, error) {
	var data []byte
	var err error
	switch {
	case r.FilePath != "":
		data, err = os.ReadFile(r.FilePath)
		if err != nil {
			return "", &Error{Kind: ErrMissingFile, Reference: r.Canonical(), Err: err}
		}
	default:
		data = []byte(r.Inline)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

const keyFileMode = 0o600

// deriveKey loads the per-project key material from keyPath, generating
// fresh random material on first use, then runs it through HKDF-SHA256
// to produce the actual 32-byte HMAC key (§9, design note on trust key
// derivation). Deriving rather than using the file bytes directly means
// a leaked manifest key file doesn't also hand out raw entropy reusable
// for another purpose. An env var override supports deterministic
// testing.
func deriveKey(keyPath string) ([]byte, error) {
	if override := os.Getenv("WARDEN_TEST_TRUST_KEY"); override != "" {
		return hkdfExpand([]byte(override))
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return hkdfExpand(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("trust: read key file: %w", err)
	}

	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("trust: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("trust: create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, material, keyFileMode); err != nil {
		return nil, fmt.Errorf("trust: write key file: %w", err)
	}
	return hkdfExpand(material)
}

func hkdfExpand(material []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, material, nil, hkdfInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("trust: derive key: %w", err)
	}
	return key, nil
}

func sign(m hashableManifest, key []byte) (string, error) {
	canonical, err := canonicalize.JCS(m)
	if err != nil {
		return "", fmt.Errorf("trust: canonicalize manifest: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Initialize computes a fresh manifest covering every given reference,
// signs it, and writes it atomically to manifestPath. keyPath holds the
// HMAC key (generated on first use, 0600 mode).
func Initialize(manifestPath, keyPath string, refs []Reference) (*Manifest, error) {
	key, err := deriveKey(keyPath)
	if err != nil {
		return nil, err
	}

	scripts := make(map[string]string, len(refs))
	for _, r := range refs {
		h, err := r.Hash()
		if err != nil {
			return nil, err
		}
		scripts[r.Canonical()] = h
	}

	payload := hashableManifest{Version: 1, Timestamp: time.Now().UTC().Format(time.RFC3339), Scripts: scripts}
	sig, err := sign(payload, key)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Version: payload.Version, Timestamp: payload.Timestamp, Scripts: payload.Scripts, HMAC: sig}
	if err := writeAtomic(manifestPath, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and HMAC-verifies the manifest at path. A missing file
// returns (nil, nil): the caller treats absence as "trust disabled for
// this scope", not an error.
func Load(manifestPath, keyPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("trust: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &Error{Kind: ErrManifestTampered, Err: fmt.Errorf("unparseable manifest: %w", err)}
	}

	key, err := deriveKey(keyPath)
	if err != nil {
		return nil, err
	}

	payload := hashableManifest{Version: m.Version, Timestamp: m.Timestamp, Scripts: m.Scripts}
	expected, err := sign(payload, key)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(m.HMAC)) != 1 {
		return nil, &Error{Kind: ErrManifestTampered}
	}

	return &m, nil
}

// Verify checks a reference's live hash against the manifest. m == nil
// means trust is disabled for the scope, so every script is implicitly
// trusted (per §3's documented absence semantics).
func Verify(m *Manifest, ref Reference) error {
	if m == nil {
		return nil
	}
	want, ok := m.Scripts[ref.Canonical()]
	if !ok {
		return &Error{Kind: ErrNotInManifest, Reference: ref.Canonical()}
	}
	got, err := ref.Hash()
	if err != nil {
		return err
	}
	if got != want {
		return &Error{Kind: ErrHashMismatch, Reference: ref.Canonical()}
	}
	return nil
}

// Update recomputes hashes for additions, removes the given references,
// and re-signs and rewrites the manifest atomically.
func Update(manifestPath, keyPath string, m *Manifest, additions []Reference, removals []string) (*Manifest, error) {
	key, err := deriveKey(keyPath)
	if err != nil {
		return nil, err
	}

	scripts := make(map[string]string, len(m.Scripts))
	for k, v := range m.Scripts {
		scripts[k] = v
	}
	for _, ref := range additions {
		h, err := ref.Hash()
		if err != nil {
			return nil, err
		}
		scripts[ref.Canonical()] = h
	}
	for _, k := range removals {
		delete(scripts, k)
	}

	payload := hashableManifest{Version: m.Version + 1, Timestamp: time.Now().UTC().Format(time.RFC3339), Scripts: scripts}
	sig, err := sign(payload, key)
	if err != nil {
		return nil, err
	}

	updated := &Manifest{Version: payload.Version, Timestamp: payload.Timestamp, Scripts: payload.Scripts, HMAC: sig}
	if err := writeAtomic(manifestPath, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func writeAtomic(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("trust: create manifest dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("trust: write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("trust: commit manifest: %w", err)
	}
	return nil
}
