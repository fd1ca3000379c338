package trust

import "sync"

// Verifier binds a loaded (or absent) manifest to a single scope. It is
// the object the signal gatherer and action dispatcher actually hold;
// Manifest/Load/Verify stay free functions so they're trivially testable
// in isolation.
type Verifier struct {
	ManifestPath string
	KeyPath      string

	mu           sync.Mutex
	manifest     *Manifest
	loaded       bool
	noticeLogged bool
}

// NewVerifier loads (or notes the absence of) the manifest at construction
// time so a tampered manifest fails fast at startup rather than on the
// first script execution.
func NewVerifier(manifestPath, keyPath string) (*Verifier, error) {
	m, err := Load(manifestPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &Verifier{ManifestPath: manifestPath, KeyPath: keyPath, manifest: m, loaded: true}, nil
}

// Enabled reports whether this scope has an active manifest.
func (v *Verifier) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.manifest != nil
}

// VerifyScript checks ref against the current manifest. Returns nil
// (trust disabled) for every reference when the scope has no manifest;
// it logs nothing itself (see NoticeOnce for the one-time notice).
func (v *Verifier) VerifyScript(ref Reference) error {
	v.mu.Lock()
	m := v.manifest
	v.mu.Unlock()
	return Verify(m, ref)
}

// NoticeOnce returns true exactly once per process for a disabled scope,
// so callers can log "trust disabled for <scope>" a single time.
func (v *Verifier) NoticeOnce() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.manifest != nil || v.noticeLogged {
		return false
	}
	v.noticeLogged = true
	return true
}

// Reload re-reads and re-verifies the manifest from disk, replacing the
// in-memory copy, e.g. after the manifest file was rewritten by Update.
func (v *Verifier) Reload() error {
	m, err := Load(v.ManifestPath, v.KeyPath)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.manifest = m
	v.mu.Unlock()
	return nil
}
