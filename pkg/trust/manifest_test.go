package trust_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/trust"
)

func TestInitializeLoadVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "check.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\necho ok\n"), 0o755))

	manifestPath := filepath.Join(dir, "manifest.json")
	keyPath := filepath.Join(dir, "key")

	ref := trust.Reference{FilePath: scriptPath}
	_, err := trust.Initialize(manifestPath, keyPath, []trust.Reference{ref})
	require.NoError(t, err)

	loaded, err := trust.Load(manifestPath, keyPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.NoError(t, trust.Verify(loaded, ref))
}

func TestVerify_HashMismatchOnModification(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "check.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("original"), 0o755))

	manifestPath := filepath.Join(dir, "manifest.json")
	keyPath := filepath.Join(dir, "key")
	ref := trust.Reference{FilePath: scriptPath}
	_, err := trust.Initialize(manifestPath, keyPath, []trust.Reference{ref})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(scriptPath, []byte("modified"), 0o755))

	loaded, err := trust.Load(manifestPath, keyPath)
	require.NoError(t, err)

	err = trust.Verify(loaded, ref)
	require.Error(t, err)
	var terr *trust.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, trust.ErrHashMismatch, terr.Kind)
}

func TestVerify_NotInManifest(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	keyPath := filepath.Join(dir, "key")
	_, err := trust.Initialize(manifestPath, keyPath, nil)
	require.NoError(t, err)

	loaded, err := trust.Load(manifestPath, keyPath)
	require.NoError(t, err)

	err = trust.Verify(loaded, trust.Reference{Inline: "rm -rf /"})
	var terr *trust.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, trust.ErrNotInManifest, terr.Kind)
}

func TestLoad_TamperedManifestFails(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	keyPath := filepath.Join(dir, "key")
	_, err := trust.Initialize(manifestPath, keyPath, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	data = append(data, '\n') // trailing byte still valid JSON-adjacent but changes file; simulate tamper via content edit below
	tampered := []byte(`{"version":1,"timestamp":"2020-01-01T00:00:00Z","scripts":{},"hmac":"deadbeef"}`)
	require.NoError(t, os.WriteFile(manifestPath, tampered, 0o644))
	_ = data

	_, err = trust.Load(manifestPath, keyPath)
	require.Error(t, err)
	var terr *trust.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, trust.ErrManifestTampered, terr.Kind)
}

func TestLoad_AbsentManifestDisablesTrust(t *testing.T) {
	dir := t.TempDir()
	m, err := trust.Load(filepath.Join(dir, "missing.json"), filepath.Join(dir, "key"))
	require.NoError(t, err)
	assert.Nil(t, m)
}
