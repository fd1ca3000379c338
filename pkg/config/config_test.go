package config_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/config"
)

func TestLoad_RequiresHarness(t *testing.T) {
	_, err := config.Load([]string{}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestLoad_DefaultsPolicyDirToCwd(t *testing.T) {
	cfg, err := config.Load([]string{"--harness", "claude"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.PolicyDir)
	assert.Equal(t, "claude", cfg.Harness)
}

func TestLoad_ParsesTraceComponents(t *testing.T) {
	t.Setenv("WARDEN_TRACE", "routing,signals")
	cfg, err := config.Load([]string{"--harness", "cursor"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, cfg.TraceEnabled("routing"))
	assert.True(t, cfg.TraceEnabled("signals"))
	assert.False(t, cfg.TraceEnabled("wasm"))
}

func TestLoad_DebugFilesFlag(t *testing.T) {
	cfg, err := config.Load([]string{"--harness", "claude", "--debug-files", "--debug-dir", "/tmp/x"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, cfg.DebugFiles)
	assert.Equal(t, "/tmp/x", cfg.DebugDir)
}
