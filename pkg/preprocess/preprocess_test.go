package preprocess_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/preprocess"
)

func TestRun_NormalizesToolName(t *testing.T) {
	ev := &event.Event{ToolName: "bash"}
	out, err := preprocess.Run(ev, "", false)
	require.NoError(t, err)
	assert.Equal(t, "Bash", out.ToolName)
}

func TestRun_CollapsesWhitespaceInBashCommand(t *testing.T) {
	ev := &event.Event{ToolName: "Bash", ToolInput: map[string]any{"command": "rm  -rf   /tmp/x"}}
	out, err := preprocess.Run(ev, "", false)
	require.NoError(t, err)
	assert.Equal(t, "rm -rf /tmp/x", out.ToolInput["command"])
}

func TestRun_PreservesQuotedWhitespace(t *testing.T) {
	ev := &event.Event{ToolName: "Bash", ToolInput: map[string]any{"command": `echo "a   b"`}}
	out, err := preprocess.Run(ev, "", false)
	require.NoError(t, err)
	assert.Equal(t, `echo "a   b"`, out.ToolInput["command"])
}

func TestRun_NormalizesUnicodeInBashCommand(t *testing.T) {
	// NFD "e" + combining acute accent U+0301 must fold to the same
	// string as the precomposed NFC "é" so a rule matching literal
	// text can't be bypassed by an equivalent but differently-encoded
	// form.
	decomposed := "echo e\u0301cho"
	ev := &event.Event{ToolName: "Bash", ToolInput: map[string]any{"command": decomposed}}
	out, err := preprocess.Run(ev, "", false)
	require.NoError(t, err)
	assert.Equal(t, "echo écho", out.ToolInput["command"])
}

func TestRun_RejectsPathEscapingRoot(t *testing.T) {
	ev := &event.Event{FilePath: "/tmp/project/../../etc/passwd"}
	_, err := preprocess.Run(ev, "/tmp/project", false)
	require.Error(t, err)
}

func TestRun_AllowsPathWithinRoot(t *testing.T) {
	ev := &event.Event{FilePath: "/tmp/project/src/main.go"}
	out, err := preprocess.Run(ev, "/tmp/project", false)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project/src/main.go", out.FilePath)
}

func TestRun_RejectsSymlinkEscapingRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))

	// A symlink planted inside the allowed root pointing outside it must
	// not sail through on a purely lexical check (§4.2 item 4).
	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	ev := &event.Event{FilePath: filepath.Join(link, "secret")}
	_, err := preprocess.Run(ev, root, false)
	require.Error(t, err)
}

func TestRun_AllowsSymlinkStayingWithinRoot(t *testing.T) {
	root := t.TempDir()
	real := filepath.Join(root, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(real, "main.go"), []byte("x"), 0o644))

	link := filepath.Join(root, "alias")
	require.NoError(t, os.Symlink(real, link))

	ev := &event.Event{FilePath: filepath.Join(link, "main.go")}
	out, err := preprocess.Run(ev, root, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "main.go"), out.FilePath)
}
