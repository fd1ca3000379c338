package actions_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/warden-run/warden/pkg/actions"
	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/trust"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, format)
}

func TestDispatch_FiresOnAnyDenial(t *testing.T) {
	log := &recordingLogger{}
	d := &actions.Dispatcher{
		OnAnyDenial: []rulebook.CommandSpec{{Command: []string{"/bin/echo"}, Args: []string{"denied"}}},
		Log:         log,
	}

	d.Dispatch(context.Background(), decision.Final{Kind: decision.KindDeny}, rulebook.TemplateContext{})
	assert.Empty(t, log.lines, "successful echo should not log a failure")
}

func TestDispatch_UntrustedActionRefusedNotBlocking(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	keyPath := filepath.Join(dir, "key")
	_, err := trust.Initialize(manifestPath, keyPath, nil)
	require.NoError(t, err)
	verifier, err := trust.NewVerifier(manifestPath, keyPath)
	require.NoError(t, err)

	log := &recordingLogger{}
	d := &actions.Dispatcher{
		OnHalt:   []rulebook.CommandSpec{{Command: []string{"/bin/true"}}},
		Verifier: verifier,
		Log:      log,
	}
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), decision.Final{Kind: decision.KindHalt}, rulebook.TemplateContext{})
	})
	assert.Equal(t, []string{"action refused, not trusted: %v"}, log.lines)
}
