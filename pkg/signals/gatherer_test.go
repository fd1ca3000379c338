package signals_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/signals"
)

func TestGather_RunsInParallelAndMergesByName(t *testing.T) {
	g := &signals.Gatherer{
		Specs: map[string]rulebook.CommandSpec{
			"ok":   {Command: []string{"/bin/echo"}, Args: []string{"hello"}},
			"fail": {Command: []string{"/bin/sh"}, Args: []string{"-c", "exit 3"}},
		},
	}

	start := time.Now()
	results := g.Gather(context.Background(), []string{"ok", "fail", "ok"}, rulebook.TemplateContext{})
	elapsed := time.Since(start)

	assert.Len(t, results, 2, "duplicate names dedupe")
	assert.True(t, results["ok"].Success)
	assert.False(t, results["fail"].Success)
	assert.Equal(t, 3, results["fail"].ExitCode)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestGather_TimeoutReportedAsFailure(t *testing.T) {
	g := &signals.Gatherer{
		Specs: map[string]rulebook.CommandSpec{
			"slow": {Command: []string{"/bin/sleep"}, Args: []string{"5"}, TimeoutSeconds: 1},
		},
	}
	results := g.Gather(context.Background(), []string{"slow"}, rulebook.TemplateContext{})
	assert.False(t, results["slow"].Success)
	assert.Equal(t, "timeout", results["slow"].Error)
}

func TestGather_UnknownSignalNameSkipped(t *testing.T) {
	g := &signals.Gatherer{Specs: map[string]rulebook.CommandSpec{}}
	results := g.Gather(context.Background(), []string{"ghost"}, rulebook.TemplateContext{})
	assert.Empty(t, results)
}
