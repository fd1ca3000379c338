// Package signals implements the parallel, timeout-bounded execution of
// external data-producing scripts declared in a rulebook.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/telemetry"
	"github.com/warden-run/warden/pkg/trust"
)

const defaultTimeout = 5 * time.Second

// maxConcurrentSignals bounds how many signal processes Gather will
// spawn at once; a rulebook that always-gathers dozens of signals on a
// hot path (every PreToolUse) shouldn't be able to fork-bomb the host.
const maxConcurrentSignals = 8

// Gatherer executes a rulebook's declared signals and merges their
// outcomes into an event.
type Gatherer struct {
	Specs     map[string]rulebook.CommandSpec
	Verifier  *trust.Verifier // nil disables trust for this scope
	Telemetry *telemetry.Provider

	limiterOnce sync.Once
	limiter     *rate.Limiter
}

func (g *Gatherer) concurrencyLimiter() *rate.Limiter {
	g.limiterOnce.Do(func() {
		// A burst of maxConcurrentSignals tokens refilled fast enough that
		// a single Gather call never waits once under the burst: this
		// limits steady-state fan-out, not a single request's own signals.
		g.limiter = rate.NewLimiter(rate.Limit(maxConcurrentSignals*2), maxConcurrentSignals)
	})
	return g.limiter
}

// Gather runs every name in names (deduplicated; callers include any
// always-gather signals in names), in parallel, each bounded by its own timeout and all bounded
// by the overall deadline carried on ctx. The returned map is always
// non-nil and keyed by signal name.
func (g *Gatherer) Gather(ctx context.Context, names []string, tctx rulebook.TemplateContext) map[string]event.SignalResult {
	unique := dedupe(names)
	results := make(map[string]event.SignalResult, len(unique))
	if len(unique) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range unique {
		spec, ok := g.Specs[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, spec rulebook.CommandSpec) {
			defer wg.Done()
			res := g.runOne(ctx, name, spec, tctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, spec)
	}

	wg.Wait()
	return results
}

func (g *Gatherer) runOne(ctx context.Context, name string, spec rulebook.CommandSpec, tctx rulebook.TemplateContext) event.SignalResult {
	res := g.runOneUnrecorded(ctx, name, spec, tctx)
	g.Telemetry.RecordSignalRun(ctx, name, res.Success)
	return res
}

func (g *Gatherer) runOneUnrecorded(ctx context.Context, name string, spec rulebook.CommandSpec, tctx rulebook.TemplateContext) event.SignalResult {
	ref := spec.TrustReference()
	if g.Verifier != nil {
		if err := g.Verifier.VerifyScript(ref); err != nil {
			return event.SignalResult{ExitCode: -1, Success: false, Error: err.Error()}
		}
	}

	timeout := defaultTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.concurrencyLimiter().Wait(runCtx); err != nil {
		return event.SignalResult{ExitCode: -1, Success: false, Error: "rate limited: " + err.Error()}
	}

	argv := expandArgv(spec, tctx)
	if len(argv) == 0 {
		return event.SignalResult{ExitCode: -1, Success: false, Error: "empty command"}
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if spec.WorkingDir != "" {
		cmd.Dir = rulebook.Expand(spec.WorkingDir, tctx)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return event.SignalResult{ExitCode: -1, Success: false, Error: "timeout"}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return event.SignalResult{ExitCode: -1, Success: false, Error: err.Error()}
		}
	}

	out := stdout.Bytes()
	var parsed any
	if err := json.Unmarshal(out, &parsed); err == nil {
		return event.SignalResult{ExitCode: exitCode, Success: exitCode == 0, Output: parsed, Error: stderr.String()}
	}

	return event.SignalResult{ExitCode: exitCode, Success: exitCode == 0, Output: string(out), Error: stderr.String()}
}

func expandArgv(spec rulebook.CommandSpec, tctx rulebook.TemplateContext) []string {
	argv := spec.Argv()
	expanded := make([]string, len(argv))
	for i, a := range argv {
		expanded[i] = rulebook.Expand(a, tctx)
	}
	return expanded
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
