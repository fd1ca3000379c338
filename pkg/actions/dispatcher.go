// Package actions implements the fire-and-forget side-effect dispatcher
// that runs after the response has already been written to stdout.
// Actions can never influence the decision already computed.
package actions

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/guard"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/trust"
)

const defaultActionTimeout = 30 * time.Second

// Logger receives a line per action attempt; the engine wires this to
// the audit log and/or stderr.
type Logger interface {
	Logf(format string, args ...any)
}

// Dispatcher fires the rulebook's actions indexed by rule-id and by
// decision kind, after a FinalDecision has been computed.
type Dispatcher struct {
	ByRuleID    map[string]rulebook.CommandSpec
	OnAnyDenial []rulebook.CommandSpec
	OnHalt      []rulebook.CommandSpec
	OnAnyAsk    []rulebook.CommandSpec
	Verifier    *trust.Verifier
	Log         Logger
}

// Dispatch fires every action the final decision triggers, one after
// another, and returns when all of them have finished; each action is
// bounded by its own timeout and by ctx. The CLI calls it from a
// background goroutine after the response is written and waits only a
// short grace period, per §4.10 and §9's "process exits immediately"
// decision.
func (d *Dispatcher) Dispatch(ctx context.Context, final decision.Final, tctx rulebook.TemplateContext) {
	var specs []rulebook.CommandSpec

	for _, id := range final.ContributingIDs {
		if spec, ok := d.ByRuleID[id]; ok {
			specs = append(specs, spec)
		}
	}

	switch final.Kind {
	case decision.KindHalt:
		specs = append(specs, d.OnHalt...)
	case decision.KindDeny:
		specs = append(specs, d.OnAnyDenial...)
	case decision.KindAsk:
		specs = append(specs, d.OnAnyAsk...)
	}

	for _, spec := range specs {
		d.run(ctx, spec, tctx, final)
	}
}

func (d *Dispatcher) run(ctx context.Context, spec rulebook.CommandSpec, tctx rulebook.TemplateContext, final decision.Final) {
	if spec.When != "" {
		allowed, err := guard.Eval(spec.When, guardInput(final))
		if err != nil {
			d.logf("action guard error, skipping: %v", err)
			return
		}
		if !allowed {
			return
		}
	}

	if d.Verifier != nil {
		ref := spec.TrustReference()
		if err := d.Verifier.VerifyScript(ref); err != nil {
			d.logf("action refused, not trusted: %v", err)
			return
		}
	}

	timeout := defaultActionTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := spec.Argv()
	if len(argv) == 0 {
		return
	}
	expanded := make([]string, len(argv))
	for i, a := range argv {
		expanded[i] = rulebook.Expand(a, tctx)
	}

	cmd := exec.CommandContext(runCtx, expanded[0], expanded[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		d.logf("action %v failed: %v (stderr: %s)", expanded, err, stderr.String())
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Log != nil {
		d.Log.Logf(format, args...)
	}
}

func guardInput(final decision.Final) guard.Input {
	return guard.Input{
		Kind:            string(final.Kind),
		Severity:        string(final.Severity),
		PrimaryRuleID:   final.PrimaryRuleID,
		PrimaryReason:   final.PrimaryReason,
		ContributingIDs: final.ContributingIDs,
	}
}
