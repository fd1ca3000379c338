package engine

import (
	"context"
	"fmt"

	"github.com/warden-run/warden/pkg/audit"
	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/harness"
	"github.com/warden-run/warden/pkg/preprocess"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/sandbox"
	"github.com/warden-run/warden/pkg/synth"
	"github.com/warden-run/warden/pkg/telemetry"
)

// Engine owns the compiled sandbox modules, rulebooks, routers, and trust
// verifiers for both scopes, for the process lifetime. It is the single
// object the CLI entrypoint constructs once per invocation and drives
// through exactly one request.
type Engine struct {
	Adapter harness.Adapter
	Global  *Scope // nil if no global policy root exists
	Project *Scope

	Audit     audit.Log
	Telemetry *telemetry.Provider
}

// Options configures engine construction. GlobalCache and ProjectCache
// are independent because each scope's compiled module cache lives under
// that scope's own configuration directory (§3 Scope: disjoint
// namespaces, disjoint caches).
type Options struct {
	Harness     harness.Name
	GlobalRoot  string
	ProjectRoot string

	Compiler     *sandbox.Compiler
	GlobalCache  *sandbox.Cache
	ProjectCache *sandbox.Cache
	Audit        audit.Log
	Telemetry    *telemetry.Provider
}

// New performs the full startup sequence: resolve the harness adapter,
// load both scopes (global first), and wire an audit log. A missing
// global or project root is not an error: that scope simply never
// contributes decisions (§3, empty corpus ⇒ always allow).
func New(ctx context.Context, opts Options) (*Engine, error) {
	adapter, err := harness.For(opts.Harness)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NoopLog{}
	}

	telem := opts.Telemetry
	if telem == nil {
		telem = telemetry.Noop()
	}

	e := &Engine{Adapter: adapter, Audit: auditLog, Telemetry: telem}

	if opts.GlobalRoot != "" {
		g, err := LoadScope(ctx, "global", opts.GlobalRoot, opts.Compiler, opts.GlobalCache)
		if err != nil {
			return nil, fmt.Errorf("engine: load global scope: %w", err)
		}
		e.Global = g
	}

	if opts.ProjectRoot != "" {
		p, err := LoadScope(ctx, "project", opts.ProjectRoot, opts.Compiler, opts.ProjectCache)
		if err != nil {
			return nil, fmt.Errorf("engine: load project scope: %w", err)
		}
		e.Project = p
	}

	return e, nil
}

// Close releases both scopes' sandbox resources and the audit log.
func (e *Engine) Close(ctx context.Context) {
	if e.Global != nil {
		e.Global.Close(ctx)
	}
	if e.Project != nil {
		e.Project.Close(ctx)
	}
	_ = e.Audit.Close()
}

// Result is Run's outcome: the bytes to write to stdout and the process
// exit code to use. Per §7, every failure kind Run itself can produce —
// malformed event (item 1), preprocessing failure (item 2), evaluation
// failure (item 7) — still yields a coherent deny response on stdout and
// exits 0, so a host that branches on exit code never misclassifies a
// routine deny as an abort-worthy crash. Exit code 2/nonzero is reserved
// for the startup-only failures of §7 items 3-4 (rulebook error, compile
// failure), which are reported by engine.New returning an error before a
// Result ever exists, not by this type.
type Result struct {
	Response []byte
	ExitCode int
	Final    decision.Final
	Event    *event.Event // nil if parsing failed
}

// Run drives one hook invocation end to end: parse -> preprocess ->
// (route -> gather -> evaluate) per scope, global first -> synthesize ->
// format -> audit. It never panics and never returns an error the caller
// must itself translate into a response: every failure mode already maps
// to a coherent FinalDecision per §7, so the caller can always write
// Result.Response to stdout.
func (e *Engine) Run(ctx context.Context, raw []byte) Result {
	ctx, endSpan := e.Telemetry.StartSpan(ctx, "warden.run")
	defer endSpan()

	ev, err := e.Adapter.ParseEvent(raw)
	if err != nil {
		return e.failClosed(ctx, nil, "", fmt.Sprintf("malformed event: %v", err))
	}

	preprocessed, perr := preprocess.Run(ev, ev.CWD, false)
	if perr != nil {
		trustEnabled := (e.Global != nil && e.Global.Verifier.Enabled()) || (e.Project != nil && e.Project.Verifier.Enabled())
		if !trustEnabled {
			// §4.2: fail-open with a warning when no scope enforces trust.
			final := decision.Final{Kind: decision.KindAllow}
			return e.respond(ctx, ev, final, nil, nil)
		}
		return e.failClosed(ctx, ev, ev.HookEventName, fmt.Sprintf("preprocessing failure: %v", perr))
	}
	ev = preprocessed

	var globalSet, projectSet *decision.Set

	if e.Global != nil {
		set, err := e.Global.Evaluate(ctx, ev)
		if err != nil {
			return e.failClosed(ctx, ev, ev.HookEventName, fmt.Sprintf("engine error (global): %v", err))
		}
		globalSet = &set
	}

	// Global halt skips the project scope entirely (§3 Scope, §5).
	if globalSet == nil || len(globalSet.Halt) == 0 {
		if e.Project != nil {
			set, err := e.Project.Evaluate(ctx, ev)
			if err != nil {
				return e.failClosed(ctx, ev, ev.HookEventName, fmt.Sprintf("engine error (project): %v", err))
			}
			projectSet = &set
		}
	}

	final := synth.Synthesize(globalSet, projectSet)
	return e.respond(ctx, ev, final, globalSet, projectSet)
}

// DispatchActions fires both scopes' background actions for the given
// final decision. Callers invoke this AFTER writing the response to
// stdout, per §4.10: action latency must never enter the critical path.
func (e *Engine) DispatchActions(ctx context.Context, ev *event.Event, final decision.Final) {
	tctx := rulebook.TemplateContext{Event: ev, Now: timeNow()}
	if e.Global != nil && e.Global.Dispatcher != nil {
		e.Global.Dispatcher.Dispatch(ctx, final, tctx)
	}
	if e.Project != nil && e.Project.Dispatcher != nil {
		e.Project.Dispatcher.Dispatch(ctx, final, tctx)
	}
}

func (e *Engine) respond(ctx context.Context, ev *event.Event, final decision.Final, globalSet, projectSet *decision.Set) Result {
	e.Telemetry.RecordDecision(ctx, string(final.Kind), ev.HookEventName)

	body, err := e.Adapter.FormatResponse(ev.HookEventName, final)
	if err != nil {
		// Formatting failure is itself an engine error; degrade to a
		// minimal deny the adapter cannot fail to produce twice.
		final = decision.Final{Kind: decision.KindDeny, PrimaryReason: "engine error: response formatting failed"}
		body, _ = e.Adapter.FormatResponse(ev.HookEventName, final)
		e.recordAudit(ev, "", final)
		return Result{Response: body, ExitCode: 0, Final: final, Event: ev}
	}

	e.recordAudit(ev, "", final)
	return Result{Response: body, ExitCode: 0, Final: final, Event: ev}
}

// failClosed converts any pre-evaluation or evaluation failure into a
// deny response, per §7's propagation rule: every error that reaches the
// response path becomes a deny envelope, never a panic or a bare stderr
// crash. These are §7 items 1/2/7 — all exit 0: the host still reads a
// coherent deny on stdout rather than branching into crash handling.
func (e *Engine) failClosed(ctx context.Context, ev *event.Event, eventKind, reason string) Result {
	final := decision.Final{
		Kind:          decision.KindDeny,
		PrimaryReason: reason,
		Severity:      decision.SeverityCritical,
	}
	e.Telemetry.RecordDecision(ctx, string(final.Kind), eventKind)

	// Route through the configured adapter even when no event parsed
	// (e.g. a malformed-event failure), so a non-Claude host still gets
	// its own envelope shape rather than a hardcoded fallback.
	body, err := e.Adapter.FormatResponse(eventKind, final)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"hookSpecificOutput":{"permissionDecision":"deny","permissionDecisionReason":%q}}`, reason))
	}
	e.recordAudit(ev, eventKind, final)
	return Result{Response: body, ExitCode: 0, Final: final, Event: ev}
}

func (e *Engine) recordAudit(ev *event.Event, eventKind string, final decision.Final) {
	entry := audit.Entry{
		EventKind: eventKind,
		RuleID:    final.PrimaryRuleID,
		Reason:    final.PrimaryReason,
		Severity:  string(final.Severity),
		Verb:      string(final.Kind),
	}
	if ev != nil {
		entry.SessionID = ev.SessionID
		if entry.EventKind == "" {
			entry.EventKind = ev.HookEventName
		}
	}
	_ = e.Audit.Record(entry)
}
