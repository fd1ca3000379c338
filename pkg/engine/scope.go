// Package engine wires every other package into the single per-process
// request lifecycle described by the orchestrator: load scopes once at
// startup, then for each request route, gather, evaluate, synthesize,
// respond, and dispatch actions in the background.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warden-run/warden/pkg/actions"
	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/metadata"
	"github.com/warden-run/warden/pkg/router"
	"github.com/warden-run/warden/pkg/rulebook"
	"github.com/warden-run/warden/pkg/sandbox"
	"github.com/warden-run/warden/pkg/signals"
	"github.com/warden-run/warden/pkg/trust"
)

// timeNow is the clock used to stamp template expansion's {{now}}
// placeholder; a package var so tests can substitute a fixed time.
var timeNow = time.Now

// policySubdir is the conventional rule-source directory under a scope
// root; rulebookFilename is the conventional rulebook path.
const (
	policySubdir     = "policies"
	rulebookFilename = "rulebook.yaml"
	manifestFilename = "trust_manifest.json"
	keyFilename      = "trust_key"
	cacheSubdir      = "cache"
)

// Scope owns one compiled sandbox module, its router, rulebook, and
// trust verifier, for the process lifetime.
type Scope struct {
	Name string // "global" or "project"
	Root string

	Rulebook *rulebook.Rulebook
	Verifier *trust.Verifier
	Router   *router.Router

	// Gatherer and Dispatcher are nil-safe zero values when the scope has
	// no rulebook (an empty scope never has signals or actions to run).
	Gatherer   *signals.Gatherer
	Dispatcher *actions.Dispatcher

	module   *sandbox.Module
	instance *sandbox.Instance
}

// LoadScope performs the full startup sequence for one scope: load (or
// skip) its rulebook, expand enabled builtins into synthetic rule
// source, discover rule files on disk, extract and validate metadata,
// build the router, load the trust manifest if one exists, and compile
// (or fetch from cache) the sandbox module.
func LoadScope(ctx context.Context, name, root string, compiler *sandbox.Compiler, cache *sandbox.Cache) (*Scope, error) {
	s := &Scope{Name: name, Root: root}

	rbPath := filepath.Join(root, rulebookFilename)
	if _, err := os.Stat(rbPath); err == nil {
		rb, err := rulebook.Load(rbPath)
		if err != nil {
			return nil, fmt.Errorf("engine: scope %s: %w", name, err)
		}
		s.Rulebook = rb
	} else {
		s.Rulebook = &rulebook.Rulebook{}
	}

	synthetic, err := rulebook.ExpandBuiltins(s.Rulebook)
	if err != nil {
		return nil, fmt.Errorf("engine: scope %s: %w", name, err)
	}

	sources, err := discoverRuleFiles(root)
	if err != nil {
		return nil, fmt.Errorf("engine: scope %s: %w", name, err)
	}
	for _, sr := range synthetic {
		sources = append(sources, sandbox.SourceFile{Path: sr.Filename, Content: []byte(sr.Source)})
	}

	rules, err := extractMetadata(sources)
	if err != nil {
		return nil, fmt.Errorf("engine: scope %s: %w", name, err)
	}
	s.Router = router.Build(rules)

	verifier, err := trust.NewVerifier(filepath.Join(root, manifestFilename), filepath.Join(root, keyFilename))
	if err != nil {
		return nil, fmt.Errorf("engine: scope %s: trust: %w", name, err)
	}
	s.Verifier = verifier

	s.Gatherer = &signals.Gatherer{Specs: s.Rulebook.Signals, Verifier: verifier}
	s.Dispatcher = &actions.Dispatcher{
		ByRuleID:    s.Rulebook.Actions.ByRuleID,
		OnAnyDenial: s.Rulebook.Actions.OnAnyDenial,
		OnHalt:      s.Rulebook.Actions.OnHalt,
		OnAnyAsk:    s.Rulebook.Actions.OnAnyAsk,
		Verifier:    verifier,
	}

	if compiler != nil {
		mod, inst, err := compileAndInstantiate(ctx, sources, compiler, cache)
		if err != nil {
			return nil, fmt.Errorf("engine: scope %s: %w", name, err)
		}
		s.module = mod
		s.instance = inst
	}

	return s, nil
}

func compileAndInstantiate(ctx context.Context, sources []sandbox.SourceFile, compiler *sandbox.Compiler, cache *sandbox.Cache) (*sandbox.Module, *sandbox.Instance, error) {
	combined := sandbox.CombinedHash(sources)

	var wasmBytes []byte
	if cache != nil {
		if cached, hit, err := cache.Get(ctx, combined); err == nil && hit {
			wasmBytes = cached
		}
	}

	if wasmBytes == nil {
		compiled, err := compiler.Compile(ctx, sources)
		if err != nil {
			return nil, nil, fmt.Errorf("compile error: %w", err)
		}
		wasmBytes = compiled
		if cache != nil {
			_ = cache.Put(ctx, combined, wasmBytes)
		}
	}

	mod, err := sandbox.Compile(ctx, wasmBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiation error: %w", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiation error: %w", err)
	}
	return mod, inst, nil
}

// Evaluate runs this scope's full per-request pipeline: route the event
// to the applicable rule set, gather the signals those rules declared
// (plus any always-gather signals), merge the results into the event,
// and invoke the sandbox entrypoint. A scope with no compiled module (one
// loaded without a compiler) returns an error, which the caller turns
// into a fail-closed deny.
func (s *Scope) Evaluate(ctx context.Context, ev *event.Event) (decision.Set, error) {
	if s.instance == nil {
		return decision.Set{}, fmt.Errorf("scope %s: no compiled sandbox module", s.Name)
	}

	_, requiredSignals := s.Router.Match(ev.HookEventName, ev.ToolName)
	names := append(append([]string{}, requiredSignals...), s.Rulebook.AlwaysGather...)

	tctx := rulebook.TemplateContext{Event: ev, Now: timeNow()}
	merged := *ev
	merged.Signals = s.Gatherer.Gather(ctx, names, tctx)

	return s.instance.Evaluate(ctx, merged)
}

// Close releases the scope's sandbox resources.
func (s *Scope) Close(ctx context.Context) {
	if s.instance != nil {
		_ = s.instance.Close(ctx)
	}
	if s.module != nil {
		_ = s.module.Close(ctx)
	}
}

func discoverRuleFiles(root string) ([]sandbox.SourceFile, error) {
	dir := filepath.Join(root, policySubdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy dir %s: %w", dir, err)
	}

	var out []sandbox.SourceFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule %s: %w", path, err)
		}
		out = append(out, sandbox.SourceFile{Path: path, Content: data})
	}
	return out, nil
}

func extractMetadata(sources []sandbox.SourceFile) ([]*metadata.Rule, error) {
	var rules []*metadata.Rule
	for _, s := range sources {
		rule, err := metadata.Extract(s.Path, s.Content)
		if err != nil {
			if err == metadata.ErrNoMetadata {
				continue
			}
			return nil, err
		}
		if err := rule.Validate(); err != nil {
			// Per §4.4: missing routing directive excludes the rule from
			// the router but the rule still compiles into the sandbox.
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
