// Package sandbox hosts the compile-once, evaluate-many-times pipeline
// for one scope's rule corpus: an external compiler binary turns rule
// source into a single WebAssembly module with one aggregation
// entrypoint, which this package then instantiates and calls through an
// embedded wazero runtime. The VM has no filesystem, network, or syscall
// access beyond what WASI preview 1 exposes for clock/random, matching
// the "opaque dependency" design note: compile(sources) -> module,
// instantiate(module) -> instance, call(instance, input) -> output.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// defaultCompilerBinary is the well-known PATH name the compile phase
// looks for unless the caller overrides it (§4.5).
const defaultCompilerBinary = "warden-rulec"

// SourceFile is one rule source file (including builtin-synthesized
// ones) handed to the compiler.
type SourceFile struct {
	Path    string
	Content []byte
}

// Hash returns this file's content hash (SHA-256 of Content, hex). The
// compile-cache key is CombinedHash, which hashes content directly.
func (s SourceFile) Hash() string {
	sum := sha256.Sum256(s.Content)
	return hex.EncodeToString(sum[:])
}

// systemEvaluateRule is the fixed rule the engine prepends to every
// scope's corpus: it aggregates every decision verb across all compiled
// rule packages into a single DecisionSet via walk-and-collect, and is
// the module's sole exported entrypoint.
const systemEvaluateRule = `package system.evaluate

import rego.v1

decision_set := {
	"halt": [d | some pkg; d := data[pkg].halt[_]],
	"deny": [d | some pkg; d := data[pkg].deny[_]] ++ [d | some pkg; d := data[pkg].block[_]],
	"ask": [d | some pkg; d := data[pkg].ask[_]],
	"allow_override": [d | some pkg; d := data[pkg].allow_override[_]],
	"add_context": [d | some pkg; d := data[pkg].add_context[_]],
}
`

// Compiler invokes the external rule compiler.
type Compiler struct {
	// BinaryPath overrides the well-known PATH lookup, e.g. for tests
	// that stub the compiler.
	BinaryPath string
}

// NewCompiler returns a Compiler using the default PATH binary name.
func NewCompiler() *Compiler {
	return &Compiler{BinaryPath: defaultCompilerBinary}
}

// CombinedHash returns a single hash over every source file's content
// plus the fixed system-evaluate rule, in a stable (path-sorted) order.
// This is the compile-cache key: unchanged inputs never re-invoke the
// external compiler.
func CombinedHash(sources []SourceFile) string {
	sorted := append([]SourceFile{}, sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	h.Write([]byte(systemEvaluateRule))
	for _, s := range sorted {
		h.Write([]byte(s.Path))
		h.Write(s.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Compile writes the scope's rule corpus (plus the system-evaluate rule)
// to a scratch directory and invokes the external compiler to produce a
// single WebAssembly module on stdout. A non-zero exit or non-empty
// stderr-with-failure is a startup-fatal "compile error" per §4.5/§7.4;
// callers at request time instead treat an absent module as fail-closed
// deny.
func (c *Compiler) Compile(ctx context.Context, sources []SourceFile) ([]byte, error) {
	binary := c.BinaryPath
	if binary == "" {
		binary = defaultCompilerBinary
	}

	scratch, err := os.MkdirTemp("", "warden-compile-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	entrypointPath := filepath.Join(scratch, "system_evaluate.gen.rego")
	if err := os.WriteFile(entrypointPath, []byte(systemEvaluateRule), 0o644); err != nil {
		return nil, fmt.Errorf("sandbox: write entrypoint: %w", err)
	}

	for i, s := range sources {
		name := filepath.Base(s.Path)
		if name == "" || name == "." {
			name = fmt.Sprintf("rule_%d.rego", i)
		}
		if err := os.WriteFile(filepath.Join(scratch, name), s.Content, 0o644); err != nil {
			return nil, fmt.Errorf("sandbox: write rule source %s: %w", s.Path, err)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "build", "--entrypoint", "system/evaluate/decision_set", scratch)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sandbox: compile failed: %w: %s", err, stderr.String())
	}

	return stdout.Bytes(), nil
}
