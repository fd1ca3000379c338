// Command warden is the policy-enforcement gateway's CLI entrypoint. Its
// one in-scope subcommand, "eval", reads a single hook event from stdin
// and writes the synthesized decision to stdout; everything else (trust
// management, project scaffolding, debug dumps) is a thin collaborator
// whose contract the core package satisfies but whose implementation
// lives outside this specification's scope.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/warden-run/warden/pkg/artifacts"
	"github.com/warden-run/warden/pkg/audit"
	"github.com/warden-run/warden/pkg/config"
	"github.com/warden-run/warden/pkg/engine"
	"github.com/warden-run/warden/pkg/harness"
	"github.com/warden-run/warden/pkg/sandbox"
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint, mirroring the teacher's dispatcher
// convention of separating argv handling from os.Exit.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "eval":
		return runEval(args[2:], stdin, stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	case "init", "trust", "doctor", "audit":
		fmt.Fprintf(stderr, "warden %s: not available in this build\n", args[1])
		return 2
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "warden - policy enforcement gateway for AI coding agents")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  warden eval --harness <claude|cursor|factory|opencode> [--policy-dir <path>] [--debug-files] [--debug-dir <path>] [--log-level <level>]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  warden help")
}

// runEval performs the full §4.12 request lifecycle: load both scopes,
// read exactly one event from stdin, drive it through the engine, write
// exactly one response to stdout, then dispatch background actions.
func runEval(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "warden: config: %v\n", err)
		return 2
	}

	ctx := context.Background()

	compiler := sandbox.NewCompiler()
	if cfg.CompilerBinary != "" {
		compiler.BinaryPath = cfg.CompilerBinary
	}

	globalCache := newCacheOrNil(filepath.Join(cfg.GlobalDir, "cache"))
	projectCache := newCacheOrNil(filepath.Join(cfg.PolicyDir, ".warden", "cache"))

	auditLog := newAuditLogOrNoop(filepath.Join(cfg.PolicyDir, ".warden", "audit.log"))
	defer auditLog.Close() //nolint:errcheck

	// The global and project scopes use independent compiled modules,
	// caches, and trust verifiers (§3 Scope: disjoint namespaces); New
	// loads global first so a global-scope startup failure is reported
	// before any project-scope work happens.
	eng, err := engine.New(ctx, engine.Options{
		Harness:      harness.Name(cfg.Harness),
		GlobalRoot:   cfg.GlobalDir,
		ProjectRoot:  cfg.PolicyDir,
		Compiler:     compiler,
		GlobalCache:  globalCache,
		ProjectCache: projectCache,
		Audit:        auditLog,
	})
	if err != nil {
		fmt.Fprintf(stderr, "warden: startup: %v\n", err)
		return 1
	}
	defer eng.Close(ctx)

	raw, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "warden: read stdin: %v\n", err)
		raw = nil
	}

	result := eng.Run(ctx, raw)

	if _, err := stdout.Write(result.Response); err != nil {
		fmt.Fprintf(stderr, "warden: write response: %v\n", err)
		return 1
	}

	// §4.12/§9: the process may exit immediately after writing the
	// response; actions run in a background goroutine and are awaited
	// only for a short grace period, so they are best-effort and their
	// completion never gates the exit code below.
	if result.Event != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			eng.DispatchActions(ctx, result.Event, result.Final)
		}()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return result.ExitCode
}

func newCacheOrNil(dir string) *sandbox.Cache {
	store, err := artifacts.NewFileStore(dir)
	if err != nil {
		return nil
	}
	return sandbox.NewCache(store)
}

func newAuditLogOrNoop(path string) audit.Log {
	if path == "" {
		return audit.NoopLog{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return audit.NoopLog{}
	}
	log, err := audit.NewFileLog(path)
	if err != nil {
		return audit.NoopLog{}
	}
	return log
}
