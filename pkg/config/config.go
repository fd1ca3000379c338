// Package config resolves the evaluator's CLI flags and environment
// variables into a single immutable Config used to bootstrap the engine
// orchestrator.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the evaluator's resolved configuration for one process
// lifetime; nothing here changes after Load returns.
type Config struct {
	Harness string // claude|cursor|factory|opencode

	PolicyDir string // project scope root; defaults to cwd
	GlobalDir string // global scope root; defaults to the user config dir

	DebugFiles bool
	DebugDir   string

	LogLevel string

	ProjectDir string // resolved CLAUDE_PROJECT_DIR or equivalent

	// TraceComponents is the parsed WARDEN_TRACE filter (§6): "all",
	// "routing", "signals", "wasm", "synthesis", any combination.
	TraceComponents map[string]bool

	// CompilerBinary overrides the external rule compiler's PATH name.
	CompilerBinary string
}

// Load parses args (excluding argv[0]/subcommand) as the `eval` flag set
// and resolves the remaining configuration from environment variables.
func Load(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)

	harness := fs.String("harness", "", "target host: claude|cursor|factory|opencode")
	policyDir := fs.String("policy-dir", "", "project policy root (defaults to cwd)")
	debugFiles := fs.Bool("debug-files", false, "write intermediate per-request debug artifacts")
	debugDir := fs.String("debug-dir", "", "directory for debug artifacts")
	logLevel := fs.String("log-level", "", "log level override")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *harness == "" {
		return nil, fmt.Errorf("config: --harness is required")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: resolve cwd: %w", err)
	}

	resolvedPolicyDir := *policyDir
	if resolvedPolicyDir == "" {
		resolvedPolicyDir = cwd
	}

	level := *logLevel
	if level == "" {
		level = envOr("WARDEN_LOG", "info")
	}

	cfg := &Config{
		Harness:         *harness,
		PolicyDir:       resolvedPolicyDir,
		GlobalDir:       globalConfigDir(),
		DebugFiles:      *debugFiles,
		DebugDir:        *debugDir,
		LogLevel:        level,
		ProjectDir:      envOr("CLAUDE_PROJECT_DIR", cwd),
		TraceComponents: parseTrace(os.Getenv("WARDEN_TRACE")),
		CompilerBinary:  envOr("WARDEN_COMPILER", ""),
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseTrace(raw string) map[string]bool {
	set := map[string]bool{}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			set[c] = true
		}
	}
	return set
}

// globalConfigDir resolves the operator-wide configuration directory,
// platform-specific discovery being explicitly out of scope: this uses
// os.UserConfigDir with a fixed subdirectory name.
func globalConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = home
	}
	return filepath.Join(base, "warden")
}

// TraceEnabled reports whether a component's trace output should be
// emitted, honoring the "all" wildcard.
func (c *Config) TraceEnabled(component string) bool {
	return c.TraceComponents["all"] || c.TraceComponents[component]
}
