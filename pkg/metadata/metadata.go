// Package metadata extracts routing directives from the structured
// comment block at the top of each rule source file.
//
// The block is a YAML-in-comment convention: lines are scanned until the
// first line of the exact form "# METADATA", which begins the block; the
// comment lines after it, up to the first non-comment line, are stripped
// of their leading "#", concatenated, and parsed as one YAML document.
package metadata

import (
	"bufio"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope is either "rule" or "package" per §3.
type Scope string

const (
	ScopeRule    Scope = "rule"
	ScopePackage Scope = "package"
)

// Routing holds the directives that place a rule in the router.
type Routing struct {
	RequiredEvents []string `yaml:"required_events"`
	RequiredTools  []string `yaml:"required_tools,omitempty"`
	RequiredSignals []string `yaml:"required_signals,omitempty"`
}

// Custom carries the two propagated-through-decisions fields.
type Custom struct {
	Severity string `yaml:"severity,omitempty"`
	ID       string `yaml:"id,omitempty"`
}

// Rule is the parsed METADATA block for one source file.
type Rule struct {
	Scope       Scope    `yaml:"scope"`
	Title       string   `yaml:"title,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
	Routing     Routing  `yaml:"routing"`
	Custom      Custom   `yaml:"custom,omitempty"`

	// SourcePath is populated by the caller, not parsed from the block.
	SourcePath string `yaml:"-"`
}

// ParseError names the file, line, and underlying YAML error, per §4.4's
// requirement that parse failures be actionable.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("metadata: %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const blockMarker = "# METADATA"

// Extract scans source (the full rule file content) for the METADATA
// comment block and parses it. path is used only for error messages.
//
// ErrNoMetadata is returned (not wrapped) when no block is present; the
// caller decides whether that's fatal (non-system package missing a
// routing directive).
func Extract(path string, source []byte) (*Rule, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(source)))
	var block []string
	inBlock := false
	lineNo := 0
	blockStartLine := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inBlock {
			if trimmed == blockMarker {
				inBlock = true
				blockStartLine = lineNo
			}
			continue
		}

		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		content := strings.TrimPrefix(trimmed, "#")
		content = strings.TrimPrefix(content, " ")
		block = append(block, content)
	}

	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Path: path, Line: lineNo, Err: err}
	}
	if !inBlock {
		return nil, ErrNoMetadata
	}

	var rule Rule
	if err := yaml.Unmarshal([]byte(strings.Join(block, "\n")), &rule); err != nil {
		return nil, &ParseError{Path: path, Line: blockStartLine, Err: err}
	}
	rule.SourcePath = path
	return &rule, nil
}

// ErrNoMetadata sentinels the absence of a METADATA block entirely.
var ErrNoMetadata = fmt.Errorf("metadata: no METADATA block found")

// Validate enforces the invariant that every non-system rule package
// declares at least one required event.
func (r *Rule) Validate() error {
	if r.Scope == ScopePackage || r.Scope == ScopeRule {
		if len(r.Routing.RequiredEvents) == 0 {
			return fmt.Errorf("metadata: %s: missing routing.required_events", r.SourcePath)
		}
	}
	return nil
}
