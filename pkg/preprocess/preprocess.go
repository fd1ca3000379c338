// Package preprocess implements the deterministic, pure normalization
// pass run between an adapter's ParseEvent and routing: tool-name
// casing, field renaming, shell whitespace collapsing, and path
// canonicalization with symlink-escape rejection.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/warden-run/warden/pkg/event"
)

// Error wraps a preprocessing failure. Per §4.2/§7.2, a preprocessing
// error is fail-closed (deny) when trust is enabled, else allow-with-
// warning; the caller (engine orchestrator) decides which.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "preprocess: " + e.Reason }

var toolNameAliases = map[string]string{
	"bash":  "Bash",
	"read":  "Read",
	"write": "Write",
	"edit":  "Edit",
	"grep":  "Grep",
	"glob":  "Glob",
}

// shellToolNames lists tools whose tool_input.command field gets
// whitespace normalization, defeating bypasses like "rm  -rf  /".
var shellToolNames = map[string]bool{"Bash": true}

// Run applies all preprocessing steps to ev in place and returns it.
// root is the declared working-directory root; any absolute path field
// that resolves outside root is rejected unless allowEscape is true
// (rule sets may explicitly permit it).
func Run(ev *event.Event, root string, allowEscape bool) (*event.Event, error) {
	ev.ToolName = normalizeToolName(ev.ToolName)
	ev.Prompt = norm.NFC.String(ev.Prompt)

	if ev.ToolInput != nil {
		if args, ok := ev.ToolInput["args"]; ok {
			if _, hasToolInput := ev.ToolInput["tool_input"]; !hasToolInput {
				ev.ToolInput["tool_input"] = args
			}
		}

		if shellToolNames[ev.ToolName] {
			if cmd, ok := ev.ToolInput["command"].(string); ok {
				// NFC-normalize before collapsing whitespace: a bypass attempt
				// can use visually-identical combining-character sequences
				// that only fold to the same rule-matchable string once
				// normalized, e.g. "rm -rf /" built from decomposed code points.
				ev.ToolInput["command"] = collapseWhitespace(norm.NFC.String(cmd))
			}
		}
	}

	for _, field := range []*string{&ev.CWD, &ev.FilePath} {
		if *field == "" || !filepath.IsAbs(*field) {
			continue
		}
		canon, err := canonicalizePath(*field, root, allowEscape)
		if err != nil {
			return nil, &Error{Reason: err.Error()}
		}
		*field = canon
	}

	return ev, nil
}

func normalizeToolName(name string) string {
	if canonical, ok := toolNameAliases[name]; ok {
		return canonical
	}
	return name
}

// collapseWhitespace collapses runs of unquoted whitespace in a shell
// command string, leaving whitespace inside single or double quotes
// untouched.
func collapseWhitespace(cmd string) string {
	var b strings.Builder
	inSingle, inDouble := false, false
	runStart := -1

	flushRun := func(i int) {
		if runStart >= 0 {
			b.WriteByte(' ')
			runStart = -1
		}
		_ = i
	}

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case c == '\'' && !inDouble:
			flushRun(i)
			inSingle = !inSingle
			b.WriteByte(c)
		case c == '"' && !inSingle:
			flushRun(i)
			inDouble = !inDouble
			b.WriteByte(c)
		case (c == ' ' || c == '\t') && !inSingle && !inDouble:
			if runStart < 0 {
				runStart = i
			}
		default:
			flushRun(i)
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// canonicalizePath resolves ".." segments and symlinks and rejects the
// result if it escapes root, unless allowEscape is set. A symlink
// planted inside an allowed root but pointing outside it is exactly the
// bypass this step exists to defeat (§4.2 item 4), so any existing
// prefix of path is resolved with filepath.EvalSymlinks before the
// root-escape check; a path that does not exist yet (e.g. a file about
// to be created) falls back to resolving its nearest existing ancestor
// and reattaching the rest lexically, since EvalSymlinks itself requires
// the target to exist.
func canonicalizePath(path, root string, allowEscape bool) (string, error) {
	clean := filepath.Clean(path)

	resolved, err := resolveSymlinks(clean)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks in %q: %w", clean, err)
	}

	if root == "" || allowEscape {
		return resolved, nil
	}

	canonicalRoot, err := resolveSymlinks(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolving symlinks in root %q: %w", root, err)
	}

	rel, err := filepath.Rel(canonicalRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("cannot relate %q to root %q: %w", resolved, canonicalRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes declared root %q", resolved, canonicalRoot)
	}
	return resolved, nil
}

// resolveSymlinks resolves path through filepath.EvalSymlinks. If path
// does not exist (common for a file about to be created), it walks up
// to the nearest existing ancestor, resolves that, and reattaches the
// remaining (not-yet-created) suffix lexically.
func resolveSymlinks(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	if parent == path {
		// Reached the filesystem root without finding an existing
		// ancestor; nothing left to resolve.
		return path, nil
	}

	resolvedParent, err := resolveSymlinks(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}
