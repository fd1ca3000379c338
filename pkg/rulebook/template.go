package rulebook

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/warden-run/warden/pkg/event"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// TemplateContext supplies the values resolvable by {{...}} placeholders.
type TemplateContext struct {
	Event   *event.Event
	Matches []string // regex captures from the triggering condition, match.<N>
	Now     time.Time
}

// Expand resolves every {{...}} placeholder in s. Unknown placeholders
// expand to the empty string rather than erroring, mirroring a
// best-effort feedback-message templating engine; callers that need
// strict failure (command paths) must call ValidateNoPlaceholders first.
func Expand(s string, ctx TemplateContext) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(m)[1])
		return resolve(key, ctx)
	})
}

func resolve(key string, ctx TemplateContext) string {
	switch {
	case key == "tool_name":
		if ctx.Event != nil {
			return ctx.Event.ToolName
		}
	case key == "session_id":
		if ctx.Event != nil {
			return ctx.Event.SessionID
		}
	case key == "now":
		return ctx.Now.Format(time.RFC3339)
	case strings.HasPrefix(key, "tool_input."):
		field := strings.TrimPrefix(key, "tool_input.")
		if ctx.Event != nil && ctx.Event.ToolInput != nil {
			if v, ok := ctx.Event.ToolInput[field]; ok {
				return fmt.Sprintf("%v", v)
			}
		}
	case strings.HasPrefix(key, "env."):
		return os.Getenv(strings.TrimPrefix(key, "env."))
	case strings.HasPrefix(key, "match."):
		idxStr := strings.TrimPrefix(key, "match.")
		if idx, err := strconv.Atoi(idxStr); err == nil && idx >= 0 && idx < len(ctx.Matches) {
			return ctx.Matches[idx]
		}
	}
	return ""
}

// ValidateNoPlaceholders rejects any string containing a {{...}}
// placeholder. Used at spec-parse time for command argv[0] / paths, per
// §6 and §9: template expansion in command paths is forbidden and must
// fail parsing, not execution.
func ValidateNoPlaceholders(s string) error {
	if placeholderRe.MatchString(s) {
		return fmt.Errorf("rulebook: template placeholders forbidden in command path: %q", s)
	}
	return nil
}

// ValidateSpecPaths checks every path-like field of a CommandSpec
// (argv0, working dir, redirect targets) for forbidden placeholders.
func ValidateSpecPaths(spec CommandSpec) error {
	if len(spec.Command) > 0 {
		if err := ValidateNoPlaceholders(spec.Command[0]); err != nil {
			return err
		}
	}
	if spec.WorkingDir != "" {
		if err := ValidateNoPlaceholders(spec.WorkingDir); err != nil {
			return err
		}
	}
	if spec.RedirectStdout != "" {
		if err := ValidateNoPlaceholders(spec.RedirectStdout); err != nil {
			return err
		}
	}
	if spec.RedirectStderr != "" {
		if err := ValidateNoPlaceholders(spec.RedirectStderr); err != nil {
			return err
		}
	}
	for _, p := range spec.Pipe {
		if err := ValidateSpecPaths(p); err != nil {
			return err
		}
	}
	return nil
}
