// Package rulebook parses the structured configuration document that
// declares signals, actions, and builtin toggles, and expands enabled
// builtins into synthetic rule source injected into the corpus before
// compilation.
package rulebook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/warden-run/warden/pkg/trust"
)

// Mode names how a CommandSpec's argv is obtained.
type Mode string

const (
	ModeArray  Mode = "array"
	ModeString Mode = "string"
	ModeShell  Mode = "shell"
)

// CommandSpec is the parsed, mode-agnostic intermediate representation
// for both signals and actions. String-form specs are parsed down into
// this same shape at load time (their text is Raw or, when Raw is empty,
// Command and Args joined with spaces); shell-form specs carry
// Mode "shell" and require AllowShell.
type CommandSpec struct {
	Mode    Mode              `yaml:"mode,omitempty" json:"mode,omitempty"`
	Command []string          `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     []string          `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDir string         `yaml:"workingDir,omitempty" json:"workingDir,omitempty"`

	RedirectStdout string `yaml:"redirectStdout,omitempty" json:"redirectStdout,omitempty"`
	AppendStdout   bool   `yaml:"appendStdout,omitempty" json:"appendStdout,omitempty"`
	RedirectStderr string `yaml:"redirectStderr,omitempty" json:"redirectStderr,omitempty"`
	MergeStderr    bool   `yaml:"mergeStderr,omitempty" json:"mergeStderr,omitempty"`

	Pipe      []CommandSpec `yaml:"pipe,omitempty" json:"pipe,omitempty"`
	OnSuccess []CommandSpec `yaml:"onSuccess,omitempty" json:"onSuccess,omitempty"`
	OnFailure []CommandSpec `yaml:"onFailure,omitempty" json:"onFailure,omitempty"`

	AllowShell bool   `yaml:"allow_shell,omitempty" json:"allow_shell,omitempty"`
	Raw        string `yaml:"-" json:"-"` // original string-form or shell-form text

	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// When is an optional CEL expression (see pkg/guard) gating whether
	// this spec fires at all; an action whose When evaluates false is
	// skipped silently, the same as if it hadn't matched.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Argv returns the full argv0+args slice for direct spawning.
func (c CommandSpec) Argv() []string {
	return append(append([]string{}, c.Command...), c.Args...)
}

// interpreterBinaries names the program binaries recognized for the
// "interpreter + script" trust-reference shape (§3/§6): a spec like
// {command: ["python3"], args: ["check.py"]} must be trust-hashed on
// check.py, not python3, or editing check.py after manifest init would
// never trip script_modified (I4).
var interpreterBinaries = map[string]bool{
	"python3": true, "python": true, "python2": true,
	"bash": true, "sh": true, "zsh": true,
	"node": true, "nodejs": true,
	"ruby": true, "perl": true,
}

// TrustReference builds the reference this spec should be verified and
// hashed under: an interpreter invocation hashes its script argument,
// not the interpreter binary; everything else hashes argv[0] directly,
// falling back to the spec's own raw text for the empty-argv case.
func (c CommandSpec) TrustReference() trust.Reference {
	if len(c.Command) == 1 && interpreterBinaries[filepath.Base(c.Command[0])] && len(c.Args) > 0 && !strings.HasPrefix(c.Args[0], "-") {
		return trust.Reference{Interpreter: c.Command[0], FilePath: c.Args[0], Args: c.Args[1:]}
	}

	argv := c.Argv()
	if len(argv) == 0 {
		return trust.Reference{Inline: c.Raw}
	}
	return trust.Reference{FilePath: argv[0]}
}

// forbiddenStringTokens are rejected in string-form parsing, per §6:
// command substitution, backticks, input redirection, and globs.
var forbiddenStringTokens = []string{"$(", "`", "<", "*", "?", "["}

// ParseStringForm parses the restricted shell-like string syntax into
// array-form IR. It is a deliberately small tokenizer: whitespace-split
// with double-quote support, no variable expansion, no globbing.
func ParseStringForm(s string) (CommandSpec, error) {
	for _, tok := range forbiddenStringTokens {
		if strings.Contains(s, tok) {
			return CommandSpec{}, fmt.Errorf("rulebook: string-form command contains forbidden token %q", tok)
		}
	}

	argv, err := tokenize(s)
	if err != nil {
		return CommandSpec{}, err
	}
	if len(argv) == 0 {
		return CommandSpec{}, fmt.Errorf("rulebook: empty string-form command")
	}

	return CommandSpec{Mode: ModeArray, Command: argv[:1], Args: argv[1:], Raw: s}, nil
}

func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	hasCur := false

	flush := func() {
		if hasCur {
			tokens = append(tokens, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			hasCur = true
		case c == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("rulebook: unterminated quote in command %q", s)
	}
	flush()
	return tokens, nil
}
