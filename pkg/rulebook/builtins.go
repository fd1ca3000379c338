package rulebook

import (
	"fmt"
	"strings"
)

// Builtin names the pre-authored rule templates the expander knows how
// to emit, matching §4.11's enumerated corpus.
const (
	BuiltinGitBlockNoVerify          = "git_block_no_verify"
	BuiltinProtectedPaths            = "protected_paths"
	BuiltinSystemProtection          = "system_protection"
	BuiltinSensitiveDataProtection   = "sensitive_data_protection"
	BuiltinSelfExecProtection        = "self_exec_protection"
	BuiltinGlobalFileLock            = "global_file_lock"
	BuiltinGitPreCheck               = "git_pre_check"
	BuiltinPostEditCheck              = "post_edit_check"
	BuiltinEnforceFullFileRead       = "enforce_full_file_read"
	BuiltinAlwaysInjectOnPrompt      = "always_inject_on_prompt"
	BuiltinRulebookSecurityGuardrails = "rulebook_security_guardrails"
)

// SyntheticRule is one generated rule source file to merge into the
// scope's policy root before compilation.
type SyntheticRule struct {
	Filename string
	Source   string
}

// ExpandBuiltins walks the rulebook's builtins section and emits one
// synthetic rule source file per enabled builtin. Parameters (protected
// paths, forbidden flags, etc.) are injected as literal data in the
// generated rule body.
func ExpandBuiltins(rb *Rulebook) ([]SyntheticRule, error) {
	var out []SyntheticRule
	for name, params := range rb.Builtins {
		enabled, _ := params["enabled"].(bool)
		if !enabled {
			continue
		}
		rule, err := expandOne(name, params)
		if err != nil {
			return nil, fmt.Errorf("rulebook: builtin %q: %w", name, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func expandOne(name string, params map[string]any) (SyntheticRule, error) {
	switch name {
	case BuiltinGitBlockNoVerify:
		return SyntheticRule{
			Filename: "builtin_git_block_no_verify.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Bash"}, "CRITICAL", "BUILTIN-GIT-NO-VERIFY") +
				`deny contains d if {
	input.tool_input.command
	regex.match("git\\s+.*--no-verify", input.tool_input.command)
	d := {"reason": "git commits with --no-verify are blocked", "severity": "CRITICAL", "rule_id": "BUILTIN-GIT-NO-VERIFY"}
}
`,
		}, nil

	case BuiltinProtectedPaths:
		paths := stringList(params["paths"])
		return SyntheticRule{
			Filename: "builtin_protected_paths.gen.rego",
			Source: header(name, []string{"PreToolUse"}, nil, "HIGH", "BUILTIN-PROTECTED-PATHS") +
				fmt.Sprintf("protected_paths := %s\n", toRegoArray(paths)) +
				`deny contains d if {
	some p in protected_paths
	startswith(input.file_path, p)
	d := {"reason": sprintf("path %v is protected", [input.file_path]), "severity": "HIGH", "rule_id": "BUILTIN-PROTECTED-PATHS"}
}
`,
		}, nil

	case BuiltinSystemProtection:
		dirs := stringList(params["directories"])
		return SyntheticRule{
			Filename: "builtin_system_protection.gen.rego",
			Source: header(name, []string{"PreToolUse"}, nil, "CRITICAL", "BUILTIN-SYSTEM-PROTECTION") +
				fmt.Sprintf("system_dirs := %s\n", toRegoArray(dirs)) +
				`halt contains d if {
	some p in system_dirs
	startswith(input.file_path, p)
	d := {"reason": sprintf("modification of system directory %v is forbidden", [p]), "severity": "CRITICAL", "rule_id": "BUILTIN-SYSTEM-PROTECTION"}
}
`,
		}, nil

	case BuiltinSensitiveDataProtection:
		patterns := stringList(params["patterns"])
		if len(patterns) == 0 {
			patterns = []string{`\.env$`, `id_rsa$`, `\.pem$`, `credentials\.json$`}
		}
		return SyntheticRule{
			Filename: "builtin_sensitive_data_protection.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Read"}, "HIGH", "BUILTIN-SENSITIVE-DATA") +
				fmt.Sprintf("sensitive_patterns := %s\n", toRegoArray(patterns)) +
				`deny contains d if {
	some p in sensitive_patterns
	regex.match(p, input.file_path)
	d := {"reason": "reading credential-like files is blocked", "severity": "HIGH", "rule_id": "BUILTIN-SENSITIVE-DATA"}
}
`,
		}, nil

	case BuiltinSelfExecProtection:
		binary, _ := params["binary_name"].(string)
		if binary == "" {
			binary = "warden"
		}
		return SyntheticRule{
			Filename: "builtin_self_exec_protection.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Bash"}, "CRITICAL", "BUILTIN-SELF-EXEC") +
				fmt.Sprintf("binary_name := %q\n", binary) +
				`halt contains d if {
	contains(input.tool_input.command, binary_name)
	d := {"reason": "invoking the policy engine binary from within a managed shell is forbidden", "severity": "CRITICAL", "rule_id": "BUILTIN-SELF-EXEC"}
}
`,
		}, nil

	case BuiltinGlobalFileLock:
		return SyntheticRule{
			Filename: "builtin_global_file_lock.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Edit", "Write"}, "HIGH", "BUILTIN-GLOBAL-LOCK") +
				`deny contains d if {
	d := {"reason": "file modifications are locked by operator policy", "severity": "HIGH", "rule_id": "BUILTIN-GLOBAL-LOCK"}
}
`,
		}, nil

	case BuiltinGitPreCheck, BuiltinPostEditCheck:
		signal, _ := params["signal"].(string)
		id := "BUILTIN-GIT-PRE-CHECK"
		events := []string{"PreToolUse"}
		if name == BuiltinPostEditCheck {
			id = "BUILTIN-POST-EDIT-CHECK"
			events = []string{"PostToolUse"}
		}
		return SyntheticRule{
			Filename: fmt.Sprintf("builtin_%s.gen.rego", name),
			Source: header(name, events, nil, "MEDIUM", id) +
				fmt.Sprintf(`deny contains d if {
	not input.signals["%s"].success
	d := {"reason": "validator %s reported failure", "severity": "MEDIUM", "rule_id": %q}
}
`, signal, signal, id),
		}, nil

	case BuiltinEnforceFullFileRead:
		lineLimit := 0
		if v, ok := params["line_limit"].(int); ok {
			lineLimit = v
		}
		return SyntheticRule{
			Filename: "builtin_enforce_full_file_read.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Read"}, "LOW", "BUILTIN-FULL-FILE-READ") +
				fmt.Sprintf("line_limit := %d\n", lineLimit) +
				`deny contains d if {
	input.tool_input.limit
	input.tool_input.limit < line_limit
	d := {"reason": "partial reads below the configured line limit are blocked", "severity": "LOW", "rule_id": "BUILTIN-FULL-FILE-READ"}
}
`,
		}, nil

	case BuiltinAlwaysInjectOnPrompt:
		msg, _ := params["message"].(string)
		return SyntheticRule{
			Filename: "builtin_always_inject_on_prompt.gen.rego",
			Source: header(name, []string{"UserPromptSubmit"}, nil, "LOW", "BUILTIN-INJECT-PROMPT") +
				fmt.Sprintf(`add_context contains d if {
	d := {"reason": %q, "severity": "LOW", "rule_id": "BUILTIN-INJECT-PROMPT"}
}
`, msg),
		}, nil

	case BuiltinRulebookSecurityGuardrails:
		configDir, _ := params["config_dir"].(string)
		return SyntheticRule{
			Filename: "builtin_rulebook_security_guardrails.gen.rego",
			Source: header(name, []string{"PreToolUse"}, []string{"Edit", "Write"}, "CRITICAL", "BUILTIN-RULEBOOK-GUARD") +
				fmt.Sprintf("config_dir := %q\n", configDir) +
				`deny contains d if {
	startswith(input.file_path, config_dir)
	d := {"reason": "writes under the engine's own configuration directory are blocked", "severity": "CRITICAL", "rule_id": "BUILTIN-RULEBOOK-GUARD"}
}
`,
		}, nil
	}

	return SyntheticRule{}, fmt.Errorf("unknown builtin %q", name)
}

func header(name string, events, tools []string, severity, id string) string {
	var b strings.Builder
	b.WriteString("# METADATA\n")
	b.WriteString("# scope: package\n")
	b.WriteString(fmt.Sprintf("# title: builtin %s\n", name))
	b.WriteString("# routing:\n")
	b.WriteString(fmt.Sprintf("#   required_events: %s\n", toYAMLList(events)))
	if len(tools) > 0 {
		b.WriteString(fmt.Sprintf("#   required_tools: %s\n", toYAMLList(tools)))
	}
	b.WriteString("# custom:\n")
	b.WriteString(fmt.Sprintf("#   severity: %s\n", severity))
	b.WriteString(fmt.Sprintf("#   id: %s\n", id))
	b.WriteString(fmt.Sprintf("package builtin_%s\n\n", name))
	return b.String()
}

func toYAMLList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func toRegoArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
