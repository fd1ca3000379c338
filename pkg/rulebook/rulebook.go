package rulebook

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// supportedSchemaVersions constrains the rulebook document's optional
// schema_version field. A rulebook predating schema_version (the field
// is empty) is accepted as version "1.0.0" for backward compatibility.
var supportedSchemaVersions = mustConstraint("<2.0.0")

func mustConstraint(c string) *semver.Constraints {
	parsed, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("rulebook: invalid built-in version constraint %q: %v", c, err))
	}
	return parsed
}

// Actions is the rulebook's action-indexing section.
type Actions struct {
	ByRuleID   map[string]CommandSpec `yaml:"by_rule_id,omitempty"`
	OnAnyDenial []CommandSpec         `yaml:"on_any_denial,omitempty"`
	OnHalt      []CommandSpec         `yaml:"on_halt,omitempty"`
	OnAnyAsk    []CommandSpec         `yaml:"on_any_ask,omitempty"`
}

// Watchdog is parsed but inert: the LLM-evaluator toggle is out of scope
// for the evaluation core (§6).
type Watchdog struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// Rulebook is the top-level structured configuration document.
type Rulebook struct {
	SchemaVersion string                    `yaml:"schema_version,omitempty"`
	Signals       map[string]CommandSpec    `yaml:"signals,omitempty"`
	Actions       Actions                   `yaml:"actions,omitempty"`
	Builtins      map[string]map[string]any `yaml:"builtins,omitempty"`
	Watchdog      Watchdog                  `yaml:"watchdog,omitempty"`

	// AlwaysGather names signals marked as always-gathered regardless of
	// routing matches (§4.7).
	AlwaysGather []string `yaml:"always_gather,omitempty"`
}

// commandSpecSchemaJSON constrains the shape of a parsed YAML command-spec
// node once normalized to JSON, catching malformed rulebooks at load
// time instead of at first execution.
const commandSpecSchemaJSON = `{
  "type": "object",
  "properties": {
    "command": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "mode": {"type": "string", "enum": ["array", "string", "shell"]}
  }
}`

var compiledCommandSpecSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://warden.internal/schema/commandspec.json"
	if err := c.AddResource(url, strings.NewReader(commandSpecSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile(url)
}

// Load reads and validates the rulebook YAML at path. Signals and
// actions declared in string form are normalized to array-form IR and
// every resulting spec is schema-validated and path-validated before
// being handed back, so a malformed rulebook fails at startup (§7.3)
// rather than at first signal execution.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rulebook: read %s: %w", path, err)
	}

	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("rulebook: parse %s: %w", path, err)
	}

	if err := validateSchemaVersion(rb.SchemaVersion); err != nil {
		return nil, fmt.Errorf("rulebook: %s: %w", path, err)
	}

	for name, spec := range rb.Signals {
		normalized, err := normalizeSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("rulebook: signal %q: %w", name, err)
		}
		rb.Signals[name] = normalized
	}

	for id, spec := range rb.Actions.ByRuleID {
		normalized, err := normalizeSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("rulebook: action %q: %w", id, err)
		}
		rb.Actions.ByRuleID[id] = normalized
	}
	for _, list := range [][]CommandSpec{rb.Actions.OnAnyDenial, rb.Actions.OnHalt, rb.Actions.OnAnyAsk} {
		for i, spec := range list {
			normalized, err := normalizeSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("rulebook: action: %w", err)
			}
			list[i] = normalized
		}
	}

	return &rb, nil
}

func validateSchemaVersion(raw string) error {
	if raw == "" {
		return nil
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", raw, err)
	}
	if !supportedSchemaVersions.Check(v) {
		return fmt.Errorf("schema_version %q not supported by this build (requires %s)", raw, supportedSchemaVersions.String())
	}
	return nil
}

func normalizeSpec(spec CommandSpec) (CommandSpec, error) {
	if spec.Mode == ModeString {
		raw := spec.Raw
		if raw == "" {
			raw = strings.Join(spec.Argv(), " ")
		}
		parsed, err := ParseStringForm(raw)
		if err != nil {
			return CommandSpec{}, err
		}
		parsed.TimeoutSeconds = spec.TimeoutSeconds
		spec = parsed
	}

	if spec.Mode == ModeShell {
		if !spec.AllowShell {
			return CommandSpec{}, fmt.Errorf("shell-form command requires allow_shell: true")
		}
		return spec, nil // shell form bypasses argv-path validation deliberately
	}

	if err := ValidateSpecPaths(spec); err != nil {
		return CommandSpec{}, err
	}

	// Schema-validate the array-form shape (non-shell only: shell form's
	// argv is a single opaque string handed to the shell).
	asMap := map[string]any{"command": spec.Command}
	if err := compiledCommandSpecSchema.Validate(asMap); err != nil {
		return CommandSpec{}, fmt.Errorf("schema validation: %w", err)
	}

	return spec, nil
}
