// Package guard evaluates CEL boolean expressions against a computed
// decision, gating whether an action fires. A rulebook action's `when`
// field is free-form CEL rather than another rego rule: actions are a
// side-effect dispatch problem, not a policy problem, so they get a
// small expression language instead of a second sandboxed rule corpus.
package guard

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is the variable surface a guard expression can reference.
type Input struct {
	Kind            string   `json:"kind"`
	Severity        string   `json:"severity"`
	PrimaryRuleID   string   `json:"primary_rule_id"`
	PrimaryReason   string   `json:"primary_reason"`
	ContributingIDs []string `json:"contributing_ids"`
}

var env = mustNewEnv()

func mustNewEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("primary_rule_id", cel.StringType),
		cel.Variable("primary_reason", cel.StringType),
		cel.Variable("contributing_ids", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("guard: building cel environment: %v", err))
	}
	return e
}

// Eval compiles and runs expr against in, returning whether the guard
// allows the action to fire. A compile error or a non-bool result is
// surfaced as an error; callers treat an error the same as an action
// whose command failed, logging and skipping rather than firing.
func Eval(expr string, in Input) (bool, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("guard: compile %q: %w", expr, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("guard: program %q: %w", expr, err)
	}

	contributing := make([]any, len(in.ContributingIDs))
	for i, id := range in.ContributingIDs {
		contributing[i] = id
	}

	val, _, err := prg.Eval(map[string]any{
		"kind":             in.Kind,
		"severity":         in.Severity,
		"primary_rule_id":  in.PrimaryRuleID,
		"primary_reason":   in.PrimaryReason,
		"contributing_ids": contributing,
	})
	if err != nil {
		return false, fmt.Errorf("guard: eval %q: %w", expr, err)
	}

	result, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard: expression %q did not evaluate to bool", expr)
	}
	return result, nil
}
