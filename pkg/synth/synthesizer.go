// Package synth implements the pure cross-scope decision synthesizer
// described in the engine's verb-priority model: halt > deny/block > ask >
// allow_override > add_context > implicit allow, with the global scope
// always breaking ties ahead of the project scope within a single pass.
//
// Synthesize takes no dependencies and performs no I/O, matching the
// enforcement kernel's convention of keeping priority arbitration in an
// isolated, independently unit-testable function.
package synth

import "github.com/warden-run/warden/pkg/decision"

// Synthesize merges the global and project decision sets (either may be
// nil, meaning that scope did not run or does not exist) into one
// FinalDecision following §4.9's six passes.
func Synthesize(global, project *decision.Set) decision.Final {
	g := orEmpty(global)
	p := orEmpty(project)

	// Pass 1: halt. Global first, so a global halt's reason always wins
	// over a project halt when both fire.
	if halts := append(append([]decision.Decision{}, g.Halt...), p.Halt...); len(halts) > 0 {
		first := g.Halt
		if len(first) == 0 {
			first = p.Halt
		}
		return decision.Final{
			Kind:            decision.KindHalt,
			PrimaryReason:   first[0].Reason,
			PrimaryRuleID:   first[0].RuleID,
			Severity:        maxSeverity(halts),
			ContributingIDs: ruleIDs(halts),
		}
	}

	// Pass 2: deny/block, pooled.
	if denies := append(append([]decision.Decision{}, g.Deny...), p.Deny...); len(denies) > 0 {
		first := g.Deny
		if len(first) == 0 {
			first = p.Deny
		}
		ctx := collectContext(g, p)
		return decision.Final{
			Kind:            decision.KindDeny,
			PrimaryReason:   first[0].Reason,
			PrimaryRuleID:   first[0].RuleID,
			PrimaryContext:  first[0].AgentContext,
			Context:         ctx,
			Severity:        maxSeverity(denies),
			ContributingIDs: ruleIDs(denies),
		}
	}

	// Pass 3: ask.
	if asks := append(append([]decision.Decision{}, g.Ask...), p.Ask...); len(asks) > 0 {
		first := g.Ask
		if len(first) == 0 {
			first = p.Ask
		}
		ctx := collectContext(g, p)
		return decision.Final{
			Kind:            decision.KindAsk,
			PrimaryReason:   first[0].Reason,
			PrimaryRuleID:   first[0].RuleID,
			Question:        first[0].Question,
			Context:         ctx,
			Severity:        maxSeverity(asks),
			ContributingIDs: ruleIDs(asks),
		}
	}

	// Pass 4: allow_override.
	if overrides := append(append([]decision.Decision{}, g.AllowOverride...), p.AllowOverride...); len(overrides) > 0 {
		first := g.AllowOverride
		if len(first) == 0 {
			first = p.AllowOverride
		}
		ctx := collectContext(g, p)
		return decision.Final{
			Kind:            decision.KindAllow,
			PrimaryReason:   first[0].Reason,
			PrimaryRuleID:   first[0].RuleID,
			Context:         ctx,
			Severity:        maxSeverity(overrides),
			ContributingIDs: ruleIDs(overrides),
		}
	}

	// Pass 5: context-only.
	if ctx := collectContext(g, p); len(ctx) > 0 {
		return decision.Final{
			Kind:            decision.KindAllow,
			Context:         ctx,
			ContributingIDs: ruleIDs(append(append([]decision.Decision{}, g.AddContext...), p.AddContext...)),
		}
	}

	// Pass 6: default.
	return decision.Final{Kind: decision.KindAllow}
}

func orEmpty(s *decision.Set) *decision.Set {
	if s == nil {
		return &decision.Set{}
	}
	return s
}

// collectContext concatenates add_context reasons, global scope first,
// stable within each scope in collection order. Per I6, callers MUST NOT
// invoke this when a halt has already fired.
func collectContext(g, p *decision.Set) []string {
	var out []string
	for _, d := range g.AddContext {
		out = append(out, d.Reason)
	}
	for _, d := range p.AddContext {
		out = append(out, d.Reason)
	}
	return out
}

func maxSeverity(ds []decision.Decision) decision.Severity {
	best := decision.Severity("")
	bestRank := -1
	for _, d := range ds {
		if r := d.Severity.Rank(); r > bestRank {
			bestRank = r
			best = d.Severity
		}
	}
	return best
}

func ruleIDs(ds []decision.Decision) []string {
	var ids []string
	for _, d := range ds {
		ids = append(ids, d.RuleID)
	}
	return ids
}
