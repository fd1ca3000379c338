package synth_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/synth"
)

func genDecisions(maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.AlphaString()).Map(func(reasons []string) []decision.Decision {
		out := make([]decision.Decision, len(reasons))
		for i, r := range reasons {
			out[i] = decision.Decision{Reason: r, RuleID: r}
		}
		return out
	})
}

// TestSynthesize_VerbPriorityIsMonotonic checks that for arbitrary
// accompanying lower-priority decisions, a halt always wins outright and
// a deny always outranks ask, regardless of how many other decisions
// ride along in the same scope's set.
func TestSynthesize_VerbPriorityIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("halt always wins when present anywhere", prop.ForAll(
		func(otherDeny, otherAsk []decision.Decision) bool {
			global := &decision.Set{
				Halt: []decision.Decision{{Reason: "halt", RuleID: "H"}},
				Deny: otherDeny,
				Ask:  otherAsk,
			}
			final := synth.Synthesize(global, nil)
			return final.Kind == decision.KindHalt && final.PrimaryRuleID == "H"
		},
		genDecisions(5),
		genDecisions(5),
	))

	properties.Property("deny outranks ask and bare allow when no halt present", prop.ForAll(
		func(ask []decision.Decision) bool {
			global := &decision.Set{
				Deny: []decision.Decision{{Reason: "deny", RuleID: "D"}},
				Ask:  ask,
			}
			final := synth.Synthesize(global, nil)
			return final.Kind == decision.KindDeny && final.PrimaryRuleID == "D"
		},
		genDecisions(5),
	))

	properties.TestingRun(t)
}
