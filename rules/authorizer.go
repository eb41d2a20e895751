package rules

import (
	"fmt"
	"strings"
)

// Authorizer is the single decision point for moving a job between stages.
// The decision is a pure function of stage order and prerequisites; CanSkip
// is not consulted.
type Authorizer struct {
	table     *Table
	evaluator *Evaluator
}

// NewAuthorizer creates an authorizer over the given table
func NewAuthorizer(table *Table) *Authorizer {
	return &Authorizer{
		table:     table,
		evaluator: NewEvaluator(table),
	}
}

// IsForwardProgression reports whether to sits strictly after from in the table.
func (a *Authorizer) IsForwardProgression(from, to Stage) bool {
	return a.table.IndexOf(to) > a.table.IndexOf(from)
}

// Authorize decides whether a job may move from one stage to another given
// facts. Unknown stages return ErrUnknownStage. Denials are not errors: they
// come back as a Decision with Allowed=false and a Reason.
func (a *Authorizer) Authorize(from, to Stage, facts Facts) (Decision, error) {
	if !a.table.Has(from) {
		return Decision{}, fmt.Errorf("%w: from stage %q", ErrUnknownStage, from)
	}
	if !a.table.Has(to) {
		return Decision{}, fmt.Errorf("%w: to stage %q", ErrUnknownStage, to)
	}

	// escape hatch: neither ordering nor prerequisites apply
	if a.table.IsUnrestricted(to) {
		return Decision{
			Allowed: true,
			Verdict: Verdict{CanProgress: true, Unmet: []Unmet{}},
		}, nil
	}

	if !a.IsForwardProgression(from, to) {
		return Decision{
			Allowed: false,
			Reason:  ReasonNotForward,
			Detail:  fmt.Sprintf("cannot move from %s to %s: not a forward progression", from, to),
			Verdict: Verdict{CanProgress: false, Unmet: []Unmet{}},
		}, nil
	}

	verdict, err := a.evaluator.Evaluate(to, facts)
	if err != nil {
		return Decision{}, err
	}

	if !verdict.CanProgress {
		return Decision{
			Allowed: false,
			Reason:  ReasonPrerequisitesUnmet,
			Detail:  unmetDetail(verdict.Unmet),
			Verdict: verdict,
		}, nil
	}

	return Decision{Allowed: true, Verdict: verdict}, nil
}

func unmetDetail(unmet []Unmet) string {
	msgs := make([]string, len(unmet))
	for i, u := range unmet {
		msgs[i] = u.Message
	}
	return strings.Join(msgs, "; ")
}
