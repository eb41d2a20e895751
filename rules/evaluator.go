package rules

import "fmt"

// Evaluator scores a stage's prerequisites against a fact snapshot.
// It holds only the read-only table and may be shared across goroutines.
type Evaluator struct {
	table *Table
}

// NewEvaluator creates an evaluator over the given table
func NewEvaluator(table *Table) *Evaluator {
	return &Evaluator{table: table}
}

// Evaluate checks every prerequisite of stage against facts.
// All prerequisites are evaluated, in declaration order, so the verdict lists
// every failure rather than the first. An unknown stage is a configuration
// error and returns ErrUnknownStage.
func (ev *Evaluator) Evaluate(stage Stage, facts Facts) (Verdict, error) {
	rule, ok := ev.table.RuleFor(stage)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	return evaluateRule(rule, facts), nil
}

func evaluateRule(rule StageRule, facts Facts) Verdict {
	verdict := Verdict{CanProgress: true, Unmet: []Unmet{}}

	for _, p := range rule.Prerequisites {
		if p.Check.passes(facts.Lookup(p.Field)) {
			continue
		}
		verdict.CanProgress = false
		verdict.Unmet = append(verdict.Unmet, Unmet{
			Field:   p.Field,
			Message: p.Message,
		})
	}

	return verdict
}
