package rules

import "slices"

// Table is the ordered catalog of pipeline stages. Declaration order defines
// "forward"; it must stay stable across releases because callers compare
// indexes. A Table is immutable after NewTable and safe for concurrent use.
type Table struct {
	rules             []StageRule
	index             map[Stage]int
	unrestricted      map[Stage]bool
	unrestrictedOrder []Stage
}

// NewTable validates the rules and builds a Table. Malformed configuration
// (duplicate stages, missing operands, unknown unrestricted stages) returns
// an error wrapping ErrInvalidRule.
func NewTable(stageRules []StageRule, unrestricted []Stage) (*Table, error) {
	if err := validateTable(stageRules, unrestricted); err != nil {
		return nil, err
	}

	t := &Table{
		rules:        make([]StageRule, len(stageRules)),
		index:        make(map[Stage]int, len(stageRules)),
		unrestricted: make(map[Stage]bool, len(unrestricted)),
	}

	for i, sr := range stageRules {
		sr.Prerequisites = slices.Clone(sr.Prerequisites)
		t.rules[i] = sr
		t.index[sr.Stage] = i
	}

	for _, s := range unrestricted {
		if !t.unrestricted[s] {
			t.unrestricted[s] = true
			t.unrestrictedOrder = append(t.unrestrictedOrder, s)
		}
	}

	return t, nil
}

// MustNewTable is NewTable for tables declared in code. It panics on error.
func MustNewTable(stageRules []StageRule, unrestricted []Stage) *Table {
	t, err := NewTable(stageRules, unrestricted)
	if err != nil {
		panic(err)
	}
	return t
}

// RuleFor returns the rule for stage, or false when the stage is unknown.
func (t *Table) RuleFor(stage Stage) (StageRule, bool) {
	i, ok := t.index[stage]
	if !ok {
		return StageRule{}, false
	}
	return t.rules[i], true
}

// IndexOf returns the declared position of stage, or -1 when it is unknown.
func (t *Table) IndexOf(stage Stage) int {
	i, ok := t.index[stage]
	if !ok {
		return -1
	}
	return i
}

// Has reports whether stage is declared in the table.
func (t *Table) Has(stage Stage) bool {
	_, ok := t.index[stage]
	return ok
}

// IsUnrestricted reports whether stage is reachable from any other stage.
func (t *Table) IsUnrestricted(stage Stage) bool {
	return t.unrestricted[stage]
}

// Unrestricted returns the escape-hatch stages in the order they were declared.
func (t *Table) Unrestricted() []Stage {
	return slices.Clone(t.unrestrictedOrder)
}

// Stages returns a copy of every rule in declaration order.
func (t *Table) Stages() []StageRule {
	out := make([]StageRule, len(t.rules))
	for i, sr := range t.rules {
		sr.Prerequisites = slices.Clone(sr.Prerequisites)
		out[i] = sr
	}
	return out
}

// Initial returns the first declared stage.
func (t *Table) Initial() Stage {
	return t.rules[0].Stage
}

// RelatedChecks returns every has_related prerequisite in the table, keyed by
// the fact field the provider must populate.
func (t *Table) RelatedChecks() map[string]HasRelated {
	out := make(map[string]HasRelated)
	for _, sr := range t.rules {
		for _, p := range sr.Prerequisites {
			if hr, ok := p.Check.(HasRelated); ok {
				out[p.Field] = hr
			}
		}
	}
	return out
}
