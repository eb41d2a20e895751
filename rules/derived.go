package rules

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// factsVariable is the CEL variable raw facts are bound to.
const factsVariable = "job"

// derivedCostLimit bounds how much work a single derived expression may do.
const derivedCostLimit = 100000

// DerivedField is a fact computed from other facts by a CEL expression,
// e.g. hasQuoteItems = "job.quoteItemCount > 0".
type DerivedField struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
}

type compiledField struct {
	name string
	prog cel.Program
}

// Deriver computes derived facts. Programs are compiled once by NewDeriver
// and are read-only afterwards, so a Deriver is safe for concurrent use.
type Deriver struct {
	fields []compiledField
}

// DefaultDerivedFields returns the derived facts used by the default table.
func DefaultDerivedFields() []DerivedField {
	return []DerivedField{
		{Name: "hasQuoteItems", Expression: `has(job.quoteItemCount) && job.quoteItemCount > 0`},
		{Name: "hasSurveyScheduled", Expression: `has(job.scheduledSurveyCount) && job.scheduledSurveyCount > 0`},
		{Name: "surveyCompleted", Expression: `has(job.completedSurveyCount) && job.completedSurveyCount > 0`},
	}
}

// NewDeriver compiles every field. A compile error is a configuration error
// and wraps ErrInvalidRule.
func NewDeriver(fields []DerivedField) (*Deriver, error) {
	env, err := cel.NewEnv(
		cel.Variable(factsVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	d := &Deriver{fields: make([]compiledField, 0, len(fields))}
	seen := make(map[string]bool, len(fields))

	for _, f := range fields {
		if err := validateIdentifier(f.Name); err != nil {
			return nil, fmt.Errorf("%w: invalid derived field name %q: %v", ErrInvalidRule, f.Name, err)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: derived field %q is declared more than once", ErrInvalidRule, f.Name)
		}
		seen[f.Name] = true

		ast, issues := env.Compile(f.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: derived field %q: compile error: %v", ErrInvalidRule, f.Name, issues.Err())
		}

		prog, err := env.Program(ast, cel.CostLimit(derivedCostLimit))
		if err != nil {
			return nil, fmt.Errorf("%w: derived field %q: program creation error: %v", ErrInvalidRule, f.Name, err)
		}

		d.fields = append(d.fields, compiledField{name: f.Name, prog: prog})
	}

	return d, nil
}

// Names returns the derived field names in declaration order.
func (d *Deriver) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.name
	}
	return names
}

// Apply returns a copy of facts with every derived field added. Derived
// fields see only the raw facts, not each other. A fact the caller already
// supplied under a derived name is kept as is and its expression is not
// evaluated. A field whose expression fails to evaluate is left absent and
// its error is included in the returned (joined) error; the returned facts
// are always usable.
func (d *Deriver) Apply(facts Facts) (Facts, error) {
	out := make(Facts, len(facts)+len(d.fields))
	raw := make(map[string]any, len(facts))
	for k, v := range facts {
		out[k] = v
		raw[k] = celInput(v)
	}

	activation := map[string]any{factsVariable: raw}

	var errs []error
	for _, f := range d.fields {
		if facts.Lookup(f.name).Present() {
			continue
		}
		val, _, err := f.prog.Eval(activation)
		if err != nil {
			delete(out, f.name)
			errs = append(errs, fmt.Errorf("derived field %s: %w", f.name, err))
			continue
		}
		out[f.name] = nativeValue(val)
	}

	return out, errors.Join(errs...)
}

// celInput turns json.Number into int64 or float64; CEL has no overloads for it.
func celInput(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return v
}

// nativeValue converts CEL results to plain Go values; CEL null becomes nil
// so the fact reads as absent.
func nativeValue(val ref.Val) any {
	if _, ok := val.(types.Null); ok {
		return nil
	}
	return val.Value()
}
