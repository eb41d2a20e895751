package rules

import "errors"

var (
	// ErrUnknownStage is returned when a stage identifier is not in the table.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrInvalidRule is returned when the rule table is malformed.
	ErrInvalidRule = errors.New("invalid rule configuration")
)

// Stage names one phase of a job's pipeline.
type Stage string

// StageRule describes a single pipeline stage and what must hold before a job enters it
type StageRule struct {
	Stage         Stage
	Label         string
	Prerequisites []Prerequisite

	// CanSkip marks optional stages (e.g. deposit handling). It is metadata for
	// callers and never changes how the stage's prerequisites are scored.
	CanSkip bool
}

// Prerequisite is a single named check against one fact in the snapshot
type Prerequisite struct {
	Field   string
	Check   Check
	Message string
}

// CheckKind identifies the variant of a Check
type CheckKind string

const (
	CheckExists     CheckKind = "exists"
	CheckTruthy     CheckKind = "truthy"
	CheckEquals     CheckKind = "equals"
	CheckHasRelated CheckKind = "has_related"
)

// Check is the closed set of prerequisite checks. The unexported method keeps
// the set limited to the variants declared in this package.
type Check interface {
	Kind() CheckKind
	passes(f Fact) bool
}

// Exists passes when the fact is present and not nil.
type Exists struct{}

// Truthy passes when the fact is present and truthy.
type Truthy struct{}

// Equals passes when the fact is present and equal by value to Value.
type Equals struct {
	Value any
}

// HasRelated passes when the provider reported at least one record in Table
// whose Field references the job. The provider resolves this to a count or
// flag stored under the prerequisite's Field.
type HasRelated struct {
	Table string
	Field string
}

func (Exists) Kind() CheckKind     { return CheckExists }
func (Truthy) Kind() CheckKind     { return CheckTruthy }
func (Equals) Kind() CheckKind     { return CheckEquals }
func (HasRelated) Kind() CheckKind { return CheckHasRelated }

func (Exists) passes(f Fact) bool { return f.Present() }

func (Truthy) passes(f Fact) bool { return f.Present() && isTruthy(f.Value()) }

func (c Equals) passes(f Fact) bool { return f.Present() && valuesEqual(f.Value(), c.Value) }

func (HasRelated) passes(f Fact) bool { return f.Present() && isTruthy(f.Value()) }

// Unmet is a prerequisite that failed during evaluation
type Unmet struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Verdict is the outcome of evaluating a stage's prerequisites
type Verdict struct {
	CanProgress bool    `json:"canProgress"`
	Unmet       []Unmet `json:"unmetPrerequisites"`
}

// Reason explains why a transition was denied
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotForward         Reason = "not_forward_progression"
	ReasonPrerequisitesUnmet Reason = "prerequisites_unmet"
)

// Decision is the outcome of authorizing a transition between two stages
type Decision struct {
	Allowed bool    `json:"allowed"`
	Reason  Reason  `json:"reason,omitempty"`
	Detail  string  `json:"detail,omitempty"`
	Verdict Verdict `json:"verdict"`
}
