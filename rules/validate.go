package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxStages        = 100
	maxPrerequisites = 50
	maxIdentifierLen = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTable checks a rule table before it is accepted by NewTable.
// Every failure wraps ErrInvalidRule.
func validateTable(stageRules []StageRule, unrestricted []Stage) error {
	if len(stageRules) == 0 {
		return fmt.Errorf("%w: table cannot be empty, must contain at least one stage", ErrInvalidRule)
	}

	if len(stageRules) > maxStages {
		return fmt.Errorf("%w: table contains %d stages, maximum allowed is %d", ErrInvalidRule, len(stageRules), maxStages)
	}

	seen := make(map[Stage]bool, len(stageRules))
	related := make(map[string]HasRelated)
	for _, sr := range stageRules {
		if err := validateIdentifier(string(sr.Stage)); err != nil {
			return fmt.Errorf("%w: invalid stage name %q: %v", ErrInvalidRule, sr.Stage, err)
		}

		if seen[sr.Stage] {
			return fmt.Errorf("%w: stage %q is declared more than once", ErrInvalidRule, sr.Stage)
		}
		seen[sr.Stage] = true

		if len(sr.Prerequisites) > maxPrerequisites {
			return fmt.Errorf("%w: stage %q has %d prerequisites, maximum allowed is %d",
				ErrInvalidRule, sr.Stage, len(sr.Prerequisites), maxPrerequisites)
		}

		for i, p := range sr.Prerequisites {
			if err := validatePrerequisite(p); err != nil {
				return fmt.Errorf("%w: stage %q prerequisite %d: %v", ErrInvalidRule, sr.Stage, i, err)
			}

			// one fact field resolves to exactly one related collection
			if hr, ok := p.Check.(HasRelated); ok {
				if prev, dup := related[p.Field]; dup && prev != hr {
					return fmt.Errorf("%w: field %q refers to both %s.%s and %s.%s",
						ErrInvalidRule, p.Field, prev.Table, prev.Field, hr.Table, hr.Field)
				}
				related[p.Field] = hr
			}
		}
	}

	for _, s := range unrestricted {
		if !seen[s] {
			return fmt.Errorf("%w: unrestricted stage %q is not declared in the table", ErrInvalidRule, s)
		}
	}

	return nil
}

func validatePrerequisite(p Prerequisite) error {
	if err := validateIdentifier(p.Field); err != nil {
		return fmt.Errorf("invalid field name %q: %w", p.Field, err)
	}

	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("field %q has no message", p.Field)
	}

	switch c := p.Check.(type) {
	case nil:
		return fmt.Errorf("field %q has no check", p.Field)
	case Exists, Truthy:
		return nil
	case Equals:
		if c.Value == nil {
			return fmt.Errorf("equals check on %q requires a value", p.Field)
		}
	case HasRelated:
		if c.Table == "" || c.Field == "" {
			return fmt.Errorf("has_related check on %q requires both a related table and a related field", p.Field)
		}
		if err := validateIdentifier(c.Table); err != nil {
			return fmt.Errorf("invalid related table %q: %w", c.Table, err)
		}
		if err := validateIdentifier(c.Field); err != nil {
			return fmt.Errorf("invalid related field %q: %w", c.Field, err)
		}
	default:
		return fmt.Errorf("field %q has unsupported check %T", p.Field, p.Check)
	}

	return nil
}

// validateIdentifier checks stage, field, table and column names.
// Related table and field names end up in SQL, so the pattern is strict.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLen)
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	return nil
}
