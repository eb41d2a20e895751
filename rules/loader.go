package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSet bundles everything loaded at startup: the stage table and the
// compiled derived-fact programs. Both are read-only once built.
type RuleSet struct {
	Table   *Table
	Deriver *Deriver
}

// DefaultRuleSet returns the built-in trades pipeline with its derived facts.
func DefaultRuleSet() (*RuleSet, error) {
	deriver, err := NewDeriver(DefaultDerivedFields())
	if err != nil {
		return nil, err
	}
	return &RuleSet{Table: DefaultTable(), Deriver: deriver}, nil
}

// ruleFile models a YAML rule file.
type ruleFile struct {
	Stages       []stageDoc     `yaml:"stages"`
	Unrestricted []string       `yaml:"unrestricted"`
	Derived      []DerivedField `yaml:"derived"`
}

type stageDoc struct {
	Stage         string            `yaml:"stage"`
	Label         string            `yaml:"label"`
	CanSkip       bool              `yaml:"canSkip"`
	Prerequisites []prerequisiteDoc `yaml:"prerequisites"`
}

type prerequisiteDoc struct {
	Field        string `yaml:"field"`
	Check        string `yaml:"check"`
	Value        any    `yaml:"value"`
	RelatedTable string `yaml:"relatedTable"`
	RelatedField string `yaml:"relatedField"`
	Message      string `yaml:"message"`
}

// LoadRuleFile reads and validates a YAML rule file.
func LoadRuleFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return rs, nil
}

// ParseRuleSet decodes a YAML rule document. Unknown keys, unknown check
// kinds and operands that do not belong to a check are all rejected.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var doc ruleFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: rule file is empty", ErrInvalidRule)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	stageRules := make([]StageRule, 0, len(doc.Stages))
	for _, sd := range doc.Stages {
		sr := StageRule{
			Stage:   Stage(sd.Stage),
			Label:   sd.Label,
			CanSkip: sd.CanSkip,
		}
		for i, pd := range sd.Prerequisites {
			check, err := pd.toCheck()
			if err != nil {
				return nil, fmt.Errorf("%w: stage %q prerequisite %d: %v", ErrInvalidRule, sd.Stage, i, err)
			}
			sr.Prerequisites = append(sr.Prerequisites, Prerequisite{
				Field:   pd.Field,
				Check:   check,
				Message: pd.Message,
			})
		}
		stageRules = append(stageRules, sr)
	}

	unrestricted := make([]Stage, len(doc.Unrestricted))
	for i, s := range doc.Unrestricted {
		unrestricted[i] = Stage(s)
	}

	table, err := NewTable(stageRules, unrestricted)
	if err != nil {
		return nil, err
	}

	deriver, err := NewDeriver(doc.Derived)
	if err != nil {
		return nil, err
	}

	return &RuleSet{Table: table, Deriver: deriver}, nil
}

func (pd prerequisiteDoc) toCheck() (Check, error) {
	hasRelatedOperands := pd.RelatedTable != "" || pd.RelatedField != ""

	switch CheckKind(pd.Check) {
	case CheckExists, CheckTruthy:
		if pd.Value != nil || hasRelatedOperands {
			return nil, fmt.Errorf("check %q on %q takes no operands", pd.Check, pd.Field)
		}
		if CheckKind(pd.Check) == CheckExists {
			return Exists{}, nil
		}
		return Truthy{}, nil
	case CheckEquals:
		if hasRelatedOperands {
			return nil, fmt.Errorf("equals check on %q does not take relatedTable/relatedField", pd.Field)
		}
		return Equals{Value: pd.Value}, nil
	case CheckHasRelated:
		if pd.Value != nil {
			return nil, fmt.Errorf("has_related check on %q does not take a value", pd.Field)
		}
		return HasRelated{Table: pd.RelatedTable, Field: pd.RelatedField}, nil
	case "":
		return nil, fmt.Errorf("prerequisite on %q has no check", pd.Field)
	default:
		return nil, fmt.Errorf("unknown check %q on %q (must be one of: exists, truthy, equals, has_related)", pd.Check, pd.Field)
	}
}
