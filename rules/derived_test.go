package rules

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestNewDeriverCompilesDefaults verifies the built-in derived facts compile
func TestNewDeriverCompilesDefaults(t *testing.T) {
	d, err := NewDeriver(DefaultDerivedFields())
	if err != nil {
		t.Fatalf("NewDeriver() failed: %v", err)
	}

	names := d.Names()
	if len(names) != 3 || names[0] != "hasQuoteItems" {
		t.Errorf("Names() = %v, want the three default fields starting with hasQuoteItems", names)
	}
}

// TestNewDeriverRejectsBadFields verifies compile failures are configuration errors
func TestNewDeriverRejectsBadFields(t *testing.T) {
	testCases := []struct {
		name    string
		fields  []DerivedField
		wantMsg string
	}{
		{"Syntax error", []DerivedField{{Name: "x", Expression: `job.a >=`}}, "compile error"},
		{"Undefined variable", []DerivedField{{Name: "x", Expression: `quote.total > 0`}}, "compile error"},
		{"Invalid name", []DerivedField{{Name: "has items", Expression: `true`}}, "invalid derived field name"},
		{"Duplicate name", []DerivedField{{Name: "x", Expression: `true`}, {Name: "x", Expression: `false`}}, "more than once"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDeriver(tc.fields)
			if err == nil {
				t.Fatal("NewDeriver() should return error")
			}
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("error should wrap ErrInvalidRule, got: %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

// TestDeriverApply verifies derived facts are computed from raw facts
func TestDeriverApply(t *testing.T) {
	d, err := NewDeriver(DefaultDerivedFields())
	if err != nil {
		t.Fatalf("NewDeriver() failed: %v", err)
	}

	raw := Facts{
		"quoteItemCount":       int64(2),
		"scheduledSurveyCount": 0,
		"quotedValue":          950.0,
	}

	out, err := d.Apply(raw)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	testCases := []struct {
		field string
		want  any
	}{
		{"hasQuoteItems", true},
		{"hasSurveyScheduled", false},
		{"surveyCompleted", false}, // raw count absent
		{"quotedValue", 950.0},
	}

	for _, tc := range testCases {
		t.Run(tc.field, func(t *testing.T) {
			if out[tc.field] != tc.want {
				t.Errorf("%s = %v (%T), want %v", tc.field, out[tc.field], out[tc.field], tc.want)
			}
		})
	}

	if _, ok := raw["hasQuoteItems"]; ok {
		t.Error("Apply() must not mutate the input facts")
	}
}

// TestDeriverApplyAcrossNumericTypes verifies JSON-decoded floats compare against int literals
func TestDeriverApplyAcrossNumericTypes(t *testing.T) {
	d, _ := NewDeriver(DefaultDerivedFields())

	out, err := d.Apply(Facts{"quoteItemCount": 3.0})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if out["hasQuoteItems"] != true {
		t.Errorf("hasQuoteItems = %v, want true", out["hasQuoteItems"])
	}
}

// TestDeriverApplyJSONNumbers verifies json.Number inputs are usable in expressions
func TestDeriverApplyJSONNumbers(t *testing.T) {
	d, _ := NewDeriver(DefaultDerivedFields())

	in := Facts{"quoteItemCount": json.Number("2"), "completedSurveyCount": json.Number("0.0")}
	out, err := d.Apply(in)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if out["hasQuoteItems"] != true {
		t.Errorf("hasQuoteItems = %v, want true", out["hasQuoteItems"])
	}
	if out["surveyCompleted"] != false {
		t.Errorf("surveyCompleted = %v, want false", out["surveyCompleted"])
	}
	if out["quoteItemCount"] != json.Number("2") {
		t.Errorf("raw facts should be copied unchanged, got %v", out["quoteItemCount"])
	}
}

// TestDeriverApplyEvaluationErrorLeavesFactAbsent verifies failed fields read as absent
func TestDeriverApplyEvaluationErrorLeavesFactAbsent(t *testing.T) {
	d, err := NewDeriver([]DerivedField{
		{Name: "balance", Expression: `job.quotedValue - job.depositAmount`},
		{Name: "ok", Expression: `true`},
	})
	if err != nil {
		t.Fatalf("NewDeriver() failed: %v", err)
	}

	out, err := d.Apply(Facts{"quotedValue": 100.0})
	if err == nil {
		t.Fatal("Apply() should report the failed field")
	}
	if !strings.Contains(err.Error(), "balance") {
		t.Errorf("error = %q, want it to name the field", err.Error())
	}
	if out.Lookup("balance").Present() {
		t.Errorf("balance should be absent, got %v", out["balance"])
	}
	if out["ok"] != true {
		t.Error("fields after a failure should still be derived")
	}
}

// TestDeriverApplyKeepsSuppliedFacts verifies a supplied fact wins over its derived expression
func TestDeriverApplyKeepsSuppliedFacts(t *testing.T) {
	d, _ := NewDeriver(DefaultDerivedFields())

	testCases := []struct {
		name  string
		facts Facts
		field string
		want  any
	}{
		{"Supplied true without counts", Facts{"hasQuoteItems": true}, "hasQuoteItems", true},
		{"Supplied false despite counts", Facts{"hasSurveyScheduled": false, "scheduledSurveyCount": 4}, "hasSurveyScheduled", false},
		{"Nil supplied reads as absent", Facts{"surveyCompleted": nil, "completedSurveyCount": 1}, "surveyCompleted", true},
		{"Not supplied is derived", Facts{"quoteItemCount": 0}, "hasQuoteItems", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := d.Apply(tc.facts)
			if err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}
			if out[tc.field] != tc.want {
				t.Errorf("%s = %v, want %v", tc.field, out[tc.field], tc.want)
			}
		})
	}
}

// TestDeriverApplySuppliedQuoteFacts verifies supplied quote facts reach the evaluator unchanged
func TestDeriverApplySuppliedQuoteFacts(t *testing.T) {
	d, _ := NewDeriver(DefaultDerivedFields())

	facts, err := d.Apply(Facts{"hasQuoteItems": true, "quotedValue": 0})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	verdict, err := NewEvaluator(DefaultTable()).Evaluate(StageQuoteSent, facts)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if verdict.CanProgress || len(verdict.Unmet) != 1 || verdict.Unmet[0].Field != "quotedValue" {
		t.Errorf("verdict = %+v, want only quotedValue unmet", verdict)
	}
}
