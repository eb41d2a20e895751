package main

import (
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	if got := renderTable(nil, [][]string{{"x"}}); got != "" {
		t.Errorf("renderTable without headers = %q, want empty", got)
	}

	out := renderTable(
		[]string{"#", "Stage"},
		[][]string{{"1", "new_enquiry"}, {"10", "in_progress", "extra"}, {"3"}},
		1,
	)

	for _, want := range []string{"Stage", "new_enquiry", "in_progress", " 1 │", "10 │"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "extra") {
		t.Errorf("cells beyond the header width should be dropped:\n%s", out)
	}
}
