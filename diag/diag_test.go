package diag

import (
	"encoding/json"
	"strings"
	"testing"
)

func sample() *Report {
	r := NewReport()
	r.Add(Diagnostic{
		Severity:  SeverityWarning,
		Location:  Location{File: "reader", Line: 3},
		Operation: "Doc.Data",
		Clause:    "state == Computed",
		Message:   "cannot prove requires of Doc.Data: state == Computed",
	})
	r.Add(Diagnostic{
		Severity:  SeverityError,
		Location:  Location{File: "reader", Line: 1},
		Operation: "Doc.Compute",
		Clause:    "data on success",
		Message:   "postcondition violation",
	})
	return r
}

func TestSortOrdersByLocation(t *testing.T) {
	r := sample()
	r.Sort()
	if r.Diagnostics[0].Location.Line != 1 || r.Diagnostics[1].Location.Line != 3 {
		t.Errorf("sorted order = %v", r.Diagnostics)
	}
}

func TestCountSeverity(t *testing.T) {
	r := sample()
	if got := r.CountSeverity(SeverityWarning); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}
	if got := r.CountSeverity(SeverityInfo); got != 0 {
		t.Errorf("infos = %d, want 0", got)
	}
}

func TestGenerateText(t *testing.T) {
	r := sample()
	r.Sort()
	out := r.GenerateText()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "reader:1") || !strings.Contains(lines[0], "error") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[Doc.Data: state == Computed]") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestGenerateMarkdownTable(t *testing.T) {
	out := sample().GenerateMarkdownTable()
	if !strings.HasPrefix(out, "| Location | Severity |") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "| reader:3 | warning | Doc.Data | `state == Computed` |") {
		t.Errorf("missing row:\n%s", out)
	}
}

func TestGenerateJSONRoundTrips(t *testing.T) {
	out, err := sample().GenerateJSON()
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if decoded[0]["severity"] != "warning" {
		t.Errorf("severity = %v, want the string form", decoded[0]["severity"])
	}
}

func TestLocationString(t *testing.T) {
	if got := (Location{}).String(); got != "-" {
		t.Errorf("empty location = %q, want -", got)
	}
	if got := (Location{File: "f", Line: 12}).String(); got != "f:12" {
		t.Errorf("location = %q", got)
	}
}
