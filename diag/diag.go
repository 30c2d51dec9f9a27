// Package diag converts verification results into stable, structured
// records for a build pipeline or editor. The core never decides whether
// a diagnostic blocks a build; that policy belongs to the caller.
package diag

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type Severity int

const (
	// SeverityError marks runtime contract violations.
	SeverityError Severity = iota
	// SeverityWarning marks unproven static obligations: possibly a real
	// bug, possibly a checker limitation, never fatal on its own.
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return "unknown"
}

func (s Severity) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Location is a source position in the analyzed program representation.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func (l Location) String() string {
	if l.File == "" {
		return "-"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Diagnostic is one reportable finding.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Location  Location `json:"location"`
	Operation string   `json:"operation"`
	Clause    string   `json:"clause"`
	Message   string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s [%s: %s]", d.Location, d.Severity, d.Message, d.Operation, d.Clause)
}

// Report accumulates diagnostics and renders them deterministically.
type Report struct {
	Diagnostics []Diagnostic
}

func NewReport() *Report { return &Report{} }

func (r *Report) Add(d Diagnostic) { r.Diagnostics = append(r.Diagnostics, d) }

// Sort orders diagnostics by location, operation, clause, then message.
// Output must be byte-stable for a fixed input so incremental tooling can
// diff runs.
func (r *Report) Sort() {
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		a, b := r.Diagnostics[i], r.Diagnostics[j]
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		if a.Clause != b.Clause {
			return a.Clause < b.Clause
		}
		return a.Message < b.Message
	})
}

// CountSeverity returns how many diagnostics carry the given severity.
func (r *Report) CountSeverity(s Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// GenerateText renders one line per diagnostic.
func (r *Report) GenerateText() string {
	var sb strings.Builder
	for _, d := range r.Diagnostics {
		sb.WriteString(d.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// GenerateMarkdownTable renders the report as a markdown table.
func (r *Report) GenerateMarkdownTable() string {
	var sb strings.Builder
	sb.WriteString("| Location | Severity | Operation | Clause | Message |\n")
	sb.WriteString("|----------|----------|-----------|--------|---------|\n")

	for _, d := range r.Diagnostics {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | `%s` | %s |\n",
			d.Location, d.Severity, d.Operation, d.Clause, d.Message))
	}

	return sb.String()
}

// GenerateJSON renders the report as indented JSON.
func (r *Report) GenerateJSON() (string, error) {
	b, err := json.MarshalIndent(r.Diagnostics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
