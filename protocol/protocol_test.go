package protocol

import (
	"strings"
	"testing"
)

func TestSetValuesFollowDomainOrder(t *testing.T) {
	d := ComputeDomain()
	s := NewSet(Computed, NotReady)

	got := s.Values(d)
	want := []Value{NotReady, Computed}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDomainContainsInitial(t *testing.T) {
	// The initial value is prepended if the declared list omits it.
	d := NewDomain("Session", "Open", "Closed")
	if !d.Contains("Open") {
		t.Error("initial state missing from domain")
	}
	if d.Values[0] != "Open" {
		t.Errorf("Values[0] = %s, want Open", d.Values[0])
	}
}

func TestRuleResultStates(t *testing.T) {
	d := ComputeDomain()
	r, ok := d.Rule("Compute")
	if !ok {
		t.Fatal("no rule for Compute")
	}

	next, ok := r.ResultStates(true)
	if !ok || !next.Has(Computed) {
		t.Errorf("ResultStates(true) = %v, %v", next, ok)
	}
	next, ok = r.ResultStates(false)
	if !ok || !next.Has(Initialized) {
		t.Errorf("ResultStates(false) = %v, %v", next, ok)
	}
	if _, ok := r.ResultStates("other"); ok {
		t.Error("undeclared result matched a branch")
	}

	reset, _ := d.Rule("Reset")
	next, ok = reset.ResultStates(nil)
	if !ok || !next.Has(NotReady) {
		t.Errorf("Reset any-branch = %v, %v", next, ok)
	}
}

func TestComputeDomainValidates(t *testing.T) {
	if err := ComputeDomain().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsStatesOutsideDomain(t *testing.T) {
	d := NewDomain("Conn", "Closed", "Closed", "Open")
	d.Allow("Open", "Closed").Always("HalfOpen")
	if err := d.Validate(); err == nil {
		t.Fatal("expected an error for a postcondition state outside the domain")
	}

	d = NewDomain("Conn", "Closed", "Closed", "Open")
	d.Allow("Open", "Missing").Always("Open")
	if err := d.Validate(); err == nil {
		t.Fatal("expected an error for a precondition state outside the domain")
	}
}

func TestOpsInDeclarationOrder(t *testing.T) {
	ops := ComputeDomain().Ops()
	want := []string{"Initialize", "Compute", "Data", "Reset"}
	if len(ops) != len(want) {
		t.Fatalf("Ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("Ops[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestGenerateGraphviz(t *testing.T) {
	out := ComputeDomain().GenerateGraphviz()

	for _, want := range []string{
		"digraph Compute {",
		`start -> "NotReady";`,
		`"NotReady" -> "Initialized" [label="Initialize"];`,
		`"Initialized" -> "Computed" [label="Compute=true"];`,
		`"Computed" -> "Initialized" [label="Compute=false"];`,
		`"Computed" -> "NotReady" [label="Reset"];`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateMermaid(t *testing.T) {
	out := ComputeDomain().GenerateMermaid()

	for _, want := range []string{
		"stateDiagram-v2",
		"[*] --> NotReady",
		"NotReady --> Initialized: Initialize",
		"Initialized --> Computed: Compute = true",
		"Computed --> Computed: Data",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("mermaid output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := ComputeDomain().GenerateGraphviz()
	b := ComputeDomain().GenerateGraphviz()
	if a != b {
		t.Fatal("DOT output is not stable across runs")
	}
}
