package contract

import (
	"strings"
	"testing"

	"github.com/rfielding/dbc/protocol"
)

func TestRegistryFreezeStopsMutation(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(NewType("A", nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if reg.Frozen() {
		t.Fatal("registry frozen before Freeze")
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if !reg.Frozen() {
		t.Fatal("registry not frozen after Freeze")
	}
	if err := reg.Add(NewType("B", nil)); err == nil {
		t.Error("Add succeeded on a frozen registry")
	}
	if err := reg.RegisterClause("A", "Op", KindRequires, "", True{}); err == nil {
		t.Error("RegisterClause succeeded on a frozen registry")
	}
}

func TestRegistryRejectsDuplicateTypes(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(NewType("A", nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(NewType("A", nil)); err == nil {
		t.Error("duplicate type registered")
	}
}

func TestRegisterClauseRoutesByKind(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(NewType("Acct", nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	pre := Gt(Var{Name: "amount"}, Lit{V: 0})
	post := Ge(Field{Name: "Balance"}, Lit{V: 0})
	inv := Ge(Field{Name: "Balance"}, Lit{V: 0})

	if err := reg.RegisterClause("Acct", "Withdraw", KindRequires, "positive amount", pre); err != nil {
		t.Fatalf("RegisterClause: %v", err)
	}
	if err := reg.RegisterClause("Acct", "Withdraw", KindEnsures, "", post); err != nil {
		t.Fatalf("RegisterClause: %v", err)
	}
	if err := reg.RegisterClause("Acct", "", KindInvariant, "non-negative balance", inv); err != nil {
		t.Fatalf("RegisterClause: %v", err)
	}

	if got := reg.ClausesOf("Acct", "Withdraw", KindRequires); len(got) != 1 || got[0].Text() != "positive amount" {
		t.Errorf("requires = %v", got)
	}
	if got := reg.ClausesOf("Acct", "Withdraw", KindEnsures); len(got) != 1 {
		t.Errorf("ensures = %v", got)
	}
	if got := reg.ClausesOf("Acct", "ignored", KindInvariant); len(got) != 1 {
		t.Errorf("invariants = %v", got)
	}
}

func TestFreezeRejectsPrivateFieldInRequires(t *testing.T) {
	typ := NewType("Acct", nil)
	typ.Operation("Withdraw").
		Require("", Gt(Field{Name: "balance"}, Lit{V: 0}))

	reg := NewRegistry()
	if err := reg.Add(typ); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := reg.Freeze()
	if err == nil {
		t.Fatal("freeze accepted a requires clause over a private field")
	}
	if !strings.Contains(err.Error(), "private field") {
		t.Errorf("error = %v", err)
	}
}

func TestFreezeRejectsResultInRequires(t *testing.T) {
	typ := NewType("Acct", nil)
	typ.Operation("Withdraw").
		Require("", Eq(Result{}, Lit{V: true}))

	reg := NewRegistry()
	if err := reg.Add(typ); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Freeze(); err == nil {
		t.Fatal("freeze accepted a requires clause over the result")
	}
}

func TestFreezeRejectsOldInRequires(t *testing.T) {
	typ := NewType("Acct", nil)
	typ.Operation("Withdraw").
		Require("", Eq(Old{T: Field{Name: "Balance"}}, Lit{V: 0}))

	reg := NewRegistry()
	if err := reg.Add(typ); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Freeze(); err == nil {
		t.Fatal("freeze accepted a requires clause over old()")
	}
}

func TestFreezeRequiresTransitionRulePerOperation(t *testing.T) {
	typ := NewType("Doc", protocol.ComputeDomain())
	typ.Operation("Publish") // no rule in the compute protocol

	reg := NewRegistry()
	if err := reg.Add(typ); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := reg.Freeze()
	if err == nil {
		t.Fatal("freeze accepted an operation without a transition rule")
	}
	if !strings.Contains(err.Error(), "Publish") {
		t.Errorf("error = %v", err)
	}
}

func TestFreezeIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("second Freeze: %v", err)
	}
}

func TestOperationDeclarationOrder(t *testing.T) {
	typ := NewType("T", nil)
	typ.Operation("C")
	typ.Operation("A")
	typ.Operation("B")
	typ.Operation("A") // redeclaration returns the existing operation

	ops := typ.Operations()
	if len(ops) != 3 {
		t.Fatalf("Operations = %d, want 3", len(ops))
	}
	want := []string{"C", "A", "B"}
	for i, op := range ops {
		if op.Name != want[i] {
			t.Errorf("ops[%d] = %s, want %s", i, op.Name, want[i])
		}
	}
}

func TestSnapshotOld(t *testing.T) {
	clauses := []Clause{
		{Kind: KindEnsures, Pred: Gt(Field{Name: "Count"}, Old{T: Field{Name: "Count"}})},
	}
	env := &Env{Fields: map[string]any{"Count": 7}}

	snap, err := SnapshotOld(clauses, env)
	if err != nil {
		t.Fatalf("SnapshotOld: %v", err)
	}
	if got := snap["this.Count"]; got != 7 {
		t.Errorf("snapshot = %v, want 7", got)
	}

	// No old() references means no snapshot at all.
	snap, err = SnapshotOld([]Clause{{Pred: True{}}}, env)
	if err != nil {
		t.Fatalf("SnapshotOld: %v", err)
	}
	if snap != nil {
		t.Errorf("snapshot = %v, want nil", snap)
	}
}
