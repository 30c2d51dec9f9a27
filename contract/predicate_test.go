package contract

import (
	"testing"

	"github.com/rfielding/dbc/protocol"
)

func TestCompareEval(t *testing.T) {
	env := &Env{
		Params: map[string]any{"amount": 5, "name": "alice"},
		Fields: map[string]any{"Balance": int64(10), "Data": nil},
	}

	cases := []struct {
		pred Pred
		want bool
	}{
		{Gt(Var{Name: "amount"}, Lit{V: 0}), true},
		{Ge(Var{Name: "amount"}, Lit{V: 5}), true},
		{Lt(Var{Name: "amount"}, Lit{V: 5}), false},
		// Numeric comparison crosses int widths.
		{Eq(Field{Name: "Balance"}, Lit{V: 10}), true},
		{Eq(Var{Name: "name"}, Lit{V: "alice"}), true},
		{Ne(Var{Name: "name"}, Lit{V: "bob"}), true},
		{NotNil(Field{Name: "Data"}), false},
		{Eq(Field{Name: "Data"}, Lit{}), true},
	}
	for _, c := range cases {
		got, err := c.pred.Eval(env)
		if err != nil {
			t.Fatalf("%s: %v", c.pred, err)
		}
		if got != c.want {
			t.Errorf("%s = %v, want %v", c.pred, got, c.want)
		}
	}
}

func TestNotNilSeesTypedNil(t *testing.T) {
	var p *int
	env := &Env{Fields: map[string]any{"Data": p}}

	got, err := NotNil(Field{Name: "Data"}).Eval(env)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("a typed nil pointer passed a != nil check")
	}
}

func TestUnboundReferencesError(t *testing.T) {
	env := &Env{}
	if _, err := Eq(Var{Name: "x"}, Lit{V: 1}).Eval(env); err == nil {
		t.Error("unbound variable evaluated without error")
	}
	if _, err := Eq(Result{}, Lit{V: 1}).Eval(env); err == nil {
		t.Error("result evaluated outside a postcondition context")
	}
	if _, err := Eq(Old{T: Field{Name: "X"}}, Lit{V: 1}).Eval(env); err == nil {
		t.Error("old() evaluated without a snapshot")
	}
}

func TestInStateEval(t *testing.T) {
	p := StateIs("Open", "HalfOpen")
	env := &Env{State: "HalfOpen"}
	if got, _ := p.Eval(env); !got {
		t.Error("state membership failed for a member")
	}
	env.State = "Closed"
	if got, _ := p.Eval(env); got {
		t.Error("state membership held for a non-member")
	}
}

func TestConnectivesShortCircuit(t *testing.T) {
	// The right side references an unbound variable; short-circuiting must
	// keep Eval from reaching it.
	bad := Eq(Var{Name: "missing"}, Lit{V: 1})
	env := &Env{}

	if _, err := (And{L: Ne(Lit{V: 1}, Lit{V: 1}), R: bad}).Eval(env); err != nil {
		t.Errorf("And did not short-circuit: %v", err)
	}
	if _, err := (Or{L: Eq(Lit{V: 1}, Lit{V: 1}), R: bad}).Eval(env); err != nil {
		t.Errorf("Or did not short-circuit: %v", err)
	}
	if _, err := (Implies{L: Ne(Lit{V: 1}, Lit{V: 1}), R: bad}).Eval(env); err != nil {
		t.Errorf("Implies did not short-circuit: %v", err)
	}
}

func TestCanonicalText(t *testing.T) {
	cases := []struct {
		pred Pred
		want string
	}{
		{Eq(Var{Name: "x"}, Lit{V: 1}), "x == 1"},
		{NotNil(Field{Name: "Data"}), "this.Data != nil"},
		{Eq(Var{Name: "d.state"}, Lit{V: "Computed"}), `d.state == "Computed"`},
		{StateIs("Computed"), "state == Computed"},
		{StateIs("Initialized", "Computed"), "state in {Initialized, Computed}"},
		{Not{P: StateIs("Computed")}, "!(state == Computed)"},
		{Implies{L: Eq(Result{}, Lit{V: true}), R: NotNil(Field{Name: "Data"})},
			"(result == true -> this.Data != nil)"},
	}
	for _, c := range cases {
		if got := c.pred.String(); got != c.want {
			t.Errorf("String = %q, want %q", got, c.want)
		}
	}

	if got := (Old{T: Field{Name: "Count"}}).String(); got != "old(this.Count)" {
		t.Errorf("old term text = %q", got)
	}
}

func TestNegate(t *testing.T) {
	cases := []struct {
		in   Pred
		want string
	}{
		{Eq(Var{Name: "x"}, Lit{V: 1}), "x != 1"},
		{Lt(Var{Name: "x"}, Lit{V: 1}), "x >= 1"},
		{Not{P: StateIs("Open")}, "state == Open"},
		{And{L: Eq(Var{Name: "a"}, Lit{V: 1}), R: Eq(Var{Name: "b"}, Lit{V: 2})},
			"(a != 1 || b != 2)"},
		{Or{L: Eq(Var{Name: "a"}, Lit{V: 1}), R: Eq(Var{Name: "b"}, Lit{V: 2})},
			"(a != 1 && b != 2)"},
	}
	for _, c := range cases {
		if got := Negate(c.in).String(); got != c.want {
			t.Errorf("Negate(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRewritePredSubstitutesTerms(t *testing.T) {
	p := And{
		L: Eq(Field{Name: "Data"}, Lit{}),
		R: Gt(Var{Name: "n"}, Old{T: Field{Name: "Count"}}),
	}
	out := RewritePred(p, func(tm Term) Term {
		if f, ok := tm.(Field); ok {
			return Var{Name: "d." + f.Name}
		}
		return tm
	})
	want := "(d.Data == nil && n > old(d.Count))"
	if got := out.String(); got != want {
		t.Errorf("rewritten = %q, want %q", got, want)
	}
}

func TestOldTermsDistinctInOrder(t *testing.T) {
	clauses := []Clause{
		{Pred: Gt(Field{Name: "Count"}, Old{T: Field{Name: "Count"}})},
		{Pred: And{
			L: Eq(Old{T: Field{Name: "Count"}}, Lit{V: 0}),
			R: Ne(Old{T: Field{Name: "Name"}}, Lit{}),
		}},
	}
	olds := OldTerms(clauses)
	if len(olds) != 2 {
		t.Fatalf("OldTerms = %v, want 2 distinct terms", olds)
	}
	if olds[0].String() != "old(this.Count)" || olds[1].String() != "old(this.Name)" {
		t.Errorf("OldTerms order = %v", olds)
	}
}

func TestConjDisjFolding(t *testing.T) {
	a := Eq(Var{Name: "a"}, Lit{V: 1})
	b := Eq(Var{Name: "b"}, Lit{V: 2})
	c := Eq(Var{Name: "c"}, Lit{V: 3})

	if got := len(Conjuncts(Conj(a, b, c))); got != 3 {
		t.Errorf("Conjuncts of Conj = %d, want 3", got)
	}
	if got := len(Disjuncts(Disj(a, b, c))); got != 3 {
		t.Errorf("Disjuncts of Disj = %d, want 3", got)
	}
	if _, ok := Conj().(True); !ok {
		t.Error("empty Conj is not True")
	}
}

func TestEvalIsIdempotent(t *testing.T) {
	env := &Env{
		Fields: map[string]any{"Data": "x", "Count": 3},
		Old:    map[string]any{"this.Count": 2},
		State:  "Computed",
	}
	p := And{
		L: NotNil(Field{Name: "Data"}),
		R: And{
			L: Gt(Field{Name: "Count"}, Old{T: Field{Name: "Count"}}),
			R: StateIs("Computed"),
		},
	}

	first, err := p.Eval(env)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := p.Eval(env)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("verdict changed on re-evaluation: %v then %v", first, again)
		}
	}
}

func TestProtocolValueComparesAsString(t *testing.T) {
	env := &Env{Params: map[string]any{"s": protocol.Value("Open")}}
	got, err := Eq(Var{Name: "s"}, Lit{V: "Open"}).Eval(env)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("protocol.Value did not compare equal to its string form")
	}
}
