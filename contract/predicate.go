package contract

import (
	"fmt"
	"strings"

	"github.com/rfielding/dbc/protocol"
)

// Predicates are boolean expression trees over call parameters, instance
// fields, the abstract protocol state, old() snapshots and the operation
// result. One evaluator serves both the runtime verifier (concrete Env)
// and the static verifier (canonical String forms matched syntactically).

// Env carries the bindings one evaluation runs against. Evaluation is
// read-only; an Env is never mutated by Eval.
type Env struct {
	Params    map[string]any
	Fields    map[string]any
	State     protocol.Value
	Old       map[string]any // keyed by the inner term's String()
	Result    any
	HasResult bool
}

// Term is a value-producing expression.
type Term interface {
	Eval(env *Env) (any, error)
	String() string
}

// Var references a call parameter (or, in static analysis, a local).
type Var struct {
	Name string
}

func (v Var) Eval(env *Env) (any, error) {
	val, ok := env.Params[v.Name]
	if !ok {
		return nil, fmt.Errorf("unbound variable %q", v.Name)
	}
	return val, nil
}

func (v Var) String() string { return v.Name }

// Field references a caller-observable instance field.
type Field struct {
	Name string
}

func (f Field) Eval(env *Env) (any, error) {
	val, ok := env.Fields[f.Name]
	if !ok {
		return nil, fmt.Errorf("unbound field %q", f.Name)
	}
	return val, nil
}

func (f Field) String() string { return "this." + f.Name }

// Old is the value of T snapshotted at call entry. Only meaningful in
// Ensures clauses.
type Old struct {
	T Term
}

func (o Old) Eval(env *Env) (any, error) {
	val, ok := env.Old[o.T.String()]
	if !ok {
		return nil, fmt.Errorf("old(%s) was not snapshotted at entry", o.T)
	}
	return val, nil
}

func (o Old) String() string { return fmt.Sprintf("old(%s)", o.T) }

// Result is the value produced by the operation. Only meaningful in
// Ensures clauses.
type Result struct{}

func (Result) Eval(env *Env) (any, error) {
	if !env.HasResult {
		return nil, fmt.Errorf("result referenced outside a postcondition context")
	}
	return env.Result, nil
}

func (Result) String() string { return "result" }

// Lit is a constant. A nil V is the null literal.
type Lit struct {
	V any
}

func (l Lit) Eval(env *Env) (any, error) { return l.V, nil }

func (l Lit) String() string {
	if l.V == nil {
		return "nil"
	}
	if s, ok := l.V.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", l.V)
}

// Pred is a boolean expression tree.
type Pred interface {
	Eval(env *Env) (bool, error)
	String() string
}

// True is the trivially satisfied predicate.
type True struct{}

func (True) Eval(env *Env) (bool, error) { return true, nil }
func (True) String() string              { return "true" }

type CmpOp int

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// Negated returns the comparison with the opposite verdict.
func (op CmpOp) Negated() CmpOp {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	}
	return OpLt
}

// Compare is L <op> R.
type Compare struct {
	Op   CmpOp
	L, R Term
}

func (c Compare) Eval(env *Env) (bool, error) {
	l, err := c.L.Eval(env)
	if err != nil {
		return false, err
	}
	r, err := c.R.Eval(env)
	if err != nil {
		return false, err
	}
	return compareValues(c.Op, l, r)
}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.L, c.Op, c.R)
}

// InState holds when the instance's abstract state is one of Values.
type InState struct {
	Values []protocol.Value
}

func (s InState) Eval(env *Env) (bool, error) {
	for _, v := range s.Values {
		if env.State == v {
			return true, nil
		}
	}
	return false, nil
}

func (s InState) String() string {
	if len(s.Values) == 1 {
		return fmt.Sprintf("state == %s", s.Values[0])
	}
	parts := make([]string, len(s.Values))
	for i, v := range s.Values {
		parts[i] = string(v)
	}
	return fmt.Sprintf("state in {%s}", strings.Join(parts, ", "))
}

// Not is logical negation.
type Not struct {
	P Pred
}

func (n Not) Eval(env *Env) (bool, error) {
	v, err := n.P.Eval(env)
	return !v, err
}

func (n Not) String() string { return fmt.Sprintf("!(%s)", n.P) }

// And is conjunction. Evaluation short-circuits left to right.
type And struct {
	L, R Pred
}

func (a And) Eval(env *Env) (bool, error) {
	l, err := a.L.Eval(env)
	if err != nil || !l {
		return false, err
	}
	return a.R.Eval(env)
}

func (a And) String() string { return fmt.Sprintf("(%s && %s)", a.L, a.R) }

// Or is disjunction. Evaluation short-circuits left to right.
type Or struct {
	L, R Pred
}

func (o Or) Eval(env *Env) (bool, error) {
	l, err := o.L.Eval(env)
	if err != nil || l {
		return l, err
	}
	return o.R.Eval(env)
}

func (o Or) String() string { return fmt.Sprintf("(%s || %s)", o.L, o.R) }

// Implies is material implication: L -> R == !L || R.
type Implies struct {
	L, R Pred
}

func (im Implies) Eval(env *Env) (bool, error) {
	l, err := im.L.Eval(env)
	if err != nil || !l {
		return true, err
	}
	return im.R.Eval(env)
}

func (im Implies) String() string { return fmt.Sprintf("(%s -> %s)", im.L, im.R) }

// ----- Constructors -----

func Eq(l, r Term) Pred { return Compare{Op: OpEq, L: l, R: r} }
func Ne(l, r Term) Pred { return Compare{Op: OpNe, L: l, R: r} }
func Lt(l, r Term) Pred { return Compare{Op: OpLt, L: l, R: r} }
func Le(l, r Term) Pred { return Compare{Op: OpLe, L: l, R: r} }
func Gt(l, r Term) Pred { return Compare{Op: OpGt, L: l, R: r} }
func Ge(l, r Term) Pred { return Compare{Op: OpGe, L: l, R: r} }

// NotNil holds when t is neither nil nor a typed nil-equivalent literal.
func NotNil(t Term) Pred { return Compare{Op: OpNe, L: t, R: Lit{}} }

// StateIs holds when the abstract state is one of vs.
func StateIs(vs ...protocol.Value) Pred { return InState{Values: vs} }

// Conj folds preds into a right-leaning conjunction.
func Conj(preds ...Pred) Pred {
	if len(preds) == 0 {
		return True{}
	}
	out := preds[len(preds)-1]
	for i := len(preds) - 2; i >= 0; i-- {
		out = And{L: preds[i], R: out}
	}
	return out
}

// Disj folds preds into a right-leaning disjunction.
func Disj(preds ...Pred) Pred {
	if len(preds) == 0 {
		return True{}
	}
	out := preds[len(preds)-1]
	for i := len(preds) - 2; i >= 0; i-- {
		out = Or{L: preds[i], R: out}
	}
	return out
}
