package static

import (
	"strings"

	"github.com/rfielding/dbc/contract"
)

// Clause predicates are written against the callee: its parameters, its
// fields, its abstract state, its result. Before they can be matched
// against caller-side facts they are instantiated: parameters become the
// actual argument terms, fields become qualified locals ("d.Data"),
// state membership becomes comparisons on the synthetic state variable
// ("d.state"), and result becomes the destination local.

func stateVar(recv string) contract.Term {
	return contract.Var{Name: recv + ".state"}
}

// lowerPred rewrites InState predicates into comparisons over the
// receiver's state variable and pushes negations into comparisons, so
// every fact the checker handles is built from Compare/And/Or/Not.
func lowerPred(p contract.Pred, recv string) contract.Pred {
	switch n := p.(type) {
	case contract.InState:
		preds := make([]contract.Pred, len(n.Values))
		for i, v := range n.Values {
			preds[i] = contract.Compare{Op: contract.OpEq, L: stateVar(recv), R: contract.Lit{V: string(v)}}
		}
		return contract.Disj(preds...)
	case contract.Not:
		inner := lowerPred(n.P, recv)
		if cmp, ok := inner.(contract.Compare); ok {
			return contract.Compare{Op: cmp.Op.Negated(), L: cmp.L, R: cmp.R}
		}
		return contract.Not{P: inner}
	case contract.And:
		return contract.And{L: lowerPred(n.L, recv), R: lowerPred(n.R, recv)}
	case contract.Or:
		return contract.Or{L: lowerPred(n.L, recv), R: lowerPred(n.R, recv)}
	case contract.Implies:
		return contract.Or{L: lowerPred(contract.Not{P: n.L}, recv), R: lowerPred(n.R, recv)}
	default:
		return p
	}
}

// substitution instantiates a callee clause at one call site.
type substitution struct {
	recv   string
	args   map[string]contract.Term               // callee param -> caller term
	result contract.Term                          // nil: result not bindable here
	old    func(contract.Term) (contract.Term, bool) // nil: old() not bindable here
}

// apply returns the instantiated predicate. ok is false when the clause
// references something this site cannot bind (an old() or result with no
// binding); such a clause can never be discharged syntactically.
func (s substitution) apply(p contract.Pred) (contract.Pred, bool) {
	ok := true
	out := contract.RewritePred(lowerPred(p, s.recv), func(t contract.Term) contract.Term {
		switch n := t.(type) {
		case contract.Var:
			if s.args != nil {
				if actual, bound := s.args[n.Name]; bound {
					return actual
				}
			}
			return n
		case contract.Field:
			return contract.Var{Name: s.recv + "." + n.Name}
		case contract.Result:
			if s.result == nil {
				ok = false
				return t
			}
			return s.result
		case contract.Old:
			if s.old == nil {
				ok = false
				return t
			}
			bound, stable := s.old(n.T)
			if !stable {
				ok = false
				return t
			}
			return bound
		default:
			return t
		}
	})
	return out, ok
}

// ----- term utilities -----

// resolveTerm substitutes locals by their defining terms. Definitions are
// stored fully resolved, so one pass suffices.
func resolveTerm(t contract.Term, defs map[string]contract.Term) contract.Term {
	return contract.RewriteTerm(t, func(x contract.Term) contract.Term {
		if v, ok := x.(contract.Var); ok {
			if def, has := defs[v.Name]; has {
				return def
			}
		}
		return x
	})
}

func resolvePred(p contract.Pred, defs map[string]contract.Term) contract.Pred {
	return contract.RewritePred(p, func(x contract.Term) contract.Term {
		return resolveTerm(x, defs)
	})
}

func termMentions(t contract.Term, match func(string) bool) bool {
	found := false
	contract.RewriteTerm(t, func(x contract.Term) contract.Term {
		if v, ok := x.(contract.Var); ok && match(v.Name) {
			found = true
		}
		return x
	})
	return found
}

func predMentions(p contract.Pred, match func(string) bool) bool {
	found := false
	contract.WalkTerms(p, func(x contract.Term) {
		if v, ok := x.(contract.Var); ok && match(v.Name) {
			found = true
		}
	})
	return found
}

func matchExact(name string) func(string) bool {
	return func(s string) bool { return s == name }
}

func matchOwned(recv string) func(string) bool {
	prefix := recv + "."
	return func(s string) bool { return strings.HasPrefix(s, prefix) }
}

// contradicts reports whether two comparisons over the same left-hand
// term cannot both hold. Only literal right-hand sides are decided; the
// answer is conservative otherwise.
func contradicts(a, b contract.Pred) bool {
	ca, ok := a.(contract.Compare)
	if !ok {
		return false
	}
	cb, ok := b.(contract.Compare)
	if !ok {
		return false
	}
	if ca.L.String() != cb.L.String() {
		return false
	}
	la, ok := ca.R.(contract.Lit)
	if !ok {
		return false
	}
	lb, ok := cb.R.(contract.Lit)
	if !ok {
		return false
	}
	sameRHS := la.String() == lb.String()
	switch {
	case ca.Op == contract.OpEq && cb.Op == contract.OpEq:
		return !sameRHS
	case ca.Op == contract.OpEq && cb.Op == contract.OpNe:
		return sameRHS
	case ca.Op == contract.OpNe && cb.Op == contract.OpEq:
		return sameRHS
	}
	return false
}
