package contract

// Structural helpers shared by the verifiers. The static verifier uses
// RewritePred to instantiate callee clauses with actual arguments and
// Negate to learn from the else branch of a condition.

// RewriteTerm rebuilds t bottom-up, applying f to every node after its
// children were rewritten.
func RewriteTerm(t Term, f func(Term) Term) Term {
	switch n := t.(type) {
	case Old:
		return f(Old{T: RewriteTerm(n.T, f)})
	default:
		return f(t)
	}
}

// RewritePred rebuilds p, applying f to every term it contains.
func RewritePred(p Pred, f func(Term) Term) Pred {
	switch n := p.(type) {
	case Compare:
		return Compare{Op: n.Op, L: RewriteTerm(n.L, f), R: RewriteTerm(n.R, f)}
	case Not:
		return Not{P: RewritePred(n.P, f)}
	case And:
		return And{L: RewritePred(n.L, f), R: RewritePred(n.R, f)}
	case Or:
		return Or{L: RewritePred(n.L, f), R: RewritePred(n.R, f)}
	case Implies:
		return Implies{L: RewritePred(n.L, f), R: RewritePred(n.R, f)}
	default:
		// True and InState carry no terms; InState is rewritten away by
		// the static verifier before it reaches here.
		return p
	}
}

// WalkTerms visits every term in p.
func WalkTerms(p Pred, visit func(Term)) {
	RewritePred(p, func(t Term) Term {
		visit(t)
		return t
	})
}

// OldTerms returns the distinct old() terms referenced by clauses, in
// first-appearance order. The runtime verifier snapshots exactly these at
// call entry.
func OldTerms(clauses []Clause) []Old {
	seen := make(map[string]bool)
	var out []Old
	for _, c := range clauses {
		WalkTerms(c.Pred, func(t Term) {
			if o, ok := t.(Old); ok && !seen[o.String()] {
				seen[o.String()] = true
				out = append(out, o)
			}
		})
	}
	return out
}

// Negate returns a predicate equivalent to !p, pushed through the
// operators the static verifier can use as facts.
func Negate(p Pred) Pred {
	switch n := p.(type) {
	case Compare:
		return Compare{Op: n.Op.Negated(), L: n.L, R: n.R}
	case Not:
		return n.P
	case And:
		return Or{L: Negate(n.L), R: Negate(n.R)}
	case Or:
		return And{L: Negate(n.L), R: Negate(n.R)}
	case Implies:
		return And{L: n.L, R: Negate(n.R)}
	default:
		return Not{P: p}
	}
}

// Conjuncts flattens nested conjunctions into a list.
func Conjuncts(p Pred) []Pred {
	if a, ok := p.(And); ok {
		return append(Conjuncts(a.L), Conjuncts(a.R)...)
	}
	return []Pred{p}
}

// Disjuncts flattens nested disjunctions into a list.
func Disjuncts(p Pred) []Pred {
	if o, ok := p.(Or); ok {
		return append(Disjuncts(o.L), Disjuncts(o.R)...)
	}
	return []Pred{p}
}
