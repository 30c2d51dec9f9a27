package static

import (
	"sort"

	"github.com/rfielding/dbc/contract"
)

// A fact is a predicate known true on every path into the current
// program point, keyed by its canonical text. Facts here are already
// instantiated: they range over caller locals (contract.Var) and
// literals only.

type FactSet map[string]contract.Pred

func NewFactSet() FactSet { return make(FactSet) }

func (s FactSet) Has(text string) bool { _, ok := s[text]; return ok }

// Add records p, decomposing conjunctions into individual facts.
func (s FactSet) Add(p contract.Pred) {
	for _, c := range contract.Conjuncts(p) {
		if _, trivial := c.(contract.True); trivial {
			continue
		}
		s[c.String()] = c
	}
}

func (s FactSet) Remove(text string) { delete(s, text) }

func (s FactSet) Copy() FactSet {
	out := NewFactSet()
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Intersect is the conservative merge-point join: a fact survives only if
// it is known on every incoming path. This is what makes the checker
// sound but incomplete.
func (s FactSet) Intersect(other FactSet) FactSet {
	out := NewFactSet()
	for k, v := range s {
		if other.Has(k) {
			out[k] = v
		}
	}
	return out
}

func (s FactSet) Equals(other FactSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Texts returns the fact texts in sorted order.
func (s FactSet) Texts() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
