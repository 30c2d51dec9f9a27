package static

import (
	"context"
	"fmt"

	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/diag"
	"github.com/rfielding/dbc/logging"
	"github.com/rfielding/dbc/protocol"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxVisits bounds per-block revisits. When the bound is hit the
// block's knowledge is widened to the empty fact set, so anything the
// unexplored iterations might have proven is reported unproven instead.
const DefaultMaxVisits = 8

// Checker runs the symbolic walk. It holds no mutable state across
// functions, so per-function analyses run in parallel.
type Checker struct {
	maxVisits int
	log       *logging.Logger
}

type Option func(*Checker)

func WithLogger(l *logging.Logger) Option {
	return func(c *Checker) { c.log = l }
}

func WithMaxVisits(n int) Option {
	return func(c *Checker) { c.maxVisits = n }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{maxVisits: DefaultMaxVisits, log: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check analyzes every function in the program and returns the sorted
// diagnostic report. Diagnostics are warnings, never fatal: whether an
// unproven obligation fails a build is the caller's policy.
func (c *Checker) Check(ctx context.Context, prog *Program) (*diag.Report, error) {
	if prog.Registry == nil || !prog.Registry.Frozen() {
		return nil, fmt.Errorf("program registry must be frozen before analysis")
	}

	results := make([][]diag.Diagnostic, len(prog.Funcs))
	g, ctx := errgroup.WithContext(ctx)
	for i, fn := range prog.Funcs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = c.checkFunc(fn, prog.Registry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := diag.NewReport()
	for _, ds := range results {
		for _, d := range ds {
			report.Add(d)
		}
	}
	report.Sort()
	return report, nil
}

// absState is the abstract state at one program point: the facts known on
// every path here, plus straight-line definitions for copy propagation.
type absState struct {
	facts FactSet
	defs  map[string]contract.Term
}

func newAbsState() *absState {
	return &absState{facts: NewFactSet(), defs: make(map[string]contract.Term)}
}

func (s *absState) copy() *absState {
	out := newAbsState()
	out.facts = s.facts.Copy()
	for k, v := range s.defs {
		out.defs[k] = v
	}
	return out
}

func (s *absState) join(other *absState) *absState {
	out := newAbsState()
	out.facts = s.facts.Intersect(other.facts)
	for k, v := range s.defs {
		if o, ok := other.defs[k]; ok && o.String() == v.String() {
			out.defs[k] = v
		}
	}
	return out
}

func (s *absState) equals(other *absState) bool {
	if !s.facts.Equals(other.facts) {
		return false
	}
	if len(s.defs) != len(other.defs) {
		return false
	}
	for k, v := range s.defs {
		o, ok := other.defs[k]
		if !ok || o.String() != v.String() {
			return false
		}
	}
	return true
}

// add records a predicate as known, conjunct by conjunct. New atomic
// comparisons refine existing disjunctive facts, and new disjunctions are
// filtered against what is already known, so the effect is order
// independent.
func (s *absState) add(p contract.Pred) {
	for _, conj := range contract.Conjuncts(p) {
		switch n := conj.(type) {
		case contract.True:
		case contract.Or:
			s.addOr(n)
		default:
			s.facts.Add(conj)
			if cmp, ok := conj.(contract.Compare); ok {
				s.refine(cmp)
			}
		}
	}
}

func (s *absState) addOr(or contract.Or) {
	disjuncts := contract.Disjuncts(or)
	var kept []contract.Pred
	for _, d := range disjuncts {
		if !s.disjunctContradicted(d) {
			kept = append(kept, d)
		}
	}
	switch {
	case len(kept) == 0:
		// Every disjunct contradicts known facts: the path is infeasible.
		// Keep the raw fact and learn nothing extra.
		s.facts.Add(or)
	case len(kept) == 1:
		s.add(kept[0])
	default:
		s.facts.Add(contract.Disj(kept...))
	}
}

func (s *absState) disjunctContradicted(d contract.Pred) bool {
	for _, conj := range contract.Conjuncts(d) {
		for _, f := range s.facts {
			if cmp, ok := f.(contract.Compare); ok && contradicts(cmp, conj) {
				return true
			}
		}
	}
	return false
}

// refine is the case-split rule: a disjunctive fact loses every disjunct
// that contradicts q, and when exactly one disjunct survives its
// conjuncts become plain facts. This is how "if result { ... }" turns a
// result-keyed postcondition into knowledge on the taken branch.
func (s *absState) refine(q contract.Compare) {
	for text, p := range s.facts {
		or, ok := p.(contract.Or)
		if !ok {
			continue
		}
		disjuncts := contract.Disjuncts(or)
		var kept []contract.Pred
		for _, d := range disjuncts {
			dropped := false
			for _, conj := range contract.Conjuncts(d) {
				if contradicts(q, conj) {
					dropped = true
					break
				}
			}
			if !dropped {
				kept = append(kept, d)
			}
		}
		if len(kept) == len(disjuncts) || len(kept) == 0 {
			continue
		}
		s.facts.Remove(text)
		if len(kept) == 1 {
			s.add(kept[0])
		} else {
			s.facts.Add(contract.Disj(kept...))
		}
	}
}

func (s *absState) havoc(match func(string) bool) {
	for text, p := range s.facts {
		if predMentions(p, match) {
			s.facts.Remove(text)
		}
	}
	for name, def := range s.defs {
		if match(name) || termMentions(def, match) {
			delete(s.defs, name)
		}
	}
}

// obligations tracks proof status per (site, clause). A clause counts as
// proven only if it was discharged on every visit of its block, so the
// weakest fixpoint state decides.
type obligations struct {
	byKey map[string]*obligation
	order []string
}

type obligation struct {
	loc     diag.Location
	op      string
	clause  string
	message string
	proven  bool
}

func newObligations() *obligations {
	return &obligations{byKey: make(map[string]*obligation)}
}

func (o *obligations) record(loc diag.Location, op, clause, message string, proven bool) {
	key := loc.String() + "|" + op + "|" + clause
	if ob, ok := o.byKey[key]; ok {
		ob.proven = ob.proven && proven
		return
	}
	o.byKey[key] = &obligation{loc: loc, op: op, clause: clause, message: message, proven: proven}
	o.order = append(o.order, key)
}

func (o *obligations) unproven() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, key := range o.order {
		ob := o.byKey[key]
		if ob.proven {
			continue
		}
		out = append(out, diag.Diagnostic{
			Severity:  diag.SeverityWarning,
			Location:  ob.loc,
			Operation: ob.op,
			Clause:    ob.clause,
			Message:   ob.message,
		})
	}
	return out
}

// checkFunc walks one function body to a bounded fixpoint.
func (c *Checker) checkFunc(fn *Function, reg *contract.Registry) []diag.Diagnostic {
	entry := fn.entry()
	if entry == nil {
		return nil
	}

	obls := newObligations()
	in := map[string]*absState{entry.Label: c.entryState(fn, reg)}
	visits := map[string]int{entry.Label: 1}
	widened := map[string]bool{}
	fresh := 0

	work := []string{entry.Label}
	propagate := func(target string, st *absState) {
		if widened[target] {
			return
		}
		cur, ok := in[target]
		next := st
		if ok {
			next = cur.join(st)
			if next.equals(cur) {
				return
			}
		}
		visits[target]++
		if visits[target] > c.maxVisits {
			// Loop bound hit: widen to no knowledge. Obligations beyond
			// here report unproven, never proven.
			next = newAbsState()
			widened[target] = true
			c.log.Debug("visit bound hit", "func", fn.Name, "block", target)
		}
		in[target] = next
		work = append(work, target)
	}

	for len(work) > 0 {
		label := work[0]
		work = work[1:]
		block, ok := fn.byLabel[label]
		if !ok {
			continue
		}
		st := in[label].copy()

		for _, instr := range block.Instrs {
			switch ins := instr.(type) {
			case Assign:
				src := resolveTerm(ins.Src, st.defs)
				st.havoc(matchExact(ins.Dst))
				if !termMentions(src, matchExact(ins.Dst)) {
					st.defs[ins.Dst] = src
				}
			case Call:
				c.applyCall(fn, ins, reg, st, obls, &fresh)
			}
		}

		switch term := block.Term.(type) {
		case Goto:
			propagate(term.Target, st)
		case If:
			cond := resolvePred(lowerPred(term.Cond, fn.Recv), st.defs)
			thenSt := st.copy()
			thenSt.add(cond)
			propagate(term.Then, thenSt)
			elseSt := st.copy()
			elseSt.add(contract.Negate(cond))
			propagate(term.Else, elseSt)
		case Ret:
			c.checkReturn(fn, term, reg, st, obls)
		}
	}

	return obls.unproven()
}

// entryState assumes what a verified implementation may assume: its own
// declared Requires, the protocol state precondition, and the type
// invariants. old() terms referenced by its Ensures are aliased to their
// entry values for straight-line propagation.
func (c *Checker) entryState(fn *Function, reg *contract.Registry) *absState {
	st := newAbsState()
	for _, p := range fn.Assumes {
		st.add(lowerPred(p, fn.Recv))
	}
	if fn.Type == "" {
		return st
	}
	typ, ok := reg.Type(fn.Type)
	if !ok {
		return st
	}

	sub := substitution{recv: fn.Recv}
	if op, ok := typ.Op(fn.Name); ok {
		for _, cl := range op.Requires {
			if p, ok := sub.apply(cl.Pred); ok {
				st.add(p)
			}
		}
		if typ.States != nil {
			if rule, ok := typ.States.Rule(fn.Name); ok {
				pre := contract.InState{Values: rule.Pre.Values(typ.States)}
				if p, ok := sub.apply(pre); ok {
					st.add(p)
				}
			}
		}
		for _, o := range contract.OldTerms(op.Ensures) {
			inner, ok := sub.apply(contract.Eq(o.T, o.T))
			if !ok {
				continue
			}
			qualified := inner.(contract.Compare).L
			st.defs["old("+qualified.String()+")"] = qualified
		}
	}
	for _, inv := range typ.Invariants {
		if p, ok := sub.apply(inv.Pred); ok {
			st.add(p)
		}
	}
	return st
}

// applyCall instantiates the callee's preconditions as obligations,
// discharges what it can, then applies the callee's declared effect: its
// Ensures, its protocol postcondition and its type invariants are all the
// caller learns — bodies are never inlined.
func (c *Checker) applyCall(fn *Function, call Call, reg *contract.Registry, st *absState, obls *obligations, fresh *int) {
	typ, ok := reg.Type(call.TypeName)
	if !ok {
		// Uncontracted callee: all knowledge about the receiver and the
		// destination is gone.
		st.havoc(matchOwned(call.Recv))
		if call.Dst != "" {
			st.havoc(matchExact(call.Dst))
		}
		return
	}
	op, hasOp := typ.Op(call.Op)

	resolvedArgs := make(map[string]contract.Term, len(call.Args))
	for name, t := range call.Args {
		resolvedArgs[name] = resolveTerm(t, st.defs)
	}
	fq := typ.Name + "." + call.Op

	// Obligations: protocol state precondition first, then Requires, in
	// declared order — mirroring runtime evaluation order.
	preSub := substitution{recv: call.Recv, args: resolvedArgs}
	if typ.States != nil {
		if rule, ok := typ.States.Rule(call.Op); ok {
			pre := contract.InState{Values: rule.Pre.Values(typ.States)}
			c.obligate(call, fq, pre.String(), pre, preSub, st, obls)
		}
	}
	if hasOp {
		for _, cl := range op.Requires {
			c.obligate(call, fq, cl.Text(), cl.Pred, preSub, st, obls)
		}
	}

	// Result binding: a discarded result still keys disjunctive
	// postconditions, it just can never be case-split later.
	var resultTerm contract.Term
	if call.Dst != "" {
		resultTerm = contract.Var{Name: call.Dst}
	} else {
		*fresh++
		resultTerm = contract.Var{Name: fmt.Sprintf("%s#r%d", call.Recv, *fresh)}
	}

	// old() inside the callee's Ensures means "before this call": bind it
	// to the pre-call resolution when that survives the havoc below.
	clobbered := func(name string) bool {
		return matchOwned(call.Recv)(name) || (call.Dst != "" && name == call.Dst) ||
			name == resultTerm.String()
	}
	oldBind := func(t contract.Term) (contract.Term, bool) {
		resolved := resolveTerm(t, st.defs)
		if termMentions(resolved, clobbered) {
			return nil, false
		}
		return resolved, true
	}
	postSub := substitution{recv: call.Recv, args: resolvedArgs, result: resultTerm, old: oldBind}

	var learned []contract.Pred
	if hasOp {
		for _, cl := range op.Ensures {
			if p, ok := postSub.apply(cl.Pred); ok {
				learned = append(learned, p)
			}
		}
	}
	if typ.States != nil {
		if rule, ok := typ.States.Rule(call.Op); ok {
			if p := protocolPost(rule, typ.States, call.Recv, resultTerm); p != nil {
				learned = append(learned, p)
			}
		}
	}
	for _, inv := range typ.Invariants {
		if p, ok := postSub.apply(inv.Pred); ok {
			learned = append(learned, p)
		}
	}

	st.havoc(matchOwned(call.Recv))
	if call.Dst != "" {
		st.havoc(matchExact(call.Dst))
	}
	for _, p := range learned {
		st.add(p)
	}
}

func (c *Checker) obligate(call Call, fq, clauseText string, pred contract.Pred, sub substitution, st *absState, obls *obligations) {
	inst, ok := sub.apply(pred)
	proven := ok && c.discharge(inst, st)
	msg := fmt.Sprintf("cannot prove %s of %s: %s", contract.KindRequires, fq, clauseText)
	obls.record(call.At, fq, clauseText, msg, proven)
	if !proven {
		c.log.Debug("unproven obligation", "op", fq, "clause", clauseText, "at", call.At.String())
	}
}

// checkReturn discharges the function's own Ensures against the facts
// accumulated on this return path, with result bound to the returned term
// and old() bound to the entry aliases.
func (c *Checker) checkReturn(fn *Function, ret Ret, reg *contract.Registry, st *absState, obls *obligations) {
	if fn.Type == "" {
		return
	}
	typ, ok := reg.Type(fn.Type)
	if !ok {
		return
	}
	op, ok := typ.Op(fn.Name)
	if !ok {
		return
	}

	var resultTerm contract.Term
	if ret.Val != nil {
		resultTerm = resolveTerm(ret.Val, st.defs)
	}
	oldBind := func(t contract.Term) (contract.Term, bool) {
		return contract.Var{Name: "old(" + t.String() + ")"}, true
	}
	sub := substitution{recv: fn.Recv, result: resultTerm, old: oldBind}
	fq := typ.Name + "." + fn.Name

	for _, cl := range op.Ensures {
		inst, ok := sub.apply(cl.Pred)
		proven := ok && c.discharge(inst, st)
		msg := fmt.Sprintf("cannot establish %s of %s on this return path: %s",
			contract.KindEnsures, fq, cl.Text())
		obls.record(ret.At, fq, cl.Text(), msg, proven)
	}
}

// discharge attempts to prove an instantiated predicate from the current
// facts: constant evaluation, then per-conjunct syntactic match after
// copy propagation, with disjunctions covered when any one disjunct is
// fully known.
func (c *Checker) discharge(p contract.Pred, st *absState) bool {
	resolved := resolvePred(p, st.defs)
	for _, conj := range contract.Conjuncts(resolved) {
		if !c.dischargeOne(conj, st) {
			return false
		}
	}
	return true
}

func (c *Checker) dischargeOne(p contract.Pred, st *absState) bool {
	if _, ok := p.(contract.True); ok {
		return true
	}
	// Fully constant predicates evaluate under an empty env; anything
	// still symbolic errors out and falls through to the fact match.
	if v, err := p.Eval(&contract.Env{}); err == nil {
		return v
	}
	if cmp, ok := p.(contract.Compare); ok {
		if cmp.Op == contract.OpEq && cmp.L.String() == cmp.R.String() {
			return true
		}
	}
	if st.facts.Has(p.String()) {
		return true
	}
	if or, ok := p.(contract.Or); ok {
		for _, d := range contract.Disjuncts(or) {
			all := true
			for _, conj := range contract.Conjuncts(d) {
				if !c.dischargeOne(conj, st) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
	}
	return false
}

// protocolPost renders a transition rule's postcondition as a fact over
// the receiver's state variable, keyed on the bound result: one disjunct
// per declared outcome.
func protocolPost(rule *protocol.Rule, dom *protocol.Domain, recv string, result contract.Term) contract.Pred {
	var branches []contract.Pred
	for _, o := range rule.Post {
		var parts []contract.Pred
		if !o.Any {
			parts = append(parts, contract.Eq(result, contract.Lit{V: o.Result}))
		}
		states := o.Next.Values(dom)
		stateAlts := make([]contract.Pred, len(states))
		for i, v := range states {
			stateAlts[i] = contract.Compare{Op: contract.OpEq, L: stateVar(recv), R: contract.Lit{V: string(v)}}
		}
		parts = append(parts, contract.Disj(stateAlts...))
		branches = append(branches, contract.Conj(parts...))
	}
	if len(branches) == 0 {
		return nil
	}
	return contract.Disj(branches...)
}
