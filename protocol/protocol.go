package protocol

import "fmt"

// Value is one abstract state in a finite protocol domain.
type Value string

// ----- State sets -----

type Set map[Value]struct{}

func NewSet(vs ...Value) Set {
	s := make(Set)
	for _, v := range vs {
		s.Add(v)
	}
	return s
}

func (s Set) Has(v Value) bool { _, ok := s[v]; return ok }
func (s Set) Add(v Value)      { s[v] = struct{}{} }
func (s Set) Size() int        { return len(s) }

func (s Set) Copy() Set {
	out := make(Set)
	for v := range s {
		out.Add(v)
	}
	return out
}

// Values returns the members in domain declaration order when a domain is
// given, so rendered output is stable.
func (s Set) Values(d *Domain) []Value {
	if d == nil {
		out := make([]Value, 0, len(s))
		for v := range s {
			out = append(out, v)
		}
		return out
	}
	out := make([]Value, 0, len(s))
	for _, v := range d.Values {
		if s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// Outcome is one postcondition branch of a transition rule. When is the
// operation result that selects this branch; Next is the set of abstract
// states the instance may be left in.
type Outcome struct {
	Any    bool // matches every result (also operations with no result)
	Result any  // matched against the concrete result when Any is false
	Next   Set
}

func (o Outcome) Matches(result any) bool {
	return o.Any || o.Result == result
}

// Rule maps one operation to its precondition-over-state and its
// result-keyed postcondition branches.
type Rule struct {
	Op   string
	Pre  Set
	Post []Outcome
}

// ResultStates returns the postcondition branch selected by a concrete
// result, or false when no declared branch matches it.
func (r *Rule) ResultStates(result any) (Set, bool) {
	for _, o := range r.Post {
		if o.Matches(result) {
			return o.Next, true
		}
	}
	return nil, false
}

// Domain is a finite abstract-state domain with one initial value and a
// transition relation indexed by operation name.
type Domain struct {
	Name    string
	Values  []Value
	Initial Value
	rules   map[string]*Rule
	ops     []string // rule insertion order, for stable rendering
}

func NewDomain(name string, initial Value, values ...Value) *Domain {
	d := &Domain{
		Name:    name,
		Initial: initial,
		rules:   make(map[string]*Rule),
	}
	d.Values = append(d.Values, values...)
	if !d.Contains(initial) {
		d.Values = append([]Value{initial}, d.Values...)
	}
	return d
}

func (d *Domain) Contains(v Value) bool {
	for _, x := range d.Values {
		if x == v {
			return true
		}
	}
	return false
}

// Allow declares the states an operation may be entered from. Postcondition
// branches are attached with OnResult/Always on the returned rule.
func (d *Domain) Allow(op string, from ...Value) *Rule {
	r, ok := d.rules[op]
	if !ok {
		r = &Rule{Op: op, Pre: NewSet()}
		d.rules[op] = r
		d.ops = append(d.ops, op)
	}
	for _, v := range from {
		r.Pre.Add(v)
	}
	return r
}

// OnResult adds a postcondition branch selected when the operation result
// equals result.
func (r *Rule) OnResult(result any, next ...Value) *Rule {
	r.Post = append(r.Post, Outcome{Result: result, Next: NewSet(next...)})
	return r
}

// Always adds a postcondition branch that matches every result.
func (r *Rule) Always(next ...Value) *Rule {
	r.Post = append(r.Post, Outcome{Any: true, Next: NewSet(next...)})
	return r
}

// Rule returns the transition rule for an operation, if one was declared.
func (d *Domain) Rule(op string) (*Rule, bool) {
	r, ok := d.rules[op]
	return r, ok
}

// Ops returns operation names with rules, in declaration order.
func (d *Domain) Ops() []string {
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

// Validate checks that every rule stays inside the declared domain.
func (d *Domain) Validate() error {
	if !d.Contains(d.Initial) {
		return fmt.Errorf("protocol %s: initial state %q outside domain", d.Name, d.Initial)
	}
	for _, op := range d.ops {
		r := d.rules[op]
		for v := range r.Pre {
			if !d.Contains(v) {
				return fmt.Errorf("protocol %s: op %s precondition state %q outside domain", d.Name, op, v)
			}
		}
		for _, o := range r.Post {
			for v := range o.Next {
				if !d.Contains(v) {
					return fmt.Errorf("protocol %s: op %s postcondition state %q outside domain", d.Name, op, v)
				}
			}
		}
	}
	return nil
}
