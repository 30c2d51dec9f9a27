package contract

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/rfielding/dbc/protocol"
)

// Kind classifies a clause.
type Kind int

const (
	KindRequires Kind = iota
	KindEnsures
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindRequires:
		return "requires"
	case KindEnsures:
		return "ensures"
	case KindInvariant:
		return "invariant"
	}
	return "unknown"
}

// Clause is one contract rule attached to an operation or a type.
type Clause struct {
	Kind  Kind
	Label string // optional short name; Text falls back to the predicate
	Pred  Pred
}

// Text is the canonical rendering used in violations and diagnostics.
func (c Clause) Text() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Pred.String()
}

// Operation declares one verifiable operation: name, parameter names, and
// ordered Requires/Ensures lists.
type Operation struct {
	Name     string
	Params   []string
	Requires []Clause
	Ensures  []Clause
}

// Require appends a precondition. Order matters: the runtime verifier
// evaluates in declaration order and stops at the first failure.
func (o *Operation) Require(label string, p Pred) *Operation {
	o.Requires = append(o.Requires, Clause{Kind: KindRequires, Label: label, Pred: p})
	return o
}

// Ensure appends a postcondition.
func (o *Operation) Ensure(label string, p Pred) *Operation {
	o.Ensures = append(o.Ensures, Clause{Kind: KindEnsures, Label: label, Pred: p})
	return o
}

// Type is the contract of one verified type: its invariants, its declared
// operations, and optionally the protocol state domain its instances move
// through.
type Type struct {
	Name       string
	States     *protocol.Domain // nil for types without an explicit protocol
	Invariants []Clause
	ops        map[string]*Operation
	order      []string
}

func NewType(name string, states *protocol.Domain) *Type {
	return &Type{
		Name:   name,
		States: states,
		ops:    make(map[string]*Operation),
	}
}

// Invariant appends a type invariant, checked after every completed
// public operation.
func (t *Type) Invariant(label string, p Pred) *Type {
	t.Invariants = append(t.Invariants, Clause{Kind: KindInvariant, Label: label, Pred: p})
	return t
}

// Operation declares (or returns the already-declared) operation.
func (t *Type) Operation(name string, params ...string) *Operation {
	if op, ok := t.ops[name]; ok {
		return op
	}
	op := &Operation{Name: name, Params: params}
	t.ops[name] = op
	t.order = append(t.order, name)
	return op
}

// Op looks up a declared operation.
func (t *Type) Op(name string) (*Operation, bool) {
	op, ok := t.ops[name]
	return op, ok
}

// Operations returns declared operations in declaration order.
func (t *Type) Operations() []*Operation {
	out := make([]*Operation, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.ops[name])
	}
	return out
}

// Registry is the process-wide declaration map keyed by (type, operation).
// It is built once while the program representation loads, then frozen;
// verification never mutates it.
type Registry struct {
	types  map[string]*Type
	order  []string
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Add registers a type contract.
func (r *Registry) Add(t *Type) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen; cannot add type %q", t.Name)
	}
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// RegisterClause attaches one clause to (typeName, opName). An empty
// opName attaches a type invariant.
func (r *Registry) RegisterClause(typeName, opName string, kind Kind, label string, p Pred) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen; cannot register clause on %s.%s", typeName, opName)
	}
	t, ok := r.types[typeName]
	if !ok {
		return fmt.Errorf("unknown type %q", typeName)
	}
	switch kind {
	case KindInvariant:
		t.Invariant(label, p)
	case KindRequires:
		t.Operation(opName).Require(label, p)
	case KindEnsures:
		t.Operation(opName).Ensure(label, p)
	default:
		return fmt.Errorf("unknown clause kind %d", kind)
	}
	return nil
}

// Type looks up a registered type contract.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns registered types in registration order.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// ClausesOf returns the ordered clauses of one kind for (typeName, op).
// Invariants belong to the type; op is ignored for them.
func (r *Registry) ClausesOf(typeName, op string, kind Kind) []Clause {
	t, ok := r.types[typeName]
	if !ok {
		return nil
	}
	if kind == KindInvariant {
		return t.Invariants
	}
	o, ok := t.Op(op)
	if !ok {
		return nil
	}
	if kind == KindRequires {
		return o.Requires
	}
	return o.Ensures
}

func (r *Registry) Frozen() bool { return r.frozen }

// Freeze validates every declaration and makes the registry read-only.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	for _, name := range r.order {
		if err := validateType(r.types[name]); err != nil {
			return err
		}
	}
	r.frozen = true
	return nil
}

func validateType(t *Type) error {
	if t.States != nil {
		if err := t.States.Validate(); err != nil {
			return err
		}
	}
	for _, inv := range t.Invariants {
		if err := checkVisibility(t.Name, "invariant", inv); err != nil {
			return err
		}
	}
	for _, op := range t.Operations() {
		for _, c := range op.Requires {
			// Callers must be able to decide a precondition from the
			// outside: public fields, parameters and the abstract state
			// only, and never the not-yet-existing result.
			if err := checkVisibility(t.Name, op.Name, c); err != nil {
				return err
			}
			if err := forbidTerm(t.Name, op.Name, c, func(tm Term) bool { _, bad := tm.(Result); return bad },
				"requires clause references result"); err != nil {
				return err
			}
			if err := forbidTerm(t.Name, op.Name, c, func(tm Term) bool { _, bad := tm.(Old); return bad },
				"requires clause references old()"); err != nil {
				return err
			}
		}
		if t.States != nil {
			if _, ok := t.States.Rule(op.Name); !ok {
				return fmt.Errorf("type %s: operation %s has no transition rule in protocol %s",
					t.Name, op.Name, t.States.Name)
			}
		}
	}
	return nil
}

func checkVisibility(typeName, where string, c Clause) error {
	var bad string
	WalkTerms(c.Pred, func(tm Term) {
		if f, ok := tm.(Field); ok && !exportedName(f.Name) {
			bad = f.Name
		}
	})
	if bad != "" {
		return fmt.Errorf("type %s, %s, clause %q: references private field %q",
			typeName, where, c.Text(), bad)
	}
	return nil
}

func forbidTerm(typeName, op string, c Clause, bad func(Term) bool, msg string) error {
	found := false
	WalkTerms(c.Pred, func(tm Term) {
		if bad(tm) {
			found = true
		}
	})
	if found {
		return fmt.Errorf("type %s, operation %s, clause %q: %s", typeName, op, c.Text(), msg)
	}
	return nil
}

func exportedName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// SnapshotOld evaluates every old() term referenced by ensures against the
// entry-time env and returns the immutable snapshot map for the call.
func SnapshotOld(ensures []Clause, entry *Env) (map[string]any, error) {
	olds := OldTerms(ensures)
	if len(olds) == 0 {
		return nil, nil
	}
	snap := make(map[string]any, len(olds))
	for _, o := range olds {
		v, err := o.T.Eval(entry)
		if err != nil {
			return nil, fmt.Errorf("snapshotting %s: %w", o, err)
		}
		snap[o.T.String()] = v
	}
	return snap, nil
}
