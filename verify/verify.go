// Package verify evaluates contract clauses against live instances at
// call entry and exit. Evaluation is read-only, synchronous, and stops at
// the first failing clause.
package verify

import (
	"fmt"

	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/logging"
	"github.com/rfielding/dbc/protocol"
	"github.com/google/uuid"
)

// Instance is a live object under verification. Snapshot must expose only
// caller-observable fields; clause evaluation reads nothing else.
type Instance interface {
	ContractType() string
	AbstractState() protocol.Value
	Snapshot() map[string]any
}

// Verifier checks calls against a frozen declaration registry. Concurrent
// calls on distinct instances are fine; the engine does not serialize
// concurrent operations on one instance.
type Verifier struct {
	reg *contract.Registry
	log *logging.Logger
}

type Option func(*Verifier)

func WithLogger(l *logging.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// New builds a verifier over a frozen registry. Freezing first is
// mandatory: declarations are init-then-freeze, never mutated while
// verification runs.
func New(reg *contract.Registry, opts ...Option) (*Verifier, error) {
	if !reg.Frozen() {
		return nil, fmt.Errorf("registry must be frozen before verification")
	}
	v := &Verifier{reg: reg, log: logging.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Call is one verified operation invocation between Enter and Exit.
type Call struct {
	v          *Verifier
	id         uuid.UUID
	inst       Instance
	typ        *contract.Type
	op         *contract.Operation
	args       map[string]any
	old        map[string]any
	entryState protocol.Value
	done       bool
}

// ID is the correlation id shared by this call's log lines and violations.
func (c *Call) ID() uuid.UUID { return c.id }

// Construct checks a freshly built instance: it must sit at the domain's
// initial state and already satisfy every type invariant. Failures are
// implementation errors, not caller errors.
func (v *Verifier) Construct(inst Instance) error {
	typ, ok := v.reg.Type(inst.ContractType())
	if !ok {
		return fmt.Errorf("no contract registered for type %q", inst.ContractType())
	}
	if typ.States != nil && inst.AbstractState() != typ.States.Initial {
		return v.violation(Postcondition, typ, "new", contract.Clause{
			Kind:  contract.KindEnsures,
			Label: fmt.Sprintf("state == %s", typ.States.Initial),
		}, uuid.New(), inst)
	}
	env := v.envFor(inst, nil)
	for _, inv := range typ.Invariants {
		holds, err := inv.Pred.Eval(env)
		if err != nil {
			return fmt.Errorf("evaluating invariant %q: %w", inv.Text(), err)
		}
		if !holds {
			return v.violation(Invariant, typ, "new", inv, uuid.New(), inst)
		}
	}
	return nil
}

// Enter runs call-entry verification: protocol state precondition first,
// then the declared Requires clauses in order, short-circuiting on the
// first failure. On success it snapshots every old() term the operation's
// Ensures reference and returns the in-flight Call.
//
// A precondition failure is reported before any side effect of the
// operation body can run; callers must invoke Enter before the body.
func (v *Verifier) Enter(inst Instance, opName string, args map[string]any) (*Call, error) {
	typ, ok := v.reg.Type(inst.ContractType())
	if !ok {
		return nil, fmt.Errorf("no contract registered for type %q", inst.ContractType())
	}
	op, ok := typ.Op(opName)
	if !ok {
		return nil, fmt.Errorf("type %s declares no operation %q", typ.Name, opName)
	}

	id := uuid.New()
	env := v.envFor(inst, args)

	if typ.States != nil {
		rule, ok := typ.States.Rule(opName)
		if !ok {
			return nil, fmt.Errorf("protocol %s has no rule for operation %q", typ.States.Name, opName)
		}
		if !rule.Pre.Has(inst.AbstractState()) {
			pre := contract.InState{Values: rule.Pre.Values(typ.States)}
			return nil, v.violation(Precondition, typ, opName, contract.Clause{
				Kind: contract.KindRequires,
				Pred: pre,
			}, id, inst)
		}
	}

	for _, c := range op.Requires {
		holds, err := c.Pred.Eval(env)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s of %s.%s: %w", c.Kind, typ.Name, opName, err)
		}
		if !holds {
			return nil, v.violation(Precondition, typ, opName, c, id, inst)
		}
	}

	old, err := contract.SnapshotOld(op.Ensures, env)
	if err != nil {
		return nil, fmt.Errorf("entering %s.%s: %w", typ.Name, opName, err)
	}

	v.log.Debug("call entered",
		"call_id", id.String(), "type", typ.Name, "op", opName, "state", string(inst.AbstractState()))

	return &Call{
		v:          v,
		id:         id,
		inst:       inst,
		typ:        typ,
		op:         op,
		args:       args,
		old:        old,
		entryState: inst.AbstractState(),
	}, nil
}

// Exit runs call-exit verification against the produced result: Ensures
// clauses in order, then the protocol's resulting-state postcondition,
// then the type invariants. When the operation propagates its own error,
// contract evaluation is skipped entirely and opErr is returned as-is.
func (c *Call) Exit(result any, opErr error) error {
	if c.done {
		return fmt.Errorf("exit already recorded for call %s", c.id)
	}
	c.done = true

	if opErr != nil {
		c.v.log.Debug("call failed, contracts skipped", "call_id", c.id.String(), "err", opErr)
		return opErr
	}

	env := c.v.envFor(c.inst, c.args)
	env.Old = c.old
	env.Result = result
	env.HasResult = true

	for _, cl := range c.op.Ensures {
		holds, err := cl.Pred.Eval(env)
		if err != nil {
			return fmt.Errorf("evaluating %s of %s.%s: %w", cl.Kind, c.typ.Name, c.op.Name, err)
		}
		if !holds {
			return c.v.violation(Postcondition, c.typ, c.op.Name, cl, c.id, c.inst)
		}
	}

	if c.typ.States != nil {
		if err := c.checkStatePost(result); err != nil {
			return err
		}
	}

	for _, inv := range c.typ.Invariants {
		holds, err := inv.Pred.Eval(env)
		if err != nil {
			return fmt.Errorf("evaluating %s of %s: %w", inv.Kind, c.typ.Name, err)
		}
		if !holds {
			return c.v.violation(Invariant, c.typ, c.op.Name, inv, c.id, c.inst)
		}
	}

	c.v.log.Debug("call exited",
		"call_id", c.id.String(), "type", c.typ.Name, "op", c.op.Name,
		"state", string(c.inst.AbstractState()))
	return nil
}

// checkStatePost verifies the resulting abstract state against the
// protocol branch selected by the concrete result. A mismatch is an
// implementation bug, reported as a postcondition violation.
func (c *Call) checkStatePost(result any) error {
	dom := c.typ.States
	now := c.inst.AbstractState()
	if !dom.Contains(now) {
		return c.v.violation(Postcondition, c.typ, c.op.Name, contract.Clause{
			Kind:  contract.KindEnsures,
			Label: fmt.Sprintf("state within domain %s", dom.Name),
		}, c.id, c.inst)
	}
	rule, _ := dom.Rule(c.op.Name)
	next, ok := rule.ResultStates(result)
	if !ok {
		return c.v.violation(Postcondition, c.typ, c.op.Name, contract.Clause{
			Kind:  contract.KindEnsures,
			Label: fmt.Sprintf("declared outcome for result %v", result),
		}, c.id, c.inst)
	}
	if !next.Has(now) {
		post := contract.InState{Values: next.Values(dom)}
		return c.v.violation(Postcondition, c.typ, c.op.Name, contract.Clause{
			Kind: contract.KindEnsures,
			Pred: post,
		}, c.id, c.inst)
	}
	return nil
}

// Do wraps body in Enter/Exit. A precondition violation returns before
// body runs.
func (v *Verifier) Do(inst Instance, opName string, args map[string]any, body func() (any, error)) (any, error) {
	call, err := v.Enter(inst, opName, args)
	if err != nil {
		return nil, err
	}
	result, bodyErr := body()
	if err := call.Exit(result, bodyErr); err != nil {
		return result, err
	}
	return result, nil
}

func (v *Verifier) envFor(inst Instance, args map[string]any) *contract.Env {
	return &contract.Env{
		Params: args,
		Fields: inst.Snapshot(),
		State:  inst.AbstractState(),
	}
}

func (v *Verifier) violation(kind Kind, typ *contract.Type, op string, c contract.Clause, id uuid.UUID, inst Instance) *Violation {
	viol := &Violation{
		Kind:      kind,
		Type:      typ.Name,
		Operation: op,
		Clause:    c.Text(),
		CallID:    id,
		State:     inst.AbstractState(),
		Snapshot:  inst.Snapshot(),
	}
	v.log.Warn("contract violation",
		"call_id", id.String(), "kind", kind.String(), "type", typ.Name, "op", op, "clause", c.Text())
	return viol
}
