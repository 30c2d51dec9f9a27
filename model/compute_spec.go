package model

import (
	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/protocol"
	"github.com/rfielding/dbc/static"
)

// ComputeSpec is the compiled-in counterpart of the compute protocol:
// a Doc type whose Data is only readable after a successful Compute,
// plus two callers — one that checks the result before reading and one
// that does not. The careless one carries exactly one unprovable state
// precondition; the careful one is clean.
type ComputeSpec struct{}

func (ComputeSpec) Name() string { return "compute" }

func (ComputeSpec) Description() string {
	return "initialize/compute/read protocol with a careful and a careless caller"
}

func (ComputeSpec) Build() (*Built, error) {
	dom := protocol.ComputeDomain()

	typ := contract.NewType("Doc", dom)
	typ.Invariant("data present once computed",
		contract.Disj(
			contract.Not{P: contract.StateIs(protocol.Computed)},
			contract.NotNil(contract.Field{Name: "Data"}),
		))
	typ.Operation("Initialize")
	typ.Operation("Compute").
		Ensure("data on success",
			contract.Implies{
				L: contract.Eq(contract.Result{}, contract.Lit{V: true}),
				R: contract.NotNil(contract.Field{Name: "Data"}),
			})
	typ.Operation("Data").
		Ensure("result != nil", contract.NotNil(contract.Result{}))
	typ.Operation("Reset")

	reg := contract.NewRegistry()
	if err := reg.Add(typ); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}

	prog := static.NewProgram(reg)

	fresh := contract.Eq(contract.Var{Name: "d.state"}, contract.Lit{V: string(protocol.NotReady)})

	careful := prog.Func("carefulReader", "", "", "d")
	careful.Assume(fresh)
	careful.Block("entry").
		Call("", "d", "Doc", "Initialize", nil).
		Call("ok", "d", "Doc", "Compute", nil).
		If(contract.Eq(contract.Var{Name: "ok"}, contract.Lit{V: true}), "read", "done")
	careful.Block("read").
		Call("x", "d", "Doc", "Data", nil).
		Goto("done")
	careful.Block("done").Return(nil)

	careless := prog.Func("carelessReader", "", "", "d")
	careless.Assume(fresh)
	careless.Block("entry").
		Call("", "d", "Doc", "Initialize", nil).
		Call("", "d", "Doc", "Compute", nil).
		Call("x", "d", "Doc", "Data", nil).
		Return(contract.Var{Name: "x"})

	return &Built{
		Registry: reg,
		Domains:  []*protocol.Domain{dom},
		Program:  prog,
	}, nil
}

// Specs lists every compiled-in model.
func Specs() []Spec {
	return []Spec{ComputeSpec{}}
}
