// Package static is a path-sensitive symbolic checker. It walks each
// function's control-flow graph forward, tracking facts that are known on
// every path, and tries to discharge each call site's preconditions
// against them. Undischarged obligations become non-fatal diagnostics;
// the checker never fails a build on its own authority.
package static

import (
	"fmt"

	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/diag"
)

// Program is a whole-program control-flow graph with contract
// declarations attached through the registry.
type Program struct {
	Registry *contract.Registry
	Funcs    []*Function
}

func NewProgram(reg *contract.Registry) *Program {
	return &Program{Registry: reg}
}

// Function is one operation body under analysis. When Type is non-empty
// the function implements the declared operation Name on that contract
// type: its Requires and the type invariants are assumed at entry, and
// its Ensures are checked at every return.
type Function struct {
	Name   string
	Type   string // receiver contract type; "" for a free function
	Recv   string // receiver variable name
	Params []string
	File   string
	Blocks []*Block

	// Assumes are facts granted at entry: the function's own documented
	// precondition over its parameters. The checker trusts them the same
	// way it trusts a declared Requires.
	Assumes []contract.Pred

	byLabel  map[string]*Block
	nextLine int
}

// Assume grants an entry fact.
func (f *Function) Assume(p contract.Pred) *Function {
	f.Assumes = append(f.Assumes, p)
	return f
}

// Func adds a function to the program. Blocks are created with
// (*Function).Block; the first created block is the entry.
func (p *Program) Func(name, typeName, recv string, params ...string) *Function {
	f := &Function{
		Name:    name,
		Type:    typeName,
		Recv:    recv,
		Params:  params,
		File:    name,
		byLabel: make(map[string]*Block),
	}
	p.Funcs = append(p.Funcs, f)
	return f
}

// Block creates (or returns) the block with the given label.
func (f *Function) Block(label string) *Block {
	if b, ok := f.byLabel[label]; ok {
		return b
	}
	b := &Block{Label: label, fn: f}
	f.byLabel[label] = b
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) loc() diag.Location {
	f.nextLine++
	return diag.Location{File: f.File, Line: f.nextLine}
}

// Block is a straight-line instruction sequence ending in one terminator.
type Block struct {
	Label  string
	Instrs []Instr
	Term   Terminator

	fn *Function
}

// Instr is a non-branching instruction.
type Instr interface {
	Loc() diag.Location
}

// Assign copies the value of Src into local Dst.
type Assign struct {
	Dst string
	Src contract.Term
	At  diag.Location
}

func (a Assign) Loc() diag.Location { return a.At }

// Call invokes operation Op on receiver variable Recv of contract type
// TypeName, binding the result (if any) to local Dst. Args map callee
// parameter names to caller-side terms.
type Call struct {
	Dst      string // "" when the result is discarded
	Recv     string
	TypeName string
	Op       string
	Args     map[string]contract.Term
	At       diag.Location
}

func (c Call) Loc() diag.Location { return c.At }

func (c Call) String() string { return fmt.Sprintf("%s.%s", c.TypeName, c.Op) }

// Terminator ends a block.
type Terminator interface {
	term()
}

// Goto transfers control unconditionally.
type Goto struct {
	Target string
}

func (Goto) term() {}

// If branches on a condition over locals. Facts learned from the
// condition (and its negation) are recorded per branch.
type If struct {
	Cond contract.Pred
	Then string
	Else string
}

func (If) term() {}

// Ret leaves the function, producing Val (nil for no result).
type Ret struct {
	Val contract.Term
	At  diag.Location
}

func (Ret) term() {}

// ----- Builder methods used by tests and the model loader -----

func (b *Block) Assign(dst string, src contract.Term) *Block {
	b.Instrs = append(b.Instrs, Assign{Dst: dst, Src: src, At: b.fn.loc()})
	return b
}

func (b *Block) Call(dst, recv, typeName, op string, args map[string]contract.Term) *Block {
	b.Instrs = append(b.Instrs, Call{
		Dst: dst, Recv: recv, TypeName: typeName, Op: op, Args: args, At: b.fn.loc(),
	})
	return b
}

func (b *Block) Goto(target string) {
	b.Term = Goto{Target: target}
}

func (b *Block) If(cond contract.Pred, then, els string) {
	b.Term = If{Cond: cond, Then: then, Else: els}
}

func (b *Block) Return(val contract.Term) {
	b.Term = Ret{Val: val, At: b.fn.loc()}
}
