// Package model loads verification models: the protocol domains, type
// contracts and program CFGs the checker runs against. Models come in as
// YAML files or as compiled-in Specs.
package model

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/protocol"
	"github.com/rfielding/dbc/static"
	"gopkg.in/yaml.v3"
)

// Spec is the small API compiled-in models implement so tools can run
// them without a file on disk.
type Spec interface {
	Name() string
	Description() string
	Build() (*Built, error)
}

// Built is a fully constructed model: a frozen registry, the protocol
// domains, and the program under analysis.
type Built struct {
	Registry *contract.Registry
	Domains  []*protocol.Domain
	Program  *static.Program
}

// Domain looks up a built protocol domain by name.
func (b *Built) Domain(name string) (*protocol.Domain, bool) {
	for _, d := range b.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// ----- YAML schema -----

type File struct {
	Name      string        `yaml:"name" validate:"required"`
	Protocols []ProtocolDef `yaml:"protocols" validate:"dive"`
	Types     []TypeDef     `yaml:"types" validate:"dive"`
	Functions []FuncDef     `yaml:"functions" validate:"dive"`
}

type ProtocolDef struct {
	Name    string    `yaml:"name" validate:"required"`
	Initial string    `yaml:"initial" validate:"required"`
	States  []string  `yaml:"states" validate:"min=1"`
	Rules   []RuleDef `yaml:"rules" validate:"dive"`
}

type RuleDef struct {
	Op       string       `yaml:"op" validate:"required"`
	From     []string     `yaml:"from" validate:"min=1"`
	Outcomes []OutcomeDef `yaml:"outcomes" validate:"min=1,dive"`
}

type OutcomeDef struct {
	Result any      `yaml:"result"` // absent: matches every result
	Next   []string `yaml:"next" validate:"min=1"`
}

type TypeDef struct {
	Name       string   `yaml:"name" validate:"required"`
	Protocol   string   `yaml:"protocol"`
	Invariants []string `yaml:"invariants"`
	Operations []OpDef  `yaml:"operations" validate:"dive"`
}

type OpDef struct {
	Name     string   `yaml:"name" validate:"required"`
	Params   []string `yaml:"params"`
	Requires []string `yaml:"requires"`
	Ensures  []string `yaml:"ensures"`
}

type FuncDef struct {
	Name    string     `yaml:"name" validate:"required"`
	Type    string     `yaml:"type"`
	Recv    string     `yaml:"recv"`
	Params  []string   `yaml:"params"`
	Assumes []string   `yaml:"assumes"`
	Blocks  []BlockDef `yaml:"blocks" validate:"min=1,dive"`
}

type BlockDef struct {
	Label  string     `yaml:"label" validate:"required"`
	Instrs []InstrDef `yaml:"instrs"`
	Term   TermDef    `yaml:"term"`
}

type InstrDef struct {
	Assign *AssignDef `yaml:"assign"`
	Call   *CallDef   `yaml:"call"`
}

type AssignDef struct {
	Dst  string `yaml:"dst" validate:"required"`
	From string `yaml:"from" validate:"required"`
}

type CallDef struct {
	Dst  string            `yaml:"dst"`
	Recv string            `yaml:"recv" validate:"required"`
	Type string            `yaml:"type" validate:"required"`
	Op   string            `yaml:"op" validate:"required"`
	Args map[string]string `yaml:"args"`
}

type TermDef struct {
	Goto   string  `yaml:"goto"`
	If     *IfDef  `yaml:"if"`
	Return *string `yaml:"return"` // empty string returns no value
}

type IfDef struct {
	Cond string `yaml:"cond" validate:"required"`
	Then string `yaml:"then" validate:"required"`
	Else string `yaml:"else" validate:"required"`
}

// Load reads and validates a model file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates a model document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("validating model: %w", err)
	}
	return &f, nil
}

// Build constructs the protocol domains, the frozen contract registry and
// the program CFG the file describes.
func (f *File) Build() (*Built, error) {
	built := &Built{}

	for _, pd := range f.Protocols {
		dom, err := buildDomain(pd)
		if err != nil {
			return nil, err
		}
		built.Domains = append(built.Domains, dom)
	}

	reg := contract.NewRegistry()
	for _, td := range f.Types {
		typ, err := f.buildType(td, built)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(typ); err != nil {
			return nil, err
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, fmt.Errorf("model %s: %w", f.Name, err)
	}
	built.Registry = reg

	prog := static.NewProgram(reg)
	for _, fd := range f.Functions {
		if err := buildFunc(prog, fd); err != nil {
			return nil, err
		}
	}
	built.Program = prog
	return built, nil
}

func buildDomain(pd ProtocolDef) (*protocol.Domain, error) {
	values := make([]protocol.Value, len(pd.States))
	for i, s := range pd.States {
		values[i] = protocol.Value(s)
	}
	dom := protocol.NewDomain(pd.Name, protocol.Value(pd.Initial), values...)
	for _, rd := range pd.Rules {
		from := make([]protocol.Value, len(rd.From))
		for i, s := range rd.From {
			from[i] = protocol.Value(s)
		}
		rule := dom.Allow(rd.Op, from...)
		for _, od := range rd.Outcomes {
			next := make([]protocol.Value, len(od.Next))
			for i, s := range od.Next {
				next[i] = protocol.Value(s)
			}
			if od.Result == nil {
				rule.Always(next...)
			} else {
				rule.OnResult(od.Result, next...)
			}
		}
	}
	return dom, dom.Validate()
}

func (f *File) buildType(td TypeDef, built *Built) (*contract.Type, error) {
	var dom *protocol.Domain
	if td.Protocol != "" {
		var ok bool
		dom, ok = built.Domain(td.Protocol)
		if !ok {
			return nil, fmt.Errorf("type %s: unknown protocol %q", td.Name, td.Protocol)
		}
	}
	typ := contract.NewType(td.Name, dom)
	for _, src := range td.Invariants {
		p, err := ParsePred(src)
		if err != nil {
			return nil, fmt.Errorf("type %s invariant: %w", td.Name, err)
		}
		typ.Invariant(src, p)
	}
	for _, od := range td.Operations {
		op := typ.Operation(od.Name, od.Params...)
		for _, src := range od.Requires {
			p, err := ParsePred(src)
			if err != nil {
				return nil, fmt.Errorf("%s.%s requires: %w", td.Name, od.Name, err)
			}
			op.Require(src, p)
		}
		for _, src := range od.Ensures {
			p, err := ParsePred(src)
			if err != nil {
				return nil, fmt.Errorf("%s.%s ensures: %w", td.Name, od.Name, err)
			}
			op.Ensure(src, p)
		}
	}
	return typ, nil
}

func buildFunc(prog *static.Program, fd FuncDef) error {
	fn := prog.Func(fd.Name, fd.Type, fd.Recv, fd.Params...)
	for _, src := range fd.Assumes {
		p, err := ParsePred(src)
		if err != nil {
			return fmt.Errorf("func %s assumes: %w", fd.Name, err)
		}
		fn.Assume(p)
	}
	// Create blocks in declared order so the first one is the entry.
	for _, bd := range fd.Blocks {
		fn.Block(bd.Label)
	}
	for _, bd := range fd.Blocks {
		b := fn.Block(bd.Label)
		for _, id := range bd.Instrs {
			switch {
			case id.Assign != nil:
				src, err := ParseTerm(id.Assign.From)
				if err != nil {
					return fmt.Errorf("func %s: %w", fd.Name, err)
				}
				b.Assign(id.Assign.Dst, src)
			case id.Call != nil:
				args := make(map[string]contract.Term, len(id.Call.Args))
				for name, expr := range id.Call.Args {
					t, err := ParseTerm(expr)
					if err != nil {
						return fmt.Errorf("func %s: %w", fd.Name, err)
					}
					args[name] = t
				}
				b.Call(id.Call.Dst, id.Call.Recv, id.Call.Type, id.Call.Op, args)
			default:
				return fmt.Errorf("func %s block %s: instruction needs assign or call", fd.Name, bd.Label)
			}
		}
		switch {
		case bd.Term.Goto != "":
			b.Goto(bd.Term.Goto)
		case bd.Term.If != nil:
			cond, err := ParsePred(bd.Term.If.Cond)
			if err != nil {
				return fmt.Errorf("func %s: %w", fd.Name, err)
			}
			b.If(cond, bd.Term.If.Then, bd.Term.If.Else)
		case bd.Term.Return != nil:
			if *bd.Term.Return == "" {
				b.Return(nil)
			} else {
				val, err := ParseTerm(*bd.Term.Return)
				if err != nil {
					return fmt.Errorf("func %s: %w", fd.Name, err)
				}
				b.Return(val)
			}
		default:
			return fmt.Errorf("func %s block %s: missing terminator", fd.Name, bd.Label)
		}
	}
	return nil
}
