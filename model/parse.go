package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rfielding/dbc/contract"
	"github.com/rfielding/dbc/protocol"
)

// A small infix predicate syntax for model files:
//
//	state == Computed
//	(result == true && state == Computed) || (result == false && state == Initialized)
//	this.Data != nil
//	old(this.Count) < this.Count
//	ok
//
// "this.X" is an instance field, "state" compares against protocol
// values, "result" is the operation result, a bare identifier is a
// parameter or local, and a bare boolean term means "== true".

// ParsePred parses one predicate expression.
func ParsePred(src string) (contract.Pred, error) {
	p := &parser{toks: tokenize(src), src: src}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("parsing %q: unexpected %q", src, p.peek())
	}
	return pred, nil
}

// ParseTerm parses one value expression.
func ParseTerm(src string) (contract.Term, error) {
	p := &parser{toks: tokenize(src), src: src}
	t, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("parsing %q: unexpected %q", src, p.peek())
	}
	return t, nil
}

type parser struct {
	toks []string
	pos  int
	src  string
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() string {
	if p.eof() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("parsing %q: expected %q, got %q", p.src, tok, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseOr() (contract.Pred, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = contract.Or{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (contract.Pred, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = contract.And{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (contract.Pred, error) {
	switch p.peek() {
	case "!":
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return contract.Not{P: inner}, nil
	case "(":
		// Either a parenthesized predicate or a parenthesized term; try
		// the predicate reading first.
		save := p.pos
		p.next()
		inner, err := p.parseOr()
		if err == nil && p.peek() == ")" {
			p.next()
			if op := p.peek(); op != "==" && op != "!=" && op != "<" && op != "<=" && op != ">" && op != ">=" {
				return inner, nil
			}
		}
		p.pos = save
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (contract.Pred, error) {
	if p.peek() == "state" {
		return p.parseStateCmp()
	}
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	op, ok := cmpOps[p.peek()]
	if !ok {
		// Bare boolean expression.
		return contract.Eq(left, contract.Lit{V: true}), nil
	}
	p.next()
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	// "x.state == NotReady" compares the synthetic state variable against
	// a state value, not against a local called NotReady.
	if lv, ok := left.(contract.Var); ok && strings.HasSuffix(lv.Name, ".state") {
		if rv, ok := right.(contract.Var); ok {
			right = contract.Lit{V: rv.Name}
		}
	}
	return contract.Compare{Op: op, L: left, R: right}, nil
}

var cmpOps = map[string]contract.CmpOp{
	"==": contract.OpEq,
	"!=": contract.OpNe,
	"<":  contract.OpLt,
	"<=": contract.OpLe,
	">":  contract.OpGt,
	">=": contract.OpGe,
}

func (p *parser) parseStateCmp() (contract.Pred, error) {
	p.next() // "state"
	op := p.next()
	if op != "==" && op != "!=" {
		return nil, fmt.Errorf("parsing %q: state supports == and != only, got %q", p.src, op)
	}
	val := p.next()
	if val == "" || !isIdent(val) {
		return nil, fmt.Errorf("parsing %q: expected state value after %q", p.src, op)
	}
	in := contract.InState{Values: []protocol.Value{protocol.Value(val)}}
	if op == "!=" {
		return contract.Not{P: in}, nil
	}
	return in, nil
}

func (p *parser) parseTerm() (contract.Term, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, fmt.Errorf("parsing %q: expected a term", p.src)
	case tok == "(":
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return t, p.expect(")")
	case tok == "old":
		if err := p.expect("("); err != nil {
			return nil, err
		}
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return contract.Old{T: inner}, p.expect(")")
	case tok == "result":
		return contract.Result{}, nil
	case tok == "nil":
		return contract.Lit{}, nil
	case tok == "true":
		return contract.Lit{V: true}, nil
	case tok == "false":
		return contract.Lit{V: false}, nil
	case strings.HasPrefix(tok, `"`):
		return contract.Lit{V: strings.Trim(tok, `"`)}, nil
	case isNumber(tok):
		if i, err := strconv.Atoi(tok); err == nil {
			return contract.Lit{V: i}, nil
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: bad number %q", p.src, tok)
		}
		return contract.Lit{V: f}, nil
	case strings.HasPrefix(tok, "this."):
		return contract.Field{Name: strings.TrimPrefix(tok, "this.")}, nil
	case isIdent(tok):
		return contract.Var{Name: tok}, nil
	}
	return nil, fmt.Errorf("parsing %q: unexpected %q", p.src, tok)
}

func isNumber(tok string) bool {
	r := rune(tok[0])
	return unicode.IsDigit(r) || (r == '-' && len(tok) > 1)
}

func isIdent(tok string) bool {
	for i, r := range tok {
		if unicode.IsLetter(r) || r == '_' || r == '.' || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return len(tok) > 0
}

// tokenize splits src into identifiers (dotted paths included), numbers,
// quoted strings, and operators.
func tokenize(src string) []string {
	var toks []string
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			if j < len(rs) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case strings.ContainsRune("=!<>&|", r):
			j := i + 1
			for j < len(rs) && strings.ContainsRune("=!<>&|", rs[j]) && j-i < 2 {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case r == '(' || r == ')':
			toks = append(toks, string(r))
			i++
		default:
			toks = append(toks, string(r))
			i++
		}
	}
	return toks
}
