// internal/expr/parser.go
package expr

import (
	"fmt"
	"strconv"
	"unicode"
)

// SyntaxError reports why an expression could not be parsed.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// arity bounds for the supported functions
var functions = map[string][2]int{
	"sin": {1, 1}, "cos": {1, 1}, "tan": {1, 1},
	"cot": {1, 1}, "sec": {1, 1}, "csc": {1, 1},
	"asin": {1, 1}, "acos": {1, 1}, "atan": {1, 1},
	"sinh": {1, 1}, "cosh": {1, 1}, "tanh": {1, 1},
	"asinh": {1, 1}, "acosh": {1, 1}, "atanh": {1, 1},
	"exp": {1, 1}, "log": {1, 2}, "ln": {1, 1}, "sqrt": {1, 1},
	"abs": {1, 1}, "re": {1, 1}, "im": {1, 1}, "arg": {1, 1},
	"conjugate": {1, 1},
}

var constants = map[string]bool{"I": true, "E": true, "pi": true}

// maxDepth bounds nesting so hostile input cannot exhaust the stack. Each
// parenthesis level costs two: one sum and one unary.
const maxDepth = 256

// Parse parses text into an expression tree over the variable z.
//
// The grammar follows sympy's operator set: + - * / and ** (or ^) for
// powers. Powers are right associative and bind tighter than a leading
// minus, so -z**2 is -(z**2).
func Parse(text string) (Node, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{input: text, toks: toks}
	n, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t.pos, "unexpected %q", t.text)
	}
	return n, nil
}

func lex(text string) ([]token, error) {
	var toks []token
	rs := []rune(text)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			seenDot := false
			for i < len(rs) && (unicode.IsDigit(rs[i]) || (rs[i] == '.' && !seenDot)) {
				if rs[i] == '.' {
					seenDot = true
				}
				i++
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i += 2
		case r == '^':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '(' || r == ')' || r == ',':
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, &SyntaxError{Input: text, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{kind: tokEOF, text: "end of input", pos: len(rs)})
	return toks, nil
}

type parser struct {
	input string
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(p.peek().pos, "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseSum() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.accept("+"):
			op = "+"
		case p.accept("-"):
			op = "-"
		default:
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseProduct() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.accept("*"):
			op = "*"
		case p.accept("/"):
			op = "/"
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch {
	case p.accept("-"):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: '-', X: x}, nil
	case p.accept("+"):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: '+', X: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.accept("**") {
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "**", L: base, R: exp}, nil
	}
	return base, nil
}

func (p *parser) parseAtom() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t.pos, "invalid number %q", t.text)
		}
		return &Num{Value: v}, nil

	case tokIdent:
		if p.peek().kind == tokOp && p.peek().text == "(" {
			return p.parseCall(t)
		}
		if t.text == Variable {
			return &Sym{Name: t.text}, nil
		}
		if constants[t.text] {
			return &Const{Name: t.text}, nil
		}
		if _, ok := functions[t.text]; ok {
			return nil, p.errorf(t.pos, "function %s needs arguments", t.text)
		}
		return nil, p.errorf(t.pos, "undefined symbol %q", t.text)

	case tokOp:
		if t.text == "(" {
			n, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			if !p.accept(")") {
				return nil, p.errorf(p.peek().pos, "expected )")
			}
			return n, nil
		}
	}
	return nil, p.errorf(t.pos, "unexpected %q", t.text)
}

func (p *parser) parseCall(name token) (Node, error) {
	bounds, ok := functions[name.text]
	if !ok {
		return nil, p.errorf(name.pos, "unknown function %q", name.text)
	}
	p.next() // (

	var args []Node
	if !p.accept(")") {
		for {
			a, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.accept(")") {
				break
			}
			if !p.accept(",") {
				return nil, p.errorf(p.peek().pos, "expected , or )")
			}
		}
	}

	if len(args) < bounds[0] || len(args) > bounds[1] {
		return nil, p.errorf(name.pos, "%s takes %s, got %d", name.text, arityText(bounds), len(args))
	}
	return &Call{Name: name.text, Args: args}, nil
}

func arityText(b [2]int) string {
	if b[0] == b[1] {
		if b[0] == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", b[0])
	}
	return fmt.Sprintf("%d to %d arguments", b[0], b[1])
}
