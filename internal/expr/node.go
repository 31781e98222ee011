// internal/expr/node.go
// Package expr parses and compiles single-variable complex functions of z.
package expr

import (
	"strconv"
	"strings"
)

// Variable is the only free symbol an expression may reference.
const Variable = "z"

// Node is a parsed expression tree node.
type Node interface {
	String() string
	precedence() int
}

// Operator precedence, higher binds tighter.
const (
	precSum = iota + 1
	precProduct
	precUnary
	precPower
	precAtom
)

// Num is a numeric literal.
type Num struct {
	Value float64
}

func (n *Num) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *Num) precedence() int { return precAtom }

// Sym is a reference to the free variable.
type Sym struct {
	Name string
}

func (s *Sym) String() string  { return s.Name }
func (s *Sym) precedence() int { return precAtom }

// Const is a named constant: I, E or pi.
type Const struct {
	Name string
}

func (c *Const) String() string  { return c.Name }
func (c *Const) precedence() int { return precAtom }

// Unary is a prefix sign.
type Unary struct {
	Op byte
	X  Node
}

func (u *Unary) String() string {
	return string(u.Op) + wrap(u.X, precUnary, false)
}

func (u *Unary) precedence() int { return precUnary }

// Binary is an infix operation. Op is one of + - * / **.
type Binary struct {
	Op   string
	L, R Node
}

func (b *Binary) String() string {
	p := b.precedence()
	// ** is right associative, the others are left associative.
	leftStrict := b.Op == "**"
	rightStrict := b.Op != "**" && b.Op != "+" && b.Op != "*"

	sep := " " + b.Op + " "
	if b.Op == "**" || b.Op == "*" || b.Op == "/" {
		sep = b.Op
	}
	return wrap(b.L, p, leftStrict) + sep + wrap(b.R, p, rightStrict)
}

func (b *Binary) precedence() int {
	switch b.Op {
	case "+", "-":
		return precSum
	case "**":
		return precPower
	default:
		return precProduct
	}
}

// Call is a function application.
type Call struct {
	Name string
	Args []Node
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (c *Call) precedence() int { return precAtom }

func wrap(n Node, parent int, strict bool) string {
	p := n.precedence()
	if p < parent || (strict && p == parent) {
		return "(" + n.String() + ")"
	}
	return n.String()
}
