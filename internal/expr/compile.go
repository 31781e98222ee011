// internal/expr/compile.go
package expr

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var (
	// ErrDivisionByZero is returned for x/0 and for 0 raised to a negative or complex power.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNotFinite is returned when a result is NaN or infinite.
	ErrNotFinite = errors.New("result is not finite")
)

// Func evaluates a compiled expression at z.
type Func func(z complex128) (complex128, error)

// maxIntPower is the largest integer exponent evaluated by repeated squaring.
const maxIntPower = 64

// Compile turns a parsed tree into an evaluator. The returned Func is safe
// for concurrent use.
func Compile(n Node) Func {
	switch n := n.(type) {
	case *Num:
		v := complex(n.Value, 0)
		return func(complex128) (complex128, error) { return v, nil }

	case *Sym:
		return func(z complex128) (complex128, error) { return z, nil }

	case *Const:
		v := constValue(n.Name)
		return func(complex128) (complex128, error) { return v, nil }

	case *Unary:
		x := Compile(n.X)
		if n.Op == '+' {
			return x
		}
		return func(z complex128) (complex128, error) {
			v, err := x(z)
			if err != nil {
				return 0, err
			}
			return -v, nil
		}

	case *Binary:
		return compileBinary(n)

	case *Call:
		return compileCall(n)
	}
	panic(fmt.Sprintf("expr: unknown node %T", n))
}

func constValue(name string) complex128 {
	switch name {
	case "I":
		return complex(0, 1)
	case "E":
		return complex(math.E, 0)
	case "pi":
		return complex(math.Pi, 0)
	}
	return cmplx.NaN()
}

func compileBinary(n *Binary) Func {
	l, r := Compile(n.L), Compile(n.R)
	var op func(a, b complex128) (complex128, error)
	switch n.Op {
	case "+":
		op = func(a, b complex128) (complex128, error) { return a + b, nil }
	case "-":
		op = func(a, b complex128) (complex128, error) { return a - b, nil }
	case "*":
		op = func(a, b complex128) (complex128, error) { return a * b, nil }
	case "/":
		op = divide
	case "**":
		op = Pow
	default:
		panic("expr: unknown operator " + n.Op)
	}
	return func(z complex128) (complex128, error) {
		a, err := l(z)
		if err != nil {
			return 0, err
		}
		b, err := r(z)
		if err != nil {
			return 0, err
		}
		v, err := op(a, b)
		if err != nil {
			return 0, err
		}
		return finite(v)
	}
}

func divide(a, b complex128) (complex128, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// Pow raises base to exp. Small integer exponents are evaluated by repeated
// multiplication so that results such as I**2 are exact.
func Pow(base, exp complex128) (complex128, error) {
	if base == 0 {
		switch {
		case exp == 0:
			return 1, nil
		case imag(exp) != 0 || real(exp) < 0:
			return 0, ErrDivisionByZero
		default:
			return 0, nil
		}
	}
	if imag(exp) == 0 {
		if e := real(exp); e == math.Trunc(e) && math.Abs(e) <= maxIntPower {
			return intPow(base, int(e)), nil
		}
	}
	return cmplx.Pow(base, exp), nil
}

func intPow(base complex128, n int) complex128 {
	neg := n < 0
	if neg {
		n = -n
	}
	result := complex(1, 0)
	for n > 0 {
		if n&1 == 1 {
			result *= base
		}
		base *= base
		n >>= 1
	}
	if neg {
		return 1 / result
	}
	return result
}

func compileCall(n *Call) Func {
	args := make([]Func, len(n.Args))
	for i, a := range n.Args {
		args[i] = Compile(a)
	}

	if n.Name == "log" && len(args) == 2 {
		x, b := args[0], args[1]
		return func(z complex128) (complex128, error) {
			xv, err := x(z)
			if err != nil {
				return 0, err
			}
			bv, err := b(z)
			if err != nil {
				return 0, err
			}
			num, err := finite(cmplx.Log(xv))
			if err != nil {
				return 0, err
			}
			den, err := finite(cmplx.Log(bv))
			if err != nil {
				return 0, err
			}
			v, err := divide(num, den)
			if err != nil {
				return 0, err
			}
			return finite(v)
		}
	}

	fn := unary(n.Name)
	x := args[0]
	return func(z complex128) (complex128, error) {
		v, err := x(z)
		if err != nil {
			return 0, err
		}
		v, err = fn(v)
		if err != nil {
			return 0, err
		}
		return finite(v)
	}
}

func unary(name string) func(complex128) (complex128, error) {
	plain := func(f func(complex128) complex128) func(complex128) (complex128, error) {
		return func(v complex128) (complex128, error) { return f(v), nil }
	}
	recip := func(f func(complex128) complex128) func(complex128) (complex128, error) {
		return func(v complex128) (complex128, error) { return divide(1, f(v)) }
	}

	switch name {
	case "sin":
		return plain(cmplx.Sin)
	case "cos":
		return plain(cmplx.Cos)
	case "tan":
		return plain(cmplx.Tan)
	case "cot":
		return recip(cmplx.Tan)
	case "sec":
		return recip(cmplx.Cos)
	case "csc":
		return recip(cmplx.Sin)
	case "asin":
		return plain(cmplx.Asin)
	case "acos":
		return plain(cmplx.Acos)
	case "atan":
		return plain(cmplx.Atan)
	case "sinh":
		return plain(cmplx.Sinh)
	case "cosh":
		return plain(cmplx.Cosh)
	case "tanh":
		return plain(cmplx.Tanh)
	case "asinh":
		return plain(cmplx.Asinh)
	case "acosh":
		return plain(cmplx.Acosh)
	case "atanh":
		return plain(cmplx.Atanh)
	case "exp":
		return plain(cmplx.Exp)
	case "log", "ln":
		return plain(cmplx.Log)
	case "sqrt":
		return plain(cmplx.Sqrt)
	case "abs":
		return plain(func(v complex128) complex128 { return complex(cmplx.Abs(v), 0) })
	case "re":
		return plain(func(v complex128) complex128 { return complex(real(v), 0) })
	case "im":
		return plain(func(v complex128) complex128 { return complex(imag(v), 0) })
	case "arg":
		return plain(func(v complex128) complex128 { return complex(cmplx.Phase(v), 0) })
	case "conjugate":
		return plain(cmplx.Conj)
	}
	panic("expr: unknown function " + name)
}

func finite(v complex128) (complex128, error) {
	if isBad(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

func isBad(z complex128) bool {
	return math.IsNaN(real(z)) || math.IsNaN(imag(z)) ||
		math.IsInf(real(z), 0) || math.IsInf(imag(z), 0)
}

// ParseFunc parses and compiles text in one step.
func ParseFunc(text string) (Node, Func, error) {
	n, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	return n, Compile(n), nil
}
