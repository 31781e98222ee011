// internal/expr/expr_test.go
package expr

import (
	"errors"
	"math"
	"math/cmplx"
	"strings"
	"testing"
)

func eval(t *testing.T, text string, z complex128) (complex128, error) {
	t.Helper()
	_, f, err := ParseFunc(text)
	if err != nil {
		t.Fatalf("ParseFunc(%q) error = %v", text, err)
	}
	return f(z)
}

func approx(a, b complex128) bool {
	return cmplx.Abs(a-b) < 1e-9
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		in   string
		z    complex128
		want complex128
	}{
		{"z**2+1", 2, 5},
		{"z^2+1", 2, 5},
		{"-z**2", 3, -9},
		{"(-z)**2", 3, 9},
		{"2**3**2", 0, 512},
		{"2*z/4", 2, 1},
		{"z-1-1", 5, 3},
		{"2**-1", 0, 0.5},
		{"I**2", 0, -1},
		{"z*I", 2, complex(0, 2)},
		{"+z", 7, 7},
		{".5*z", 4, 2},
		{"10*z", 1, 10},
	}
	for _, tt := range tests {
		got, err := eval(t, tt.in, tt.z)
		if err != nil {
			t.Errorf("%s at %v: error = %v", tt.in, tt.z, err)
			continue
		}
		if !approx(got, tt.want) {
			t.Errorf("%s at %v = %v, want %v", tt.in, tt.z, got, tt.want)
		}
	}
}

func TestParse_Functions(t *testing.T) {
	z := complex(0.3, -0.7)
	tests := []struct {
		in   string
		want complex128
	}{
		{"sin(z)", cmplx.Sin(z)},
		{"exp(z)", cmplx.Exp(z)},
		{"log(z)", cmplx.Log(z)},
		{"ln(z)", cmplx.Log(z)},
		{"sqrt(z)", cmplx.Sqrt(z)},
		{"abs(z)", complex(cmplx.Abs(z), 0)},
		{"conjugate(z)", cmplx.Conj(z)},
		{"re(z)+im(z)", complex(real(z)+imag(z), 0)},
		{"log(z, 2)", cmplx.Log(z) / cmplx.Log(2)},
		{"cot(z)", 1 / cmplx.Tan(z)},
		{"exp(I*pi)", -1},
		{"log(E)", 1},
	}
	for _, tt := range tests {
		got, err := eval(t, tt.in, z)
		if err != nil {
			t.Errorf("%s error = %v", tt.in, err)
			continue
		}
		if !approx(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		in      string
		wantMsg string
	}{
		{"", "unexpected"},
		{"z+", "unexpected"},
		{"(z", "expected )"},
		{"x+1", "undefined symbol"},
		{"foo(z)", "unknown function"},
		{"sin", "needs arguments"},
		{"sin(z, 2)", "takes 1 argument"},
		{"z $ 2", "unexpected character"},
		{"z)", "unexpected"},
		{strings.Repeat("(", 200) + "z" + strings.Repeat(")", 200), "nested too deeply"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.in)
		if err == nil {
			t.Errorf("Parse(%q) expected error", tt.in)
			continue
		}
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q) error type = %T, want *SyntaxError", tt.in, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantMsg) {
			t.Errorf("Parse(%q) error = %q, want it to contain %q", tt.in, err, tt.wantMsg)
		}
	}
}

func TestParse_DeepNestingWithinLengthLimit(t *testing.T) {
	// 49 levels is the deepest nesting that fits in 100 characters
	in := strings.Repeat("(", 49) + "z" + strings.Repeat(")", 49)
	n, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.String() != "z" {
		t.Errorf("String() = %q, want z", n.String())
	}

	in = strings.Repeat("-(", 40) + "z" + strings.Repeat(")", 40)
	if _, err := Parse(in); err != nil {
		t.Errorf("Parse(nested negation) error = %v", err)
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	for _, in := range []string{"1/z", "z**-1", "0**(-2)", "csc(z)"} {
		_, err := eval(t, in, 0)
		if !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("%s at 0: error = %v, want ErrDivisionByZero", in, err)
		}
	}
}

func TestEval_NotFinite(t *testing.T) {
	if _, err := eval(t, "log(z)", 0); !errors.Is(err, ErrNotFinite) {
		t.Errorf("log(0) error = %v, want ErrNotFinite", err)
	}
	if _, err := eval(t, "exp(exp(exp(z)))", 10); !errors.Is(err, ErrNotFinite) {
		t.Errorf("exp(exp(exp(10))) error = %v, want ErrNotFinite", err)
	}
}

func TestPow_ZeroBase(t *testing.T) {
	if v, err := Pow(0, 0); err != nil || v != 1 {
		t.Errorf("Pow(0, 0) = %v, %v; want 1, nil", v, err)
	}
	if v, err := Pow(0, 2); err != nil || v != 0 {
		t.Errorf("Pow(0, 2) = %v, %v; want 0, nil", v, err)
	}
	if _, err := Pow(0, complex(1, 1)); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("Pow(0, 1+i) error = %v, want ErrDivisionByZero", err)
	}
}

func TestPow_NonInteger(t *testing.T) {
	got, err := Pow(4, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 2) {
		t.Errorf("Pow(4, 0.5) = %v, want 2", got)
	}
	if math.Abs(real(got)-2) > 1e-12 {
		t.Errorf("Pow(4, 0.5) real part = %v", real(got))
	}
}

func TestNode_StringRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"z**2+1", "z**2 + 1"},
		{"(-z)**2", "(-z)**2"},
		{"-z**2", "-z**2"},
		{"z-(1-z)", "z - (1 - z)"},
		{"z/(2*z)", "z/(2*z)"},
		{"(2**3)**2", "(2**3)**2"},
		{"log(z,2)", "log(z, 2)"},
		{"2.50*z", "2.5*z"},
	}
	for _, tt := range tests {
		n, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if got := n.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
		if _, err := Parse(n.String()); err != nil {
			t.Errorf("re-parsing %q failed: %v", n.String(), err)
		}
	}
}
