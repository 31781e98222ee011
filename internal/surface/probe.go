// internal/surface/probe.go
// Package surface turns a compiled complex function into a bounded height field.
package surface

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/colebrumley/zplot/internal/expr"
)

// MaxSafeMagnitude is the largest |f(z)| the probe accepts at a sample point.
const MaxSafeMagnitude = 1e10

// SamplePoints are the probe inputs: {-1,0,1} x {-1,0,1}i.
var SamplePoints = func() [9]complex128 {
	var pts [9]complex128
	i := 0
	for _, x := range []float64{-1, 0, 1} {
		for _, y := range []float64{-1, 0, 1} {
			pts[i] = complex(x, y)
			i++
		}
	}
	return pts
}()

// UnsafeError reports the first sample point that failed the probe.
type UnsafeError struct {
	Point  complex128
	Reason string
}

func (e *UnsafeError) Error() string {
	return fmt.Sprintf("function might lead to unstable behavior or infinite values: %s at z=%s",
		e.Reason, formatComplex(e.Point))
}

// ProbeSample is one probe evaluation.
type ProbeSample struct {
	Z         complex128
	Value     complex128
	Magnitude float64
	Err       error
}

// Probe evaluates f at every sample point and fails closed: any evaluation
// error, panic, non-finite result or magnitude over MaxSafeMagnitude makes
// the function unsafe.
func Probe(f expr.Func) error {
	for _, s := range ProbeSamples(f) {
		if err := checkSample(s); err != nil {
			return err
		}
	}
	return nil
}

// ProbeSamples evaluates f at every sample point and returns the raw results.
func ProbeSamples(f expr.Func) []ProbeSample {
	samples := make([]ProbeSample, 0, len(SamplePoints))
	for _, z := range SamplePoints {
		v, err := safeEval(f, z)
		s := ProbeSample{Z: z, Value: v, Err: err}
		if err == nil {
			s.Magnitude = cmplx.Abs(v)
		}
		samples = append(samples, s)
	}
	return samples
}

func checkSample(s ProbeSample) error {
	switch {
	case s.Err != nil:
		return &UnsafeError{Point: s.Z, Reason: s.Err.Error()}
	case math.IsNaN(s.Magnitude) || math.IsInf(s.Magnitude, 0):
		return &UnsafeError{Point: s.Z, Reason: "result is not finite"}
	case s.Magnitude > MaxSafeMagnitude:
		return &UnsafeError{Point: s.Z, Reason: fmt.Sprintf("magnitude %.3g exceeds %.0e", s.Magnitude, MaxSafeMagnitude)}
	}
	return nil
}

// safeEval converts a panic inside f into an error.
func safeEval(f expr.Func, z complex128) (v complex128, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("evaluation panicked: %v", r)
		}
	}()
	return f(z)
}

func formatComplex(z complex128) string {
	return fmt.Sprintf("%g%+gi", real(z), imag(z))
}
