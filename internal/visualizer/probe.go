// internal/visualizer/probe.go
package visualizer

import (
	"fmt"
	"math"

	"github.com/colebrumley/zplot/internal/surface"
)

// SampleReport is one probe evaluation in JSON-friendly form.
type SampleReport struct {
	Z         string   `json:"z"`
	Real      *float64 `json:"real,omitempty"`
	Imag      *float64 `json:"imag,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ProbeResult is the outcome of the safety probe for one expression.
type ProbeResult struct {
	Expression string         `json:"expression"`
	Normalized string         `json:"normalized"`
	Safe       bool           `json:"safe"`
	Reason     string         `json:"reason,omitempty"`
	Samples    []SampleReport `json:"samples"`
}

// ProbeReport prepares raw and reports every probe sample along with the
// verdict. An unsafe function is not an error here; only invalid input is.
func (v *Visualizer) ProbeReport(raw string) (*ProbeResult, error) {
	plan, err := v.Prepare(raw)
	if err != nil {
		return nil, err
	}

	rep := &ProbeResult{
		Expression: plan.Expression(),
		Normalized: plan.Normalized,
		Safe:       true,
	}
	for _, s := range surface.ProbeSamples(plan.Func) {
		sr := SampleReport{Z: fmt.Sprintf("%g%+gi", real(s.Z), imag(s.Z))}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		} else {
			sr.Real = finiteOrNil(real(s.Value))
			sr.Imag = finiteOrNil(imag(s.Value))
			sr.Magnitude = finiteOrNil(s.Magnitude)
		}
		rep.Samples = append(rep.Samples, sr)
	}
	if err := surface.Probe(plan.Func); err != nil {
		rep.Safe = false
		rep.Reason = err.Error()
	}
	return rep, nil
}

// encoding/json rejects NaN and Inf.
func finiteOrNil(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
