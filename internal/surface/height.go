// internal/surface/height.go
package surface

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"github.com/colebrumley/zplot/internal/expr"
	"golang.org/x/sync/errgroup"
)

// CompressThreshold is the magnitude above which heights are log-compressed.
const CompressThreshold = 3.0

// Compress keeps large magnitudes on screen: values above the threshold t
// become t*(1+ln(m/t)), which is continuous at t and grows logarithmically.
func Compress(m float64) float64 {
	if m > CompressThreshold {
		return CompressThreshold * (1 + math.Log(m/CompressThreshold))
	}
	return m
}

// Height maps a grid coordinate to a surface point. The height is the
// compressed magnitude of f(x+iy), or 0 when f fails or panics there.
func Height(f expr.Func, x, y float64) (float64, float64, float64) {
	z, _ := point(f, x, y)
	return x, y, z
}

// point returns the compressed height and the phase of f(x+iy). A failed
// evaluation yields height 0 and phase NaN.
func point(f expr.Func, x, y float64) (height, phase float64) {
	v, err := safeEval(f, complex(x, y))
	if err != nil {
		return 0, math.NaN()
	}
	m := cmplx.Abs(v)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, math.NaN()
	}
	return Compress(m), cmplx.Phase(v)
}

// Grid is a square sampling grid over [Min, Max] x [Min, Max].
type Grid struct {
	Min        float64
	Max        float64
	Resolution int // cells per side
}

// DefaultGrid is [-3,3]^2 with 100x100 cells.
var DefaultGrid = Grid{Min: -3, Max: 3, Resolution: 100}

// Validate rejects grids that cannot be sampled.
func (g Grid) Validate() error {
	if g.Resolution < 1 || g.Resolution > 1000 {
		return fmt.Errorf("grid resolution %d out of range [1, 1000]", g.Resolution)
	}
	if !(g.Max > g.Min) {
		return fmt.Errorf("grid range [%g, %g] is empty", g.Min, g.Max)
	}
	return nil
}

// Coord returns the coordinate of vertex index i along one axis.
func (g Grid) Coord(i int) float64 {
	return g.Min + (g.Max-g.Min)*float64(i)/float64(g.Resolution)
}

// Field is a sampled height field with (Resolution+1)^2 vertices in
// row-major order: vertex (i, j) has x = Coord(i), y = Coord(j).
type Field struct {
	Grid    Grid
	Heights []float64
	Phases  []float64
}

// Size returns the number of vertices per side.
func (f *Field) Size() int { return f.Grid.Resolution + 1 }

// At returns the height at vertex (i, j).
func (f *Field) At(i, j int) float64 { return f.Heights[i*f.Size()+j] }

// PhaseAt returns arg f(z) at vertex (i, j), NaN where f failed.
func (f *Field) PhaseAt(i, j int) float64 { return f.Phases[i*f.Size()+j] }

// MaxHeight returns the largest sampled height.
func (f *Field) MaxHeight() float64 {
	maxH := 0.0
	for _, h := range f.Heights {
		if h > maxH {
			maxH = h
		}
	}
	return maxH
}

// Sample evaluates f over every vertex of g. Rows are sampled in parallel;
// the result depends only on f and g.
func Sample(ctx context.Context, f expr.Func, g Grid) (*Field, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	n := g.Resolution + 1
	field := &Field{
		Grid:    g,
		Heights: make([]float64, n*n),
		Phases:  make([]float64, n*n),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x := g.Coord(i)
			for j := 0; j < n; j++ {
				h, p := point(f, x, g.Coord(j))
				field.Heights[i*n+j] = h
				field.Phases[i*n+j] = p
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("sampling height field: %w", err)
	}
	return field, nil
}
