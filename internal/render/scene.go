// internal/render/scene.go
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strconv"

	"github.com/colebrumley/zplot/internal/surface"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Axis lengths in world units before AxisScale.
const (
	axisLengthXY = frameHeightUnits + 2.5
	axisLengthZ  = frameHeightUnits - 1.5
)

var (
	background = color.RGBA{0, 0, 0, 255}
	axisColor  = color.NRGBA{220, 220, 220, 255}
	labelColor = color.NRGBA{235, 235, 235, 255}
	// checkerboard fills
	blueD = color.NRGBA{0x29, 0xAB, 0xCA, 255}
	blueE = color.NRGBA{0x23, 0x6B, 0x8E, 255}
	// light direction for face shading
	lightDir = vec3{-0.4, 0.5, 1}.norm()
)

type face struct {
	corners [4]vec3
	fill    color.NRGBA
}

type segment struct {
	from, to vec3
}

type tick struct {
	at    vec3
	label string
	// position along its axis in [0, 1], used while the axes grow in
	along float64
}

// Scene is the precomputed geometry of one animation. Frame is safe for
// concurrent use.
type Scene struct {
	settings Settings
	faces    []face
	axes     [3]segment
	ticks    []tick
}

// NewScene builds the surface faces and axes for a sampled field.
func NewScene(field *surface.Field, s Settings) (*Scene, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid render settings: %w", err)
	}
	if field == nil || len(field.Heights) != field.Size()*field.Size() {
		return nil, fmt.Errorf("height field is empty")
	}

	sc := &Scene{settings: s}
	sc.buildAxes()
	sc.buildFaces(field)
	return sc, nil
}

// Settings returns the settings the scene was built with.
func (sc *Scene) Settings() Settings { return sc.settings }

// FrameCount returns the number of frames in the animation.
func (sc *Scene) FrameCount() int { return sc.settings.FrameCount() }

// FaceCount returns the number of surface faces.
func (sc *Scene) FaceCount() int { return len(sc.faces) }

// c2p maps plot coordinates to world coordinates.
func (sc *Scene) c2p(x, y, z float64) vec3 {
	s := sc.settings
	unitXY := axisLengthXY / (2 * s.AxisRange) * s.AxisScale
	unitZ := axisLengthZ / (2 * s.AxisRange) * s.AxisScale
	return vec3{x * unitXY, y * unitXY, z * unitZ}
}

func (sc *Scene) buildAxes() {
	r := sc.settings.AxisRange
	sc.axes = [3]segment{
		{sc.c2p(-r, 0, 0), sc.c2p(r, 0, 0)},
		{sc.c2p(0, -r, 0), sc.c2p(0, r, 0)},
		{sc.c2p(0, 0, -r), sc.c2p(0, 0, r)},
	}

	n := int(math.Floor(r))
	for v := -n; v <= n; v++ {
		if v == 0 {
			continue
		}
		fv := float64(v)
		along := (fv + r) / (2 * r)
		label := strconv.Itoa(v)
		sc.ticks = append(sc.ticks,
			tick{at: sc.c2p(fv, 0, 0), label: label, along: along},
			tick{at: sc.c2p(0, fv, 0), label: label, along: along},
			tick{at: sc.c2p(0, 0, fv), label: label, along: along},
		)
	}
}

func (sc *Scene) buildFaces(field *surface.Field) {
	g := field.Grid
	n := g.Resolution
	maxH := field.MaxHeight()
	alpha := uint8(math.Round(sc.settings.FillOpacity * 255))

	sc.faces = make([]face, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			f := face{corners: [4]vec3{
				sc.c2p(g.Coord(i), g.Coord(j), field.At(i, j)),
				sc.c2p(g.Coord(i+1), g.Coord(j), field.At(i+1, j)),
				sc.c2p(g.Coord(i+1), g.Coord(j+1), field.At(i+1, j+1)),
				sc.c2p(g.Coord(i), g.Coord(j+1), field.At(i, j+1)),
			}}

			var base color.NRGBA
			if sc.settings.Coloring == ColoringDomain {
				base = domainColor(field.PhaseAt(i, j), field.At(i, j), maxH)
			} else if (i+j)%2 == 0 {
				base = blueD
			} else {
				base = blueE
			}
			f.fill = shade(base, f.corners, alpha)
			sc.faces = append(sc.faces, f)
		}
	}
}

// shade darkens a face by how far its normal turns from the light.
func shade(c color.NRGBA, q [4]vec3, alpha uint8) color.NRGBA {
	normal := q[2].sub(q[0]).cross(q[3].sub(q[1])).norm()
	k := 0.55 + 0.45*math.Abs(normal.dot(lightDir))
	return color.NRGBA{
		R: uint8(float64(c.R) * k),
		G: uint8(float64(c.G) * k),
		B: uint8(float64(c.B) * k),
		A: alpha,
	}
}

// domainColor maps phase to hue and log-scaled height to lightness. Points
// where f failed are black.
func domainColor(phase, height, maxHeight float64) color.NRGBA {
	if math.IsNaN(phase) {
		return color.NRGBA{0, 0, 0, 255}
	}
	hue := (phase + math.Pi) / (2 * math.Pi)
	norm := 0.0
	if maxHeight > 0 {
		norm = math.Log1p(height) / math.Log1p(maxHeight)
	}
	return hslToRGB(hue, 0.85, 0.4+0.3*norm)
}

func hslToRGB(h, s, l float64) color.NRGBA {
	c := (1 - math.Abs(2*l-1)) * s
	hp := math.Mod(h*6, 6)
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := l - c/2
	to8 := func(v float64) uint8 { return uint8(math.Round(math.Max(0, math.Min(1, v+m)) * 255)) }
	return color.NRGBA{to8(r), to8(g), to8(b), 255}
}

// smooth is a sigmoid ease from 0 to 1.
func smooth(t float64) float64 {
	const inflection = 10.0
	sigmoid := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	e := sigmoid(-inflection / 2)
	v := (sigmoid(inflection*(t-0.5)) - e) / (1 - 2*e)
	return math.Max(0, math.Min(1, v))
}

// progress returns how far the axes and the surface have been drawn at time t.
func (sc *Scene) progress(t float64) (axes, surf float64) {
	s := sc.settings
	ad := s.AxesDuration.Seconds()
	sd := s.SurfaceDuration.Seconds()

	axes, surf = 1, 1
	if ad > 0 && t < ad {
		return smooth(t / ad), 0
	}
	if sd > 0 && t < ad+sd {
		surf = smooth((t - ad) / sd)
	}
	return axes, surf
}

// Frame draws frame i (0-based).
func (sc *Scene) Frame(i int) *image.RGBA {
	s := sc.settings
	t := float64(i) / float64(s.FPS)
	axesP, surfP := sc.progress(t)

	theta := s.Theta*math.Pi/180 + s.RotationRate*t
	cam := newCamera(s.Phi*math.Pi/180, theta, s.Width, s.Height)

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for k := 0; k < len(img.Pix); k += 4 {
		img.Pix[k], img.Pix[k+1], img.Pix[k+2], img.Pix[k+3] = background.R, background.G, background.B, background.A
	}
	ras := vector.NewRasterizer(1, 1)

	for _, a := range sc.axes {
		end := a.from.sub(a.from.sub(a.to).scale(axesP))
		drawLine(ras, img, cam, a.from, end, 2, axisColor)
	}

	visible := int(math.Round(surfP * float64(len(sc.faces))))
	sc.drawFaces(ras, img, cam, sc.faces[:visible])

	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	for _, tk := range sc.ticks {
		if axesP == 0 || tk.along > axesP {
			continue
		}
		x, y, _ := cam.project(tk.at)
		d.Dot = fixed.P(int(x)+4, int(y)+14)
		d.DrawString(tk.label)
	}
	return img
}

type projectedFace struct {
	pts   [4][2]float64
	depth float64
	fill  color.NRGBA
}

func (sc *Scene) drawFaces(ras *vector.Rasterizer, img *image.RGBA, cam camera, faces []face) {
	proj := make([]projectedFace, 0, len(faces))
	for _, f := range faces {
		var pf projectedFace
		ok := true
		for k, c := range f.corners {
			x, y, d := cam.project(c)
			if math.IsNaN(x) || math.IsNaN(y) {
				ok = false
				break
			}
			pf.pts[k] = [2]float64{x, y}
			pf.depth += d / 4
		}
		if !ok {
			continue
		}
		pf.fill = f.fill
		proj = append(proj, pf)
	}

	// painter's order: farthest first
	sort.SliceStable(proj, func(a, b int) bool { return proj[a].depth < proj[b].depth })

	for _, pf := range proj {
		fillPolygon(ras, img, pf.pts[:], pf.fill)
	}
}
