// internal/render/draw.go
package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
)

// fillPolygon rasterises a convex polygon given in pixel coordinates. The
// rasterizer is sized to the polygon's clipped bounding box so that each
// call only touches the pixels it can cover.
func fillPolygon(ras *vector.Rasterizer, img *image.RGBA, pts [][2]float64, c color.NRGBA) {
	if len(pts) < 3 || c.A == 0 {
		return
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	box := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1).
		Intersect(img.Bounds())
	if box.Empty() {
		return
	}

	ras.Reset(box.Dx(), box.Dy())
	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	ras.MoveTo(float32(pts[0][0]-ox), float32(pts[0][1]-oy))
	for _, p := range pts[1:] {
		ras.LineTo(float32(p[0]-ox), float32(p[1]-oy))
	}
	ras.ClosePath()
	ras.Draw(img, box, image.NewUniform(c), image.Point{})
}

// drawLine draws a segment between two world points as a thin quad.
func drawLine(ras *vector.Rasterizer, img *image.RGBA, cam camera, from, to vec3, width float64, c color.NRGBA) {
	x0, y0, _ := cam.project(from)
	x1, y1, _ := cam.project(to)
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l < 0.5 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	fillPolygon(ras, img, [][2]float64{
		{x0 + nx, y0 + ny},
		{x1 + nx, y1 + ny},
		{x1 - nx, y1 - ny},
		{x0 - nx, y0 - ny},
	}, c)
}
