// internal/render/camera.go
package render

import "math"

type vec3 struct{ X, Y, Z float64 }

func (a vec3) sub(b vec3) vec3      { return vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a vec3) dot(b vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a vec3) scale(k float64) vec3 { return vec3{a.X * k, a.Y * k, a.Z * k} }

func (a vec3) cross(b vec3) vec3 {
	return vec3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

func (a vec3) norm() vec3 {
	l := math.Sqrt(a.dot(a))
	if l == 0 {
		return a
	}
	return a.scale(1 / l)
}

const (
	// frameHeightUnits is the scene's visible height in world units.
	frameHeightUnits = 8.0
	// focalDistance is the distance from the camera to the origin.
	focalDistance = 20.0
)

// camera projects world points for one frame.
type camera struct {
	right, up, toward vec3
	cx, cy            float64
	pixelsPerUnit     float64
}

// newCamera orients a camera at polar angle phi and azimuth theta (radians)
// looking at the origin.
func newCamera(phi, theta float64, width, height int) camera {
	sp, cp := math.Sincos(phi)
	st, ct := math.Sincos(theta)
	return camera{
		right:         vec3{-st, ct, 0},
		up:            vec3{-cp * ct, -cp * st, sp},
		toward:        vec3{sp * ct, sp * st, cp},
		cx:            float64(width) / 2,
		cy:            float64(height) / 2,
		pixelsPerUnit: float64(height) / frameHeightUnits,
	}
}

// project returns pixel coordinates and depth; larger depth is nearer.
func (c camera) project(p vec3) (x, y, depth float64) {
	depth = p.dot(c.toward)
	d := focalDistance - depth
	if d < 0.1 {
		d = 0.1
	}
	k := c.pixelsPerUnit * focalDistance / d
	return c.cx + p.dot(c.right)*k, c.cy - p.dot(c.up)*k, depth
}
