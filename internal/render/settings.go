// internal/render/settings.go
// Package render draws the animated 3D surface scene frame by frame.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/colebrumley/zplot/internal/surface"
)

// Coloring selects how surface faces are filled.
type Coloring string

const (
	// ColoringCheckerboard alternates two blues across grid cells.
	ColoringCheckerboard Coloring = "checkerboard"
	// ColoringDomain colours each cell by the phase of f, lightness by magnitude.
	ColoringDomain Coloring = "domain"
)

// ParseColoring accepts "", "checkerboard" or "domain".
func ParseColoring(s string) (Coloring, error) {
	switch Coloring(s) {
	case "", ColoringCheckerboard:
		return ColoringCheckerboard, nil
	case ColoringDomain:
		return ColoringDomain, nil
	}
	return "", fmt.Errorf("unknown coloring %q (want checkerboard or domain)", s)
}

// Quality presets follow the usual 480p15 / 720p30 / 1080p60 ladder.
var qualityPresets = map[string]struct{ width, height, fps int }{
	"low_quality":    {854, 480, 15},
	"medium_quality": {1280, 720, 30},
	"high_quality":   {1920, 1080, 60},
}

// Settings fully describes one render. A Settings value is passed into
// every render call; nothing is read from process-wide state.
type Settings struct {
	Width   int
	Height  int
	FPS     int
	Quality string

	Grid surface.Grid

	// AxisRange is the half-extent of all three axes ([-AxisRange, AxisRange]).
	AxisRange float64
	// AxisScale shrinks the whole axes group.
	AxisScale float64

	// Camera angles in degrees; Phi is measured from +z, Theta from +x.
	Phi   float64
	Theta float64
	// RotationRate is the ambient camera rotation in radians per second.
	RotationRate float64

	AxesDuration    time.Duration
	SurfaceDuration time.Duration
	HoldDuration    time.Duration

	FillOpacity float64
	Coloring    Coloring
}

// DefaultSettings returns the reference 720p30 scene.
func DefaultSettings() Settings {
	return Settings{
		Width:           1280,
		Height:          720,
		FPS:             30,
		Quality:         "medium_quality",
		Grid:            surface.DefaultGrid,
		AxisRange:       3,
		AxisScale:       0.8,
		Phi:             60,
		Theta:           45,
		RotationRate:    0.2,
		AxesDuration:    time.Second,
		SurfaceDuration: 2 * time.Second,
		HoldDuration:    2 * time.Second,
		FillOpacity:     0.8,
		Coloring:        ColoringCheckerboard,
	}
}

// WithQuality returns s with width, height and fps taken from a preset.
func (s Settings) WithQuality(quality string) (Settings, error) {
	p, ok := qualityPresets[quality]
	if !ok {
		return s, fmt.Errorf("unknown quality %q", quality)
	}
	s.Quality = quality
	s.Width, s.Height, s.FPS = p.width, p.height, p.fps
	return s, nil
}

// Validate rejects settings that cannot produce a video.
func (s Settings) Validate() error {
	if s.Width < 16 || s.Height < 16 || s.Width > 4096 || s.Height > 4096 {
		return fmt.Errorf("frame size %dx%d out of range", s.Width, s.Height)
	}
	// yuv420p needs even dimensions
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("frame size %dx%d must be even", s.Width, s.Height)
	}
	if s.FPS < 1 || s.FPS > 120 {
		return fmt.Errorf("frame rate %d out of range [1, 120]", s.FPS)
	}
	if err := s.Grid.Validate(); err != nil {
		return err
	}
	if s.AxisRange <= 0 || s.AxisScale <= 0 {
		return fmt.Errorf("axis range and scale must be positive")
	}
	if s.AxesDuration < 0 || s.SurfaceDuration < 0 || s.HoldDuration < 0 || s.Duration() <= 0 {
		return fmt.Errorf("scene durations must be non-negative with a positive total")
	}
	if s.FillOpacity < 0 || s.FillOpacity > 1 {
		return fmt.Errorf("fill opacity %g out of range [0, 1]", s.FillOpacity)
	}
	if _, err := ParseColoring(string(s.Coloring)); err != nil {
		return err
	}
	return nil
}

// Duration is the total scene length.
func (s Settings) Duration() time.Duration {
	return s.AxesDuration + s.SurfaceDuration + s.HoldDuration
}

// FrameCount is the number of frames in the scene, at least one.
func (s Settings) FrameCount() int {
	n := int(math.Round(s.Duration().Seconds() * float64(s.FPS)))
	if n < 1 {
		n = 1
	}
	return n
}
