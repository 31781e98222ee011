// internal/render/render.go
package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FrameSink receives frames in order.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
}

// ProgressFunc is called after each frame is written.
type ProgressFunc func(done, total int)

// Render draws every frame of sc and writes them to sink in order. Frames
// are drawn in parallel batches of GOMAXPROCS; writing is sequential.
func Render(ctx context.Context, sc *Scene, sink FrameSink, progress ProgressFunc) error {
	total := sc.FrameCount()
	batch := runtime.GOMAXPROCS(0)
	frames := make([]*image.RGBA, batch)

	for start := 0; start < total; start += batch {
		end := min(start+batch, total)

		eg, gctx := errgroup.WithContext(ctx)
		for k := start; k < end; k++ {
			eg.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				frames[k-start] = sc.Frame(k)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return fmt.Errorf("drawing frames: %w", err)
		}

		for k := start; k < end; k++ {
			if err := sink.WriteFrame(frames[k-start]); err != nil {
				return fmt.Errorf("writing frame %d: %w", k, err)
			}
			frames[k-start] = nil
			if progress != nil {
				progress(k+1, total)
			}
		}
	}
	return ctx.Err()
}

// WriteStill encodes the last frame of the scene, with the surface fully
// drawn, as PNG.
func WriteStill(w io.Writer, sc *Scene) error {
	img := sc.Frame(sc.FrameCount() - 1)
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
