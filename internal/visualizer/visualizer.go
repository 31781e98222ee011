// internal/visualizer/visualizer.go
// Package visualizer turns a raw function expression into a rendered video.
package visualizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/colebrumley/zplot/internal/executor"
	"github.com/colebrumley/zplot/internal/expr"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/security"
	"github.com/colebrumley/zplot/internal/surface"
)

// WorkDirPrefix names per-request scratch directories.
const WorkDirPrefix = "zplot-render-"

// Options configures a Visualizer.
type Options struct {
	// MaxConcurrent bounds simultaneous renders. Default 2.
	MaxConcurrent int
	// Timeout bounds a single render including encoding. Default 2m.
	Timeout time.Duration
	// WorkDir holds per-request scratch directories. Default os.TempDir().
	WorkDir string
	// MaxExpressionLength overrides the sanitizer limit when positive.
	MaxExpressionLength int
}

// Visualizer validates expressions and renders them. It is safe for
// concurrent use; every call carries its own render.Settings.
type Visualizer struct {
	opts   Options
	enc    executor.Encoder
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// New creates a Visualizer that encodes with enc.
func New(opts Options, enc executor.Encoder, logger *slog.Logger) *Visualizer {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Visualizer{
		opts:   opts,
		enc:    enc,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger: logger,
	}
}

// Options returns the effective options.
func (v *Visualizer) Options() Options { return v.opts }

// Plan is a validated, compiled expression.
type Plan struct {
	Raw        string
	Normalized string
	Node       expr.Node
	Func       expr.Func
}

// Expression is the canonical form of the parsed expression.
func (p *Plan) Expression() string { return p.Node.String() }

// Result is a finished video.
type Result struct {
	Video      []byte
	Expression string
	Normalized string
	Frames     int
	Duration   time.Duration
}

// Prepare sanitizes, parses and compiles raw. Failures are KindInvalidExpression.
func (v *Visualizer) Prepare(raw string) (*Plan, error) {
	normalized, err := security.SanitizeExpressionN(raw, v.opts.MaxExpressionLength)
	if err != nil {
		return nil, &Error{Kind: KindInvalidExpression, Err: err}
	}
	node, f, err := expr.ParseFunc(normalized)
	if err != nil {
		return nil, &Error{Kind: KindInvalidExpression,
			Err: fmt.Errorf("invalid function expression: %s: %w", normalized, err)}
	}
	return &Plan{Raw: raw, Normalized: normalized, Node: node, Func: f}, nil
}

// Generate renders raw to an in-memory MP4. The scratch directory is removed
// before returning, on success and failure alike.
func (v *Visualizer) Generate(ctx context.Context, raw string, settings render.Settings) (*Result, error) {
	plan, err := v.Prepare(raw)
	if err != nil {
		return nil, err
	}
	if err := surface.Probe(plan.Func); err != nil {
		return nil, renderingError(err)
	}

	dir, err := v.makeWorkDir()
	if err != nil {
		return nil, renderingError(err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			v.logger.Warn("failed to remove work dir", "dir", dir, "error", err)
		}
	}()

	out := filepath.Join(dir, "scene.mp4")
	res, err := v.encode(ctx, plan, settings, out, nil)
	if err != nil {
		return nil, err
	}

	res.Video, err = os.ReadFile(out)
	if err != nil {
		return nil, renderingError(fmt.Errorf("reading video: %w", err))
	}
	if len(res.Video) == 0 {
		return nil, renderingError(executor.ErrOutputMissing)
	}
	return res, nil
}

// RenderFile renders a prepared plan to path. The returned Result has no
// Video bytes; the file at path is the output.
func (v *Visualizer) RenderFile(ctx context.Context, plan *Plan, settings render.Settings, path string, progress render.ProgressFunc) (*Result, error) {
	if err := surface.Probe(plan.Func); err != nil {
		return nil, renderingError(err)
	}
	return v.encode(ctx, plan, settings, path, progress)
}

// encode renders a plan that has already passed the probe.
func (v *Visualizer) encode(ctx context.Context, plan *Plan, settings render.Settings, path string, progress render.ProgressFunc) (*Result, error) {
	if err := settings.Validate(); err != nil {
		return nil, renderingError(fmt.Errorf("invalid render settings: %w", err))
	}

	release, err := v.acquire(ctx)
	if err != nil {
		return nil, renderingError(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	start := time.Now()
	sc, err := v.scene(ctx, plan, settings)
	if err != nil {
		return nil, renderingError(timeoutOr(ctx, err))
	}

	sess, err := v.enc.Start(ctx, executor.Output{
		Path:   path,
		Width:  settings.Width,
		Height: settings.Height,
		FPS:    settings.FPS,
	})
	if err != nil {
		return nil, renderingError(err)
	}
	renderErr := render.Render(ctx, sc, sess, progress)
	closeErr := sess.Close()
	if renderErr != nil {
		return nil, renderingError(timeoutOr(ctx, renderErr))
	}
	if closeErr != nil {
		return nil, renderingError(timeoutOr(ctx, closeErr))
	}

	res := &Result{
		Expression: plan.Expression(),
		Normalized: plan.Normalized,
		Frames:     sc.FrameCount(),
		Duration:   time.Since(start),
	}
	if info, err := os.Stat(path); err == nil {
		v.logger.Info("rendered visualization",
			"expression", res.Expression,
			"frames", res.Frames,
			"size", humanize.Bytes(uint64(info.Size())),
			"duration", res.Duration.Truncate(time.Millisecond).String(),
		)
	}
	return res, nil
}

// Preview renders only the final frame of the scene as PNG.
func (v *Visualizer) Preview(ctx context.Context, raw string, settings render.Settings) ([]byte, error) {
	plan, err := v.Prepare(raw)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, renderingError(fmt.Errorf("invalid render settings: %w", err))
	}
	if err := surface.Probe(plan.Func); err != nil {
		return nil, renderingError(err)
	}

	release, err := v.acquire(ctx)
	if err != nil {
		return nil, renderingError(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	sc, err := v.scene(ctx, plan, settings)
	if err != nil {
		return nil, renderingError(timeoutOr(ctx, err))
	}
	var buf bytes.Buffer
	if err := render.WriteStill(&buf, sc); err != nil {
		return nil, renderingError(err)
	}
	return buf.Bytes(), nil
}

func (v *Visualizer) scene(ctx context.Context, plan *Plan, settings render.Settings) (*render.Scene, error) {
	field, err := surface.Sample(ctx, plan.Func, settings.Grid)
	if err != nil {
		return nil, err
	}
	return render.NewScene(field, settings)
}

func (v *Visualizer) acquire(ctx context.Context) (func(), error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a render slot: %w", err)
	}
	return func() { v.sem.Release(1) }, nil
}

func (v *Visualizer) makeWorkDir() (string, error) {
	if err := security.EnsureWorkDir(v.opts.WorkDir); err != nil {
		return "", err
	}
	dir := filepath.Join(v.opts.WorkDir, WorkDirPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0700); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}
	return dir, nil
}

// timeoutOr reports the render deadline as executor.ErrTimeout.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(err, executor.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return executor.ErrTimeout
	}
	return err
}
