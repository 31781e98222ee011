// internal/executor/ffmpeg.go
// Package executor runs the external video encoder.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/colebrumley/zplot/internal/security"
)

var (
	// ErrOutputMissing is returned when the encoder exits cleanly but the
	// requested output file is absent or empty.
	ErrOutputMissing = errors.New("video file not found")
	// ErrTimeout is returned when the encoder is stopped by its context deadline.
	ErrTimeout = errors.New("encoding timed out")
)

// Output describes the video to produce.
type Output struct {
	Path   string
	Width  int
	Height int
	FPS    int
}

// Session accepts frames for one video. Close finishes the video and must
// always be called.
type Session interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// Encoder starts encoding sessions.
type Encoder interface {
	Start(ctx context.Context, out Output) (Session, error)
}

// FFmpeg encodes raw RGBA frames to H.264 MP4 with an ffmpeg subprocess.
type FFmpeg struct {
	Path   string // binary, default "ffmpeg"
	Preset string // x264 preset, default "medium"
	CRF    int    // default 23
	Debug  bool   // pass -loglevel info instead of error
	Logger *slog.Logger
}

// BuildArgs constructs the ffmpeg command-line arguments. Frames are read
// from stdin; the output path is always last.
func BuildArgs(out Output, preset string, crf int, debug bool) []string {
	if preset == "" {
		preset = "medium"
	}
	if crf <= 0 {
		crf = 23
	}
	level := "error"
	if debug {
		level = "info"
	}

	return []string{
		"-hide_banner",
		"-loglevel", level,
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", out.Width, out.Height),
		"-r", strconv.Itoa(out.FPS),
		"-i", "pipe:0",
		"-an",
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out.Path,
	}
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() error {
	_, err := exec.LookPath(f.binary())
	return err
}

func (f *FFmpeg) binary() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f *FFmpeg) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f.Logger
}

// Start launches ffmpeg writing to out.Path.
func (f *FFmpeg) Start(ctx context.Context, out Output) (Session, error) {
	if out.Path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if out.Width <= 0 || out.Height <= 0 || out.FPS <= 0 {
		return nil, fmt.Errorf("invalid output geometry %dx%d@%d", out.Width, out.Height, out.FPS)
	}

	args := BuildArgs(out, f.Preset, f.CRF, f.Debug)
	cmd := exec.CommandContext(ctx, f.binary(), args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating encoder stdin: %w", err)
	}
	s := &ffmpegSession{
		ctx:    ctx,
		cmd:    cmd,
		stdin:  stdin,
		out:    out,
		logger: f.logger(),
		start:  time.Now(),
	}
	cmd.Stdout = &s.output
	cmd.Stderr = &s.output

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting encoder: %w", err)
	}
	return s, nil
}

type ffmpegSession struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    Output
	output bytes.Buffer
	logger *slog.Logger
	start  time.Time
	frames int

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegSession) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.out.Width || b.Dy() != s.out.Height {
		return fmt.Errorf("frame size %dx%d does not match output %dx%d", b.Dx(), b.Dy(), s.out.Width, s.out.Height)
	}

	rowLen := 4 * b.Dx()
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		if _, err := s.stdin.Write(img.Pix[:rowLen*b.Dy()]); err != nil {
			return fmt.Errorf("writing frame to encoder: %w", err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			if _, err := s.stdin.Write(img.Pix[off : off+rowLen]); err != nil {
				return fmt.Errorf("writing frame to encoder: %w", err)
			}
		}
	}
	s.frames++
	return nil
}

func (s *ffmpegSession) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.finish() })
	return s.closeErr
}

func (s *ffmpegSession) finish() error {
	s.stdin.Close()
	err := s.cmd.Wait()
	duration := time.Since(s.start)
	tail := security.TailOutput(s.output.String())

	if tail != "" {
		s.logger.Debug("encoder output", "output", tail)
	}

	if err != nil {
		if errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		if s.ctx.Err() != nil {
			return fmt.Errorf("encoding cancelled: %w", s.ctx.Err())
		}
		if tail != "" {
			return fmt.Errorf("encoder failed: %w: %s", err, tail)
		}
		return fmt.Errorf("encoder failed: %w", err)
	}

	info, statErr := os.Stat(s.out.Path)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%w at expected path %s", ErrOutputMissing, s.out.Path)
	}

	s.logger.Debug("encoded video",
		"frames", s.frames,
		"bytes", info.Size(),
		"duration", duration.Truncate(time.Millisecond).String(),
	)
	return nil
}
