// internal/daemon/build.go
package daemon

import (
	"fmt"
	"log/slog"

	"github.com/colebrumley/zplot/internal/config"
	"github.com/colebrumley/zplot/internal/executor"
	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/security"
	"github.com/colebrumley/zplot/internal/visualizer"
)

// NewLogger builds the process logger from the logging section. The closer
// must be closed on exit.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	level := cfg.Level
	if cfg.Debug {
		level = "debug"
	}
	logger, closer, err := logging.Setup(cfg.Format, level, cfg.File, cfg.MaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logger, closer.Close, nil
}

// NewEncoder builds the ffmpeg encoder described by the render section.
func NewEncoder(cfg *config.Global, logger *slog.Logger) *executor.FFmpeg {
	return &executor.FFmpeg{
		Path:   cfg.Render.FFmpegPath,
		Preset: cfg.Render.Preset,
		CRF:    cfg.Render.CRF,
		Debug:  cfg.Logging.Debug,
		Logger: logger,
	}
}

// NewVisualizer prepares the work directory and builds a Visualizer that
// encodes with enc.
func NewVisualizer(cfg *config.Global, enc executor.Encoder, logger *slog.Logger) (*visualizer.Visualizer, error) {
	if err := security.EnsureWorkDir(cfg.Render.WorkDir); err != nil {
		return nil, err
	}
	return visualizer.New(visualizer.Options{
		MaxConcurrent:       cfg.Render.MaxConcurrent,
		Timeout:             cfg.Render.Timeout(),
		WorkDir:             cfg.Render.WorkDir,
		MaxExpressionLength: cfg.Limits.MaxExpressionLength,
	}, enc, logger), nil
}

// OpenHistory opens the history database, or returns nil when history is
// disabled.
func OpenHistory(cfg config.HistoryConfig) (*history.DB, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	db, err := history.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	return db, nil
}
