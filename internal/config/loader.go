// internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/security"
	"github.com/colebrumley/zplot/internal/surface"
	"github.com/colebrumley/zplot/internal/trigger"
)

// LoadGlobal loads the global configuration from a YAML file
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyGlobalDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Environment overrides are applied either way.
func LoadOrDefault(path string) (*Global, error) {
	cfg, err := LoadGlobal(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Global {
	var cfg Global
	applyGlobalDefaults(&cfg)
	return &cfg
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// DefaultPath is $ZPLOT_CONFIG, or config.yaml under the user config dir.
func DefaultPath() string {
	if p := os.Getenv("ZPLOT_CONFIG"); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "zplot", "config.yaml")
	}
	return "config.yaml"
}

// ApplyEnv applies ZPLOT_LISTEN ("host:port") on top of cfg.
func ApplyEnv(cfg *Global) error {
	listen := os.Getenv("ZPLOT_LISTEN")
	if listen == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return fmt.Errorf("parsing ZPLOT_LISTEN: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("parsing ZPLOT_LISTEN: invalid port %q", port)
	}
	if host != "" {
		cfg.Server.ListenAddress = host
	}
	cfg.Server.ListenPort = p
	return nil
}

func applyGlobalDefaults(cfg *Global) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1"
	}
	if cfg.Server.ListenPort == 0 {
		cfg.Server.ListenPort = 8000
	}
	if cfg.Server.RateBurst <= 0 && cfg.Server.RateLimit > 0 {
		cfg.Server.RateBurst = cfg.Server.RateLimit
	}
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 30
	}
	if cfg.Render.Quality == "" {
		cfg.Render.Quality = "medium_quality"
	}
	if cfg.Render.Range == 0 {
		cfg.Render.Range = 3
	}
	if cfg.Render.Resolution == 0 {
		cfg.Render.Resolution = surface.DefaultGrid.Resolution
	}
	if cfg.Render.Coloring == "" {
		cfg.Render.Coloring = string(render.ColoringCheckerboard)
	}
	if cfg.Render.MaxConcurrent <= 0 {
		cfg.Render.MaxConcurrent = 2
	}
	if cfg.Render.TimeoutSeconds <= 0 {
		cfg.Render.TimeoutSeconds = 120
	}
	if cfg.Render.FFmpegPath == "" {
		cfg.Render.FFmpegPath = "ffmpeg"
	}
	if cfg.Render.Preset == "" {
		cfg.Render.Preset = "medium"
	}
	if cfg.Render.CRF <= 0 {
		cfg.Render.CRF = 23
	}
	if cfg.Render.WorkDir == "" {
		cfg.Render.WorkDir = filepath.Join(os.TempDir(), "zplot")
	}
	if cfg.Render.SweepSchedule == "" {
		cfg.Render.SweepSchedule = "@every 15m"
	}
	if cfg.Render.StaleAfterMinutes <= 0 {
		cfg.Render.StaleAfterMinutes = 30
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "auto"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupSchedule == "" {
		cfg.History.CleanupSchedule = "@daily"
	}
	// History: only set default path if enabled and path not set
	if cfg.History.Enabled && cfg.History.Path == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.History.Path = filepath.Join(dir, "zplot", "history.db")
		}
	}
	if cfg.Limits.MaxExpressionLength <= 0 {
		cfg.Limits.MaxExpressionLength = security.MaxExpressionLength
	}

	cfg.Render.WorkDir = expandHome(cfg.Render.WorkDir)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
}

// expandHome resolves a leading ~ to the current user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// Validate checks values that defaults cannot repair.
func (g *Global) Validate() error {
	if g.Server.ListenPort < 1 || g.Server.ListenPort > 65535 {
		return fmt.Errorf("server.listen_port %d out of range", g.Server.ListenPort)
	}
	if g.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	switch g.Logging.Format {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("logging.format %q must be json, text or auto", g.Logging.Format)
	}
	if g.History.Enabled && g.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if _, err := g.Render.Settings(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if _, err := trigger.ParseSchedule(g.Render.SweepSchedule); err != nil {
		return fmt.Errorf("render.sweep_schedule: %w", err)
	}
	if _, err := trigger.ParseSchedule(g.History.CleanupSchedule); err != nil {
		return fmt.Errorf("history.cleanup_schedule: %w", err)
	}
	return nil
}

// Settings builds the per-request render settings described by the config.
func (r RenderConfig) Settings() (render.Settings, error) {
	s, err := render.DefaultSettings().WithQuality(r.Quality)
	if err != nil {
		return render.Settings{}, err
	}
	if r.Width > 0 {
		s.Width = r.Width
	}
	if r.Height > 0 {
		s.Height = r.Height
	}
	if r.FPS > 0 {
		s.FPS = r.FPS
	}
	if r.Range > 0 {
		s.AxisRange = r.Range
		s.Grid.Min, s.Grid.Max = -r.Range, r.Range
	}
	if r.Resolution > 0 {
		s.Grid.Resolution = r.Resolution
	}
	coloring, err := render.ParseColoring(r.Coloring)
	if err != nil {
		return render.Settings{}, err
	}
	s.Coloring = coloring

	if err := s.Validate(); err != nil {
		return render.Settings{}, err
	}
	return s, nil
}

// Timeout is the per-render deadline.
func (r RenderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// StaleAfter is the age at which an abandoned work dir is swept.
func (r RenderConfig) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterMinutes) * time.Minute
}

// ListenAddr is the HTTP listen address in host:port form.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.ListenAddress, strconv.Itoa(s.ListenPort))
}

// ShutdownTimeout bounds graceful shutdown.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}
