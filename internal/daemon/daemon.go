// internal/daemon/daemon.go
// Package daemon wires the HTTP service together and runs its background
// jobs: config hot reload, history retention and work dir sweeps.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colebrumley/zplot/internal/config"
	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/server"
	"github.com/colebrumley/zplot/internal/trigger"
	"github.com/colebrumley/zplot/internal/visualizer"
)

// Background job names, carried as trigger.Event.Name.
const (
	jobConfigReload   = "config-reload"
	jobHistoryCleanup = "history-cleanup"
	jobWorkDirSweep   = "workdir-sweep"
)

const defaultReloadDelay = time.Second

// Daemon is the zplot HTTP service
type Daemon struct {
	configPath  string
	reloadDelay time.Duration

	config     *config.Global
	settings   atomic.Pointer[render.Settings]
	vis        *visualizer.Visualizer
	history    *history.DB
	triggers   []trigger.Trigger
	events     chan trigger.Event
	logger     *slog.Logger
	closeLog   func() error
	httpServer *http.Server
	startTime  time.Time
	mu         sync.RWMutex   // guards config
	wg         sync.WaitGroup // tracks running triggers
}

// New creates a new daemon instance
func New(configPath string) *Daemon {
	return &Daemon{
		configPath:  configPath,
		reloadDelay: defaultReloadDelay,
		events:      make(chan trigger.Event, 16),
		logger:      logging.Discard(),
		closeLog:    func() error { return nil },
	}
}

// Run starts the daemon and blocks until ctx is cancelled. In-flight
// requests are given the configured shutdown timeout to finish.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.setup(); err != nil {
		return err
	}

	addr := d.currentConfig().Server.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		d.shutdown()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return d.serve(ctx, ln)
}

// Settings returns the current render settings snapshot.
func (d *Daemon) Settings() render.Settings {
	return *d.settings.Load()
}

func (d *Daemon) currentConfig() *config.Global {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

func (d *Daemon) setup() error {
	d.startTime = time.Now()

	cfg, err := config.LoadOrDefault(d.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d.config = cfg

	logger, closeLog, err := NewLogger(cfg.Logging)
	if err != nil {
		d.logger = logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)
		d.logger.Warn("failed to initialize log file, using stderr", "error", err, "file", cfg.Logging.File)
	} else {
		d.logger, d.closeLog = logger, closeLog
	}
	d.logger.Info("starting daemon", "config", d.configPath)

	settings, err := cfg.Render.Settings()
	if err != nil {
		d.closeResources()
		return fmt.Errorf("render settings: %w", err)
	}
	d.settings.Store(&settings)

	db, err := OpenHistory(cfg.History)
	if err != nil {
		d.logger.Warn("history will not be recorded", "error", err)
	}
	d.history = db

	enc := NewEncoder(cfg, d.logger)
	if err := enc.Available(); err != nil {
		d.logger.Warn("ffmpeg not found, renders will fail until it is installed",
			"ffmpeg_path", cfg.Render.FFmpegPath, "error", err)
	}

	vis, err := NewVisualizer(cfg, enc, d.logger)
	if err != nil {
		d.closeResources()
		return fmt.Errorf("preparing work directory: %w", err)
	}
	d.vis = vis

	if err := d.initTriggers(); err != nil {
		d.closeResources()
		return fmt.Errorf("initializing triggers: %w", err)
	}
	return nil
}

func (d *Daemon) initTriggers() error {
	cfg := d.currentConfig()

	if info, err := os.Stat(filepath.Dir(d.configPath)); err == nil && info.IsDir() {
		watcher, err := trigger.NewFilesystem(jobConfigReload, []string{d.configPath}, d.reloadDelay)
		if err != nil {
			return err
		}
		d.triggers = append(d.triggers, watcher)
	} else {
		d.logger.Info("config directory missing, hot reload disabled", "config", d.configPath)
	}

	sweep, err := trigger.NewScheduled(jobWorkDirSweep, cfg.Render.SweepSchedule)
	if err != nil {
		return err
	}
	d.triggers = append(d.triggers, sweep)

	if d.history != nil {
		cleanup, err := trigger.NewScheduled(jobHistoryCleanup, cfg.History.CleanupSchedule)
		if err != nil {
			return err
		}
		d.triggers = append(d.triggers, cleanup)
	}
	return nil
}

// serve runs the HTTP server on ln and the event loop until ctx ends or the
// server fails.
func (d *Daemon) serve(ctx context.Context, ln net.Listener) error {
	cfg := d.currentConfig()

	// a nil *history.DB must not become a non-nil interface
	var hist server.HistoryStore
	if d.history != nil {
		hist = d.history
	}
	handler := server.New(d.vis, d.Settings, hist, server.Options{
		RateLimit:  cfg.Server.RateLimit,
		RateBurst:  cfg.Server.RateBurst,
		TrustProxy: cfg.Server.TrustProxy,
	}, d.logger)

	d.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		if err := d.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()
	d.logger.Info("HTTP server listening", "address", ln.Addr().String())

	trigCtx, cancelTriggers := context.WithCancel(ctx)
	defer cancelTriggers()
	for _, t := range d.triggers {
		d.wg.Add(1)
		go func(t trigger.Trigger) {
			defer d.wg.Done()
			if err := t.Start(trigCtx, d.events); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("trigger error", "trigger", t.Name(), "error", err)
			}
		}(t)
	}

	d.sweepWorkDirs()
	d.cleanupHistory()
	d.logger.Info("daemon started", "triggers", len(d.triggers))

	var runErr error
loop:
	for {
		select {
		case event := <-d.events:
			d.handleEvent(event)
		case err := <-srvErr:
			runErr = fmt.Errorf("HTTP server: %w", err)
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	cancelTriggers()
	return errors.Join(runErr, d.shutdown())
}

func (d *Daemon) handleEvent(event trigger.Event) {
	switch event.Name {
	case jobConfigReload:
		d.reloadConfig()
	case jobHistoryCleanup:
		d.cleanupHistory()
	case jobWorkDirSweep:
		d.sweepWorkDirs()
	default:
		d.logger.Warn("unknown event", "name", event.Name, "type", event.Type)
	}
}

// reloadConfig re-reads the config file and swaps in the render settings.
// Requests already running keep the snapshot they started with. Sections
// that shape long-lived objects only take effect on restart.
func (d *Daemon) reloadConfig() {
	cfg, err := config.LoadGlobal(d.configPath)
	if err == nil {
		err = config.ApplyEnv(cfg)
	}
	if err != nil {
		d.logger.Error("config reload failed, keeping current settings", "error", err)
		return
	}
	settings, err := cfg.Render.Settings()
	if err != nil {
		d.logger.Error("config reload failed, keeping current settings", "error", err)
		return
	}

	d.mu.Lock()
	old := d.config
	next := *old
	next.Render.Quality = cfg.Render.Quality
	next.Render.Width = cfg.Render.Width
	next.Render.Height = cfg.Render.Height
	next.Render.FPS = cfg.Render.FPS
	next.Render.Range = cfg.Render.Range
	next.Render.Resolution = cfg.Render.Resolution
	next.Render.Coloring = cfg.Render.Coloring
	next.Render.StaleAfterMinutes = cfg.Render.StaleAfterMinutes
	next.History.RetentionDays = cfg.History.RetentionDays
	d.config = &next
	d.mu.Unlock()

	d.settings.Store(&settings)
	d.logger.Info("config reloaded",
		"size", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"fps", settings.FPS,
		"coloring", settings.Coloring,
	)
	if changed := restartRequired(old, cfg); len(changed) > 0 {
		d.logger.Warn("config changes need a restart to take effect", "sections", changed)
	}
}

// restartRequired lists changed settings that reloadConfig does not apply.
func restartRequired(old, cur *config.Global) []string {
	var changed []string
	if old.Server != cur.Server {
		changed = append(changed, "server")
	}
	if old.Logging != cur.Logging {
		changed = append(changed, "logging")
	}
	if old.Limits != cur.Limits {
		changed = append(changed, "limits")
	}
	if old.History.Enabled != cur.History.Enabled || old.History.Path != cur.History.Path ||
		old.History.CleanupSchedule != cur.History.CleanupSchedule {
		changed = append(changed, "history")
	}
	o, c := old.Render, cur.Render
	if o.MaxConcurrent != c.MaxConcurrent || o.TimeoutSeconds != c.TimeoutSeconds ||
		o.FFmpegPath != c.FFmpegPath || o.Preset != c.Preset || o.CRF != c.CRF ||
		o.WorkDir != c.WorkDir || o.SweepSchedule != c.SweepSchedule {
		changed = append(changed, "render")
	}
	return changed
}

func (d *Daemon) cleanupHistory() {
	if d.history == nil {
		return
	}
	days := d.currentConfig().History.RetentionDays
	deleted, err := d.history.Cleanup(days)
	if err != nil {
		d.logger.Warn("history cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old render records", "deleted", deleted, "retention_days", days)
	}
}

func (d *Daemon) sweepWorkDirs() {
	maxAge := d.currentConfig().Render.StaleAfter()
	removed, err := d.vis.SweepWorkDirs(maxAge)
	if err != nil {
		d.logger.Warn("work dir sweep failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Info("removed stale render directories", "removed", removed, "older_than", maxAge.String())
	}
}

func (d *Daemon) shutdown() error {
	d.logger.Info("daemon stopping, waiting for in-flight requests")

	var errs []error
	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.currentConfig().Server.ShutdownTimeout())
		if err := d.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down HTTP server: %w", err))
		}
		cancel()
	}

	for _, t := range d.triggers {
		t.Stop()
	}
	d.wg.Wait()

	d.logger.Info("daemon stopped", "uptime", time.Since(d.startTime).Truncate(time.Second).String())
	d.closeResources()
	return errors.Join(errs...)
}

func (d *Daemon) closeResources() {
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Warn("closing history database", "error", err)
		}
		d.history = nil
	}
	d.closeLog()
}
