// cmd/zplot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v2"

	"github.com/colebrumley/zplot/internal/config"
	"github.com/colebrumley/zplot/internal/daemon"
	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/template"
	"github.com/colebrumley/zplot/internal/visualizer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "validate":
		err = cmdValidate(args)
	case "probe":
		err = cmdProbe(args)
	case "preview":
		err = cmdPreview(args)
	case "render":
		err = cmdRender(args)
	case "history":
		err = cmdHistory(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`zplot - render 3D animations of complex functions

Usage: zplot <command> [options]

Commands:
  init                    Write a default config file
  validate                Check the config file and ffmpeg
  probe <function>        Sample a function and report whether it is safe
  preview <function>      Render the final frame to a PNG
  render <function>       Render the animation to an MP4
  history                 Show recent renders

Run 'zplot <command> -h' for command options.
The config file is read from $ZPLOT_CONFIG or the user config directory.`)
}

// commonFlags registers the options shared by the rendering commands.
type commonFlags struct {
	config   *string
	quality  *string
	coloring *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", config.DefaultPath(), "config file"),
		quality:  fs.String("quality", "", "low_quality, medium_quality or high_quality"),
		coloring: fs.String("coloring", "", "checkerboard or domain"),
	}
}

func (c commonFlags) settings(cfg *config.Global) (render.Settings, error) {
	s, err := cfg.Render.Settings()
	if err != nil {
		return s, err
	}
	if *c.quality != "" {
		if s, err = s.WithQuality(*c.quality); err != nil {
			return s, err
		}
	}
	if *c.coloring != "" {
		coloring, err := render.ParseColoring(*c.coloring)
		if err != nil {
			return s, err
		}
		s.Coloring = coloring
	}
	return s, nil
}

// functionArg joins the remaining arguments so unquoted expressions with
// spaces still work.
func functionArg(fs *flag.FlagSet, usage string) (string, error) {
	if fs.NArg() == 0 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return strings.Join(fs.Args(), " "), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", config.DefaultPath(), "config file to create")
	fs.Parse(args)

	if err := config.WriteDefault(*path); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", *path)
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("config", config.DefaultPath(), "config file")
	fs.Parse(args)

	cfg, err := config.LoadGlobal(*path)
	if err != nil {
		return err
	}
	settings, err := cfg.Render.Settings()
	if err != nil {
		return err
	}
	fmt.Printf("Config %s is valid\n", *path)
	fmt.Printf("  listen:   %s\n", cfg.Server.ListenAddr())
	fmt.Printf("  video:    %dx%d @ %d fps, %s, %d frames\n",
		settings.Width, settings.Height, settings.FPS, settings.Coloring, settings.FrameCount())
	fmt.Printf("  work dir: %s\n", cfg.Render.WorkDir)

	enc := daemon.NewEncoder(cfg, nil)
	if err := enc.Available(); err != nil {
		return fmt.Errorf("ffmpeg not usable at %q: %w", cfg.Render.FFmpegPath, err)
	}
	fmt.Printf("  ffmpeg:   %s\n", cfg.Render.FFmpegPath)
	return nil
}

// setup loads config and builds a visualizer for the one-shot commands.
// Logs go to stderr at warn level unless debug is configured.
func setup(path string) (*config.Global, *visualizer.Visualizer, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, err
	}
	level := "warn"
	if cfg.Logging.Debug {
		level = "debug"
	}
	logger := logging.NewLogger("text", level, os.Stderr)
	vis, err := daemon.NewVisualizer(cfg, daemon.NewEncoder(cfg, logger), logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, vis, nil
}

func cmdProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	path := fs.String("config", config.DefaultPath(), "config file")
	fs.Parse(args)

	fn, err := functionArg(fs, "zplot probe <function>")
	if err != nil {
		return err
	}
	_, vis, err := setup(*path)
	if err != nil {
		return err
	}

	rep, err := vis.ProbeReport(fn)
	if err != nil {
		return err
	}
	fmt.Printf("Expression: %s\n\n", rep.Expression)
	fmt.Printf("%-10s %-14s %-14s %s\n", "Z", "RE", "IM", "|F(Z)|")
	fmt.Println(strings.Repeat("-", 54))
	for _, s := range rep.Samples {
		if s.Error != "" {
			fmt.Printf("%-10s %s\n", s.Z, s.Error)
			continue
		}
		fmt.Printf("%-10s %-14s %-14s %s\n", s.Z, formatFloat(s.Real), formatFloat(s.Imag), formatFloat(s.Magnitude))
	}
	fmt.Println()
	if rep.Safe {
		fmt.Println("Safe to render")
		return nil
	}
	return fmt.Errorf("unsafe to render: %s", rep.Reason)
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.6g", *f)
}

func cmdPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	flags := addCommonFlags(fs)
	out := fs.String("o", "{{slug}}.png", "output PNG file; may use {{slug}}, {{quality}}, {{coloring}}, {{id}}, {{timestamp}}")
	fs.Parse(args)

	fn, err := functionArg(fs, "zplot preview [-o file.png] <function>")
	if err != nil {
		return err
	}
	cfg, vis, err := setup(*flags.config)
	if err != nil {
		return err
	}
	settings, err := flags.settings(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	img, err := vis.Preview(ctx, fn, settings)
	if err != nil {
		return err
	}
	outPath := outputPath(*out, fn, settings, uuid.NewString())
	if err := os.WriteFile(outPath, img, 0644); err != nil {
		return fmt.Errorf("writing preview: %w", err)
	}
	fmt.Printf("Wrote %s (%s)\n", outPath, humanize.Bytes(uint64(len(img))))
	return nil
}

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	flags := addCommonFlags(fs)
	out := fs.String("o", "{{slug}}.mp4", "output MP4 file; may use {{slug}}, {{quality}}, {{coloring}}, {{id}}, {{timestamp}}")
	fs.Parse(args)

	fn, err := functionArg(fs, "zplot render [-o file.mp4] <function>")
	if err != nil {
		return err
	}
	cfg, vis, err := setup(*flags.config)
	if err != nil {
		return err
	}
	settings, err := flags.settings(cfg)
	if err != nil {
		return err
	}
	if err := daemon.NewEncoder(cfg, nil).Available(); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	id := uuid.NewString()
	outPath, err := filepath.Abs(outputPath(*out, fn, settings, id))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rec := history.Record{
		RequestID:  id,
		Source:     "cli",
		Expression: fn,
		StartedAt:  time.Now(),
	}
	res, err := renderWithProgress(ctx, vis, fn, settings, outPath, &rec)
	rec.FinishedAt = time.Now()
	recordHistory(cfg, rec, err)
	if err != nil {
		return err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s, %d frames, %s)\n", outPath, humanize.Bytes(uint64(info.Size())),
		res.Frames, res.Duration.Truncate(time.Millisecond))
	return nil
}

// outputPath expands placeholders in the -o flag.
func outputPath(tmpl, fn string, settings render.Settings, id string) string {
	return template.Expand(tmpl, template.OutputVars(fn, settings.Quality, string(settings.Coloring), id, time.Now()))
}

func renderWithProgress(ctx context.Context, vis *visualizer.Visualizer, fn string, settings render.Settings, out string, rec *history.Record) (*visualizer.Result, error) {
	plan, err := vis.Prepare(fn)
	if err != nil {
		return nil, err
	}
	rec.Normalized = plan.Normalized
	fmt.Fprintf(os.Stderr, "Rendering %s\n", plan.Expression())

	var progress render.ProgressFunc
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		bar := progressbar.NewOptions(settings.FrameCount(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("frames"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
		)
		progress = func(done, total int) {
			bar.Set(done)
			if done == total {
				bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	res, err := vis.RenderFile(ctx, plan, settings, out, progress)
	if err != nil {
		return nil, err
	}
	rec.Frames = res.Frames
	if info, err := os.Stat(out); err == nil {
		rec.Bytes = info.Size()
	}
	return res, nil
}

// recordHistory stores the render when history is enabled. Failures are
// reported but never fail the command.
func recordHistory(cfg *config.Global, rec history.Record, renderErr error) {
	db, err := daemon.OpenHistory(cfg.History)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return
	}
	if db == nil {
		return
	}
	defer db.Close()

	rec.State = history.StateOf(renderErr)
	if renderErr != nil {
		rec.Error = renderErr.Error()
	}
	if _, err := db.Record(rec); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	path := fs.String("config", config.DefaultPath(), "config file")
	state := fs.String("state", "", "only show renders in this state")
	limit := fs.Int("n", 20, "number of renders to show")
	stats := fs.Bool("stats", false, "show totals instead of individual renders")
	fs.Parse(args)

	cfg, err := config.LoadOrDefault(*path)
	if err != nil {
		return err
	}
	db, err := daemon.OpenHistory(cfg.History)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("history is disabled; set history.enabled in %s", *path)
	}
	defer db.Close()

	if *stats {
		st, err := db.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Total renders: %d\n", st.Total)
		for _, s := range []string{history.StateSuccess, history.StateInvalid, history.StateFailure, history.StateTimeout} {
			fmt.Printf("  %-8s %d\n", s, st.ByState[s])
		}
		fmt.Printf("Video output:  %s\n", humanize.Bytes(uint64(st.TotalBytes)))
		fmt.Printf("Avg duration:  %s\n", (time.Duration(st.AvgDurationMs) * time.Millisecond).String())
		return nil
	}

	records, err := db.List(*state, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No renders recorded")
		return nil
	}

	fmt.Printf("%-16s %-6s %-8s %-9s %-10s %s\n", "WHEN", "SOURCE", "STATE", "SIZE", "DURATION", "EXPRESSION")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range records {
		expr := r.Expression
		if len(expr) > 30 {
			expr = expr[:27] + "..."
		}
		size := "-"
		if r.Bytes > 0 {
			size = humanize.Bytes(uint64(r.Bytes))
		}
		fmt.Printf("%-16s %-6s %-8s %-9s %-10s %s\n",
			humanize.Time(r.StartedAt), r.Source, r.State, size,
			(time.Duration(r.DurationMs) * time.Millisecond).String(), expr)
	}
	return nil
}
