// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/security"
	"github.com/colebrumley/zplot/internal/visualizer"
)

// HistoryStore is the part of history.DB the tools use.
type HistoryStore interface {
	Record(rec history.Record) (int64, error)
	List(state string, limit int) ([]history.Record, error)
}

// Server wraps the MCP server with visualizer tools
type Server struct {
	vis      *visualizer.Visualizer
	settings func() render.Settings
	history  HistoryStore
	logger   *slog.Logger
	server   *mcp.Server
}

// ProbeInput is the input schema for the probe_function tool
type ProbeInput struct {
	Function string `json:"function" jsonschema:"Complex function of z, e.g. z**2 + 1"`
}

// RenderInput is the input schema for the render_function tool
type RenderInput struct {
	Function   string `json:"function" jsonschema:"Complex function of z, e.g. sin(z)/z"`
	OutputPath string `json:"output_path" jsonschema:"Absolute path of the .mp4 file to write; its directory must exist"`
	Coloring   string `json:"coloring,omitempty" jsonschema:"checkerboard (default) or domain"`
	Quality    string `json:"quality,omitempty" jsonschema:"low_quality, medium_quality or high_quality"`
}

// RenderOutput is the output schema for the render_function tool
type RenderOutput struct {
	OutputPath string `json:"output_path"`
	Expression string `json:"expression"`
	Frames     int    `json:"frames"`
	Bytes      int64  `json:"bytes"`
	Size       string `json:"size"`
	DurationMs int64  `json:"duration_ms"`
	Message    string `json:"message"`
}

// HistoryInput is the input schema for the render_history tool
type HistoryInput struct {
	State string `json:"state,omitempty" jsonschema:"Optional filter: success, invalid, failure or timeout"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum records to return (default 20, max 200)"`
}

// HistoryOutput is the output schema for the render_history tool
type HistoryOutput struct {
	Records []HistoryEntry `json:"records"`
	Count   int            `json:"count"`
}

// HistoryEntry is a single render in history results
type HistoryEntry struct {
	RequestID  string `json:"request_id"`
	Source     string `json:"source"`
	Expression string `json:"expression"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
	StartedAt  string `json:"started_at"`
}

// NewServer creates a new MCP server with visualizer tools. hist may be nil.
func NewServer(vis *visualizer.Visualizer, settings func() render.Settings, hist HistoryStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{vis: vis, settings: settings, history: hist, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "zplot",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "probe_function",
		Description: "Evaluate a complex function of z at the nine points {-1,0,1} x {-1,0,1}i and report whether it is safe to render. Unsafe functions produce infinite or huge values near the origin.",
	}, s.handleProbe)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "render_function",
		Description: "Render a 3D animation of |f(z)| over the square [-3,3] x [-3,3] to an MP4 file. Takes tens of seconds. Call probe_function first if unsure whether the function is safe.",
	}, s.handleRender)

	if hist != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "render_history",
			Description: "List recent render requests, newest first, with their outcome and any error.",
		}, s.handleHistory)
	}

	s.server = server
	return s
}

func (s *Server) handleProbe(ctx context.Context, req *mcp.CallToolRequest, input ProbeInput) (*mcp.CallToolResult, visualizer.ProbeResult, error) {
	rep, err := s.vis.ProbeReport(input.Function)
	if err != nil {
		return nil, visualizer.ProbeResult{}, err
	}
	return nil, *rep, nil
}

func (s *Server) handleRender(ctx context.Context, req *mcp.CallToolRequest, input RenderInput) (*mcp.CallToolResult, RenderOutput, error) {
	if err := validateOutputPath(input.OutputPath); err != nil {
		return nil, RenderOutput{}, err
	}

	settings := s.settings()
	if input.Coloring != "" {
		c, err := render.ParseColoring(input.Coloring)
		if err != nil {
			return nil, RenderOutput{}, err
		}
		settings.Coloring = c
	}
	if input.Quality != "" {
		var err error
		if settings, err = settings.WithQuality(input.Quality); err != nil {
			return nil, RenderOutput{}, err
		}
	}

	start := time.Now()
	rec := history.Record{
		RequestID:  uuid.NewString(),
		Source:     "mcp",
		Expression: input.Function,
		StartedAt:  start,
	}

	out, err := s.render(ctx, input, settings, &rec)
	rec.FinishedAt = time.Now()
	s.record(rec, err)
	if err != nil {
		return nil, RenderOutput{}, errors.New(security.ScrubDetail(err.Error()))
	}
	return nil, out, nil
}

func (s *Server) render(ctx context.Context, input RenderInput, settings render.Settings, rec *history.Record) (RenderOutput, error) {
	plan, err := s.vis.Prepare(input.Function)
	if err != nil {
		return RenderOutput{}, err
	}
	rec.Normalized = plan.Normalized

	res, err := s.vis.RenderFile(ctx, plan, settings, input.OutputPath, nil)
	if err != nil {
		return RenderOutput{}, err
	}
	info, err := os.Stat(input.OutputPath)
	if err != nil {
		return RenderOutput{}, fmt.Errorf("checking output: %w", err)
	}
	rec.Frames = res.Frames
	rec.Bytes = info.Size()

	return RenderOutput{
		OutputPath: input.OutputPath,
		Expression: res.Expression,
		Frames:     res.Frames,
		Bytes:      info.Size(),
		Size:       humanize.Bytes(uint64(info.Size())),
		DurationMs: res.Duration.Milliseconds(),
		Message:    fmt.Sprintf("Rendered %s to %s", res.Expression, input.OutputPath),
	}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	records, err := s.history.List(input.State, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to query history: %w", err)
	}

	entries := make([]HistoryEntry, len(records))
	for i, r := range records {
		entries[i] = HistoryEntry{
			RequestID:  r.RequestID,
			Source:     r.Source,
			Expression: r.Expression,
			State:      r.State,
			Error:      r.Error,
			Bytes:      r.Bytes,
			DurationMs: r.DurationMs,
			StartedAt:  r.StartedAt.Format(time.RFC3339),
		}
	}
	return nil, HistoryOutput{Records: entries, Count: len(entries)}, nil
}

func (s *Server) record(rec history.Record, err error) {
	if s.history == nil {
		return
	}
	rec.State = history.StateOf(err)
	if err != nil {
		rec.Error = security.ScrubDetail(err.Error())
	}
	if _, herr := s.history.Record(rec); herr != nil {
		logging.WithRequest(s.logger, rec.RequestID).Warn("failed to record history", "error", herr)
	}
}

// validateOutputPath requires an absolute .mp4 path in an existing directory.
func validateOutputPath(path string) error {
	if path == "" {
		return fmt.Errorf("output_path is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("output_path must be absolute: %s", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".mp4") {
		return fmt.Errorf("output_path must end in .mp4: %s", path)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", filepath.Dir(path))
	}
	return nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
