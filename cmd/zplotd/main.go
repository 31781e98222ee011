// cmd/zplotd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colebrumley/zplot/internal/config"
	"github.com/colebrumley/zplot/internal/daemon"
	"github.com/colebrumley/zplot/internal/mcp"
	"github.com/colebrumley/zplot/internal/render"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "mcp-server":
			runMCPServer()
			return
		case "help", "-h", "--help":
			fmt.Println(`zplotd - complex function visualizer service

Usage:
  zplotd              Run the HTTP service
  zplotd mcp-server   Serve MCP tools over stdio

The config file is read from $ZPLOT_CONFIG or the user config directory.`)
			return
		}
	}

	runDaemon()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

func runMCPServer() {
	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs never go there
	logger, closeLog, err := daemon.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	settings, err := cfg.Render.Settings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	enc := daemon.NewEncoder(cfg, logger)
	if err := enc.Available(); err != nil {
		logger.Warn("ffmpeg not found, render_function will fail", "error", err)
	}
	vis, err := daemon.NewVisualizer(cfg, enc, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var hist mcp.HistoryStore
	db, err := daemon.OpenHistory(cfg.History)
	if err != nil {
		logger.Warn("history will not be recorded", "error", err)
	} else if db != nil {
		defer db.Close()
		hist = db
	}

	server := mcp.NewServer(vis, func() render.Settings { return settings }, hist, logger)

	ctx, cancel := signalContext()
	defer cancel()

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon() {
	d := daemon.New(config.DefaultPath())

	ctx, cancel := signalContext()
	defer cancel()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}
