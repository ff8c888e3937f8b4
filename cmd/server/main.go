// Package main is the entry point for the PhotoShare API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (flags, config file, env vars)
// 2. Create the logger
// 3. Start the application and turn OS signals into a cancelled context
//
// All actual logic lives in imported packages (internal/server, internal/graph, etc.).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/photo-share/internal/config"
	"github.com/sakif/photo-share/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: search ., ~/.photoshare, /etc/photoshare)")
	flag.Parse()

	// === 1. READ CONFIGURATION ===
	// Defaults, then config.yaml, then PHOTOSHARE_* environment variables.
	// See internal/config for the full list of keys.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("loading configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// log.level picks the threshold; the query gate's accept lines are Debug.
	level, _ := cfg.LogLevel() // validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if cfg.Auth.FakeUsers {
		logger.Warn("fakeUserAuth is enabled: any stored user can be impersonated; disable auth.fakeUsers in production")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// signal.NotifyContext cancels ctx on Ctrl+C or SIGTERM, which is what
	// Start waits for before shutting down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
