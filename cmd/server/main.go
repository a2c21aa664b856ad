// Sift - Content risk scoring for coordinated anti-India campaigns
package main

import (
	"context"
	"os"

	"github.com/mbd888/sift/internal/config"
	"github.com/mbd888/sift/internal/logging"
	"github.com/mbd888/sift/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create logger
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting sift",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"network_sim", cfg.NetworkSim,
		"history_limit", cfg.HistoryLimit,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
