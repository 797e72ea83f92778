// BECGuard - Email impersonation risk scoring for finance teams
package main

import (
	"context"
	"os"

	"github.com/cyrenity/becguard/internal/config"
	"github.com/cyrenity/becguard/internal/logging"
	"github.com/cyrenity/becguard/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting becguard",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"org_domain", cfg.OrgDomain,
		"temporal_min_samples", cfg.TemporalMinSamples,
		"style_min_samples", cfg.StyleMinSamples,
	)

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
