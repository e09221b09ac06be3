package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"keymint/internal/api"
	"keymint/internal/config"
	"keymint/internal/database"
	"keymint/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
		slog.Info("Migration error (may be safe if no changes)", "error", err)
	}

	ctx := context.Background()
	pool, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	licenseStore := store.NewPostgresLicenseStore(pool)
	auditStore := store.NewPostgresAuditStore(pool)
	statsStore := store.NewPostgresStatsStore(pool)

	server := api.NewServer(cfg, pool, licenseStore, auditStore, statsStore)

	slog.Info("keymint license server is up", "port", cfg.Port)
	if err := server.Router.Run(":" + cfg.Port); err != nil {
		slog.Error("Failed to run server", "error", err)
		os.Exit(1)
	}
}
