package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/graychat-core/internal/api"
	"github.com/nerrad567/graychat-core/internal/infrastructure/config"
	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
	"github.com/nerrad567/graychat-core/migrations"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Apply pending migrations, then serve until interrupted.

The server shuts down gracefully on SIGINT or SIGTERM: open WebSocket
connections receive a going-away close frame and queued audit entries
are flushed before the database is closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, path)
		},
	}
}

// serve runs the application until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, path string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting Graychat Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", path,
		"environment", cfg.Environment,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := database.NewMigrator(db, migrations.FS, ".").Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	srv, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("running API server: %w", err)
	}

	log.Info("Graychat Core stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
