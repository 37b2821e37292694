package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/api/internal/config"
	"jobboard/api/internal/logging"
	"jobboard/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "jobboard-api",
	Short:         "Job board API and admin editor backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime is what every subcommand starts from.
type runtime struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
}

// start loads config, builds the logger, connects to the database and
// applies pending migrations.
func start(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, store.Migrations(cfg.MigrationsDir))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	for _, version := range applied {
		log.Info("migration applied", zap.String("version", version))
	}
	return &runtime{cfg: cfg, log: log, db: db}, nil
}

func (r *runtime) close() {
	_ = r.db.Close()
	_ = r.log.Sync()
}
