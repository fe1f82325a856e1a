// Command leadctl runs operator tasks against the lead pipeline database:
// schema migrations, stuck-campaign recovery, manual resets and credit
// top-ups.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/config"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
	"leadgen-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operator commands for the lead pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(creditsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps is what the operational commands share. Vendor clients are not
// built: nothing here scrapes, enriches or dials.
type deps struct {
	cfg      config.Config
	log      *slog.Logger
	db       *sql.DB
	store    *store.Postgres
	billing  *billing.Service
	audit    *audit.Service
	pipeline *pipeline.Service
}

func (d *deps) Close() {
	if d.db != nil {
		_ = d.db.Close()
	}
}

func open(ctx context.Context) (*deps, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, ctx, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.App.Env, logger.Options{Level: cfg.App.LogLevel, Service: "leadctl", Output: os.Stderr})
	ctx = logger.With(ctx, log)

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 4, MaxIdleConns: 2})
	if err != nil {
		return nil, ctx, fmt.Errorf("open postgres: %w", err)
	}
	st := store.NewPostgres(db)
	bill := billing.NewService(st, pricing.FromConfig(cfg.Pricing))
	aud := audit.NewService(st)
	return &deps{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   st,
		billing: bill,
		audit:   aud,
		pipeline: pipeline.New(pipeline.Deps{
			Store:   st,
			Billing: bill,
			Audit:   aud,
		}),
	}, ctx, nil
}
