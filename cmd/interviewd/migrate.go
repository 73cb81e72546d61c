package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/interview-live/pkg/core/storage/postgres"
	"github.com/vango-go/interview-live/pkg/gateway/config"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Long:  "Applies the embedded goose migrations for the screenings table. Requires the postgres storage backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if err := runMigrate(cmd.Context(), cfg); err != nil {
				return err
			}
			logger.Info("database migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	if cfg.Storage.Backend != config.BackendPostgres {
		return fmt.Errorf("migrate: storage backend %q manages its own schema (use postgres)", cfg.Storage.Backend)
	}
	if err := cfg.CheckStorage(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Migrate(ctx)
}
