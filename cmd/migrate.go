package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/civic-report-service/internal/config"
	"github.com/tbourn/civic-report-service/internal/repo"
	"github.com/tbourn/civic-report-service/internal/sysutil"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the issue store schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	loadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cmd.ErrOrStderr(), cfg.OTEL.ServiceName, cfg.LogLevel, cfg.LogPretty)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("migrate: ok")
	return nil
}
