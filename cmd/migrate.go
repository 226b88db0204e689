package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tab-harvester/internal/logging"
	"github.com/JakeFAU/tab-harvester/internal/server"
)

// newMigrateCmd creates the archive and metrics tables and seeds the metrics row.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and seed the metrics row",
		Long: `Creates the archive and metrics tables if they do not exist and inserts the
metrics row named by store.metrics_row_id. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			store, err := server.OpenStore(cmd.Context(), cfg.Store, logger.Named("store"))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn("store close failed", zap.Error(cerr))
				}
			}()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s store: %w", cfg.Store.Backend, err)
			}
			logger.Info("migration complete",
				zap.String("backend", cfg.Store.Backend),
				zap.Int64("metrics_row_id", cfg.Store.MetricsRowID),
			)
			return nil
		},
	}
}
