// Package cmd defines the CLI commands for the tabharvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/tab-harvester/internal/config"
	"github.com/JakeFAU/tab-harvester/internal/server"
)

// Runner is the part of the application the serve command drives.
type Runner interface {
	Run(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (Runner, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

type configKey struct{}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	var envFile string

	cmd := &cobra.Command{
		Use:   "tabharvester",
		Short: "Summarize and archive browser tabs.",
		Long: `tabharvester receives captured pages from a browser extension, asks a
generative model for a short summary and tags, archives the result and keeps
running totals of the resources saved by closing tabs.`,
		SilenceUsage: true,

		// Runs before every subcommand: load .env, then config.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config; ignored when missing")

	cmd.AddCommand(newServeCmd(), newMigrateCmd())
	return cmd
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
