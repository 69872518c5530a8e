package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"lexdraft/api/internal/config"
	"lexdraft/api/internal/logging"
)

var (
	cfg           config.Config
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:           "lexdraft",
	Short:         "Version history and sharing API for legal documents",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = flagLogFormat
		}
		if err := logging.SetLogFormat(cfg.LogFormat); err != nil {
			return err
		}
		if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
			return err
		}
		return nil
	},
}

// Run executes the CLI and returns the process exit code.
func Run() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "json", "Log format: json or console")
}

func requirePostgres() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
