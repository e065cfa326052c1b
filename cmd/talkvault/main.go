// Command talkvault runs the talkvault background job scheduler and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/talkvault/talkvault/internal/logger"
	"github.com/talkvault/talkvault/types/config"
)

var envFiles []string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "talkvault",
		Short:         "Background jobs and library locks for the talkvault media manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before TALKVAULT_* variables")
	root.AddCommand(serveCmd(), migrateCmd(), locksCmd(), jobsCmd(), eventsCmd())
	return root
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFromEnv(envFiles...)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return cfg, log, nil
}
