package cmd

import (
	"fmt"
	"os"

	"driftfm/config"
	"driftfm/logger"

	"github.com/spf13/cobra"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "driftfm",
	Short: "driftfm is a self-hosted music streaming service.",
	Long: `driftfm ingests uploaded audio into loudness-normalized multi-bitrate
variants in object storage and serves them through a small catalog API.
It also ships a headless playback engine that consumes that API.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.Init(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
