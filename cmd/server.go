package cmd

import (
	"driftfm/logger"
	"driftfm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the catalog API server",
	Long: `Starts the HTTP server hosting the track catalog, stream URL signing,
play history, likes and the upload/ingest endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Start(cfg); err != nil {
			logger.Fatal("server exited", logger.ErrorField(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
