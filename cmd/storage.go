package cmd

import (
	"context"
	"time"

	"driftfm/logger"
	"driftfm/storage"

	"github.com/spf13/cobra"
)

var storagePrefix string

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect the audio object store",
	Long:  `Lists bucket contents and aggregate statistics, optionally filtered by key prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := storage.NewClient(cfg)
		if err != nil {
			logger.Fatal("storage connection failed", logger.ErrorField(err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := store.PrintStatus(ctx, storagePrefix); err != nil {
			logger.Fatal("storage status failed", logger.ErrorField(err))
		}
	},
}

func init() {
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "filter objects by key prefix")
	rootCmd.AddCommand(storageCmd)
}
