package cmd

import (
	"io"
	"os"

	"mediaproc/config"
	"mediaproc/ledger"
	"mediaproc/task"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mediaproc",
	Short:         "Media transcoding task service",
	Long:          "Upload media files, convert, compress or trim them with ffmpeg, and track each task until its output is ready.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openRegistry loads the configuration and opens the configured ledger for reading.
func openRegistry() (*task.Registry, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return task.NewRegistry(store), func() { closeStore(store) }, nil
}

func closeStore(store task.Store) {
	if c, ok := store.(io.Closer); ok {
		c.Close()
	}
}
