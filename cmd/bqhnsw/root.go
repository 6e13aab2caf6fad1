package main

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/bqhnsw"
	"github.com/hupe1980/bqhnsw/store"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	indexDir    string
	storageMode string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bqhnsw",
	Short: "Binary quantized HNSW segment tool",
	Long: `bqhnsw builds and searches on-disk HNSW segments whose graph is
navigated with binary quantized vectors.

Vectors are read from .fvecs files: each record is a little-endian int32
dimension followed by that many float32 values.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML format config")
	rootCmd.PersistentFlags().StringVarP(&indexDir, "dir", "d", ".", "Index directory")
	rootCmd.PersistentFlags().StringVar(&storageMode, "storage-mode", "", "Storage mode: auto, heap, mmap or direct (overrides the config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log operations to stderr")
}

// newFormat builds the format from the config file and flags.
func newFormat(cmd *cobra.Command) (*bqhnsw.Format, error) {
	var opts []bqhnsw.Option

	if configPath != "" {
		cfg, err := bqhnsw.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfgOpts, err := cfg.Options()
		if err != nil {
			return nil, err
		}
		opts = append(opts, cfgOpts...)
	}

	if storageMode != "" {
		mode, err := store.ParseAccessMode(storageMode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bqhnsw.WithStorageMode(mode))
	}

	if verbose {
		opts = append(opts, bqhnsw.WithLogger(bqhnsw.NewLogger(
			slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}),
		)))
	}

	f, err := bqhnsw.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid format configuration: %w", err)
	}
	return f, nil
}

func openDir() (*store.FSDirectory, error) {
	return store.NewFSDirectory(indexDir)
}
