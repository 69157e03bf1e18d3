package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hipixel/internal/config"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hipixel",
	Short: "hipixel ✨ - AI image upscaling for your terminal",
	Long:  "hipixel ✨ wraps the upscayl-bin AI upscaler with batch processing, folder watching, and metadata preservation.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "settings file (default: the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// loadSettings reads the settings file, falling back to defaults when it
// does not exist yet.
func loadSettings() (config.Settings, string, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Default(), "", err
		}
	}
	settings, err := config.Load(path)
	if err != nil {
		return settings, path, fmt.Errorf("load settings %s: %w", path, err)
	}
	return settings, path, nil
}
