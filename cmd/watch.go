package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hipixel/internal/compress"
	"hipixel/internal/config"
	"hipixel/internal/engine"
	"hipixel/internal/metadata"
	"hipixel/internal/monitor"
	"hipixel/internal/thumbnail"
	"hipixel/internal/upscale"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch folders and upscale new images automatically",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <dir>...",
	Short: "Add folders to the watch list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMonitor(nil, nil, nil)
		if err != nil {
			return err
		}
		if err := m.Load(); err != nil {
			return err
		}
		for _, arg := range args {
			dir := config.AbsDir(arg)
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			m.Add(dir)
			fmt.Fprintf(os.Stdout, "Watching %s\n", dir)
		}
		return m.Save()
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <dir>...",
	Short: "Remove folders from the watch list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMonitor(nil, nil, nil)
		if err != nil {
			return err
		}
		if err := m.Load(); err != nil {
			return err
		}
		for _, arg := range args {
			m.Remove(config.AbsDir(arg))
		}
		return m.Save()
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the watch list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMonitor(nil, nil, nil)
		if err != nil {
			return err
		}
		if err := m.Load(); err != nil {
			return err
		}
		dirs := m.Directories()
		if len(dirs) == 0 {
			fmt.Fprintln(os.Stdout, "No folders are being watched.")
			return nil
		}
		for _, dir := range dirs {
			state := "enabled"
			if !dir.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(os.Stdout, "%s  (%s)\n", dir.Path, state)
		}
		return nil
	},
}

var watchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start watching until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings()
		if err != nil {
			return err
		}

		thumbDir, err := config.ThumbnailDir()
		if err != nil {
			thumbDir = ""
		}
		holdDir, err := config.HoldDir()
		if err != nil {
			holdDir = ""
		}

		ledger := engine.NewLedger(thumbDir)
		opts := settings.Resolve()
		dispatcher := &engine.Dispatcher{
			Queues: engine.NewQueueManager(2, 4),
			Ledger: ledger,
			Pipeline: &upscale.Pipeline{
				Supervisor: &upscale.Supervisor{Binary: opts.BinaryPath},
				Metadata:   &metadata.Copier{},
				Compressor: &compress.Delegate{},
				HoldDir:    holdDir,
			},
		}
		if thumbDir != "" {
			dispatcher.Thumbnails = &thumbnail.Cache{Dir: thumbDir}
		}
		if settings.Notification {
			dispatcher.Notify = func(count int) {
				if count > 0 {
					fmt.Fprintf(os.Stdout, "Upscale completed: %d images\n", count)
				}
			}
		}

		m, err := newMonitor(dispatcher, ledger, func() upscale.Options { return settings.Resolve() })
		if err != nil {
			return err
		}
		if err := m.Load(); err != nil {
			return err
		}
		if len(m.Directories()) == 0 {
			return fmt.Errorf("nothing to watch; use `hipixel watch add` first")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("watching folders", "count", len(m.Directories()))
		m.Run(ctx)
		return nil
	},
}

// newMonitor wires a monitor against the persisted state file. The
// dispatcher and ledger may be nil for list-management commands, which
// never scan.
func newMonitor(dispatcher monitor.Batcher, ledger monitor.ProcessingCounter, options func() upscale.Options) (*monitor.Monitor, error) {
	statePath, err := config.MonitorStatePath()
	if err != nil {
		return nil, err
	}
	m := monitor.New(dispatcher, ledger, options)
	m.StatePath = statePath
	return m, nil
}

func init() {
	watchCmd.AddCommand(watchAddCmd, watchRemoveCmd, watchListCmd, watchRunCmd)
	rootCmd.AddCommand(watchCmd)
}
