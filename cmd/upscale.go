package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hipixel/internal/compress"
	"hipixel/internal/config"
	"hipixel/internal/engine"
	"hipixel/internal/metadata"
	"hipixel/internal/thumbnail"
	"hipixel/internal/tui"
	"hipixel/internal/upscale"
)

var (
	upscaleScale        int
	upscaleFormat       string
	upscaleModel        string
	upscaleCustomModels string
	upscaleOutput       string
	upscaleOverwrite    bool
	upscaleDouble       bool
	upscaleTTA          bool
	upscaleGPU          string
	upscaleTile         int
	upscaleCompression  int
	upscaleDelegate     bool
	upscaleBinary       string
	upscaleModelsDir    string
	upscaleManualSave   bool
)

var upscaleCmd = &cobra.Command{
	Use:   "upscale [flags] <path>...",
	Short: "Upscale images or whole folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings()
		if err != nil {
			return err
		}
		applyUpscaleFlags(cmd, &settings)

		if format := settings.SaveImageAs; !slices.Contains([]string{"png", "jpg", "webp", "original"}, format) {
			return fmt.Errorf("unknown format %q", format)
		}

		opts := settings.Resolve()

		thumbDir, err := config.ThumbnailDir()
		if err != nil {
			thumbDir = ""
		}
		holdDir, err := config.HoldDir()
		if err != nil {
			holdDir = ""
		}

		ledger := engine.NewLedger(thumbDir)
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

		batchDone := make(chan int, 1)
		dispatcher.Notify = func(count int) { batchDone <- count }

		events := ledger.Subscribe()
		uiEvents := make(chan engine.Event, 64)
		go forwardUntilDone(events, uiEvents, batchDone)

		program := tea.NewProgram(tui.NewModel(uiEvents))

		dispatcher.Process(context.Background(), args, opts, engine.SourceUser)

		if _, err := program.Run(); err != nil {
			return err
		}

		succeeded, failed := 0, 0
		for _, item := range ledger.Items() {
			switch item.State {
			case engine.StateSuccess:
				succeeded++
			case engine.StateFailed:
				failed++
			}
		}

		rows := []tui.SummaryRow{
			{Label: "Images upscaled", Value: fmt.Sprintf("%d", succeeded)},
			{Label: "Failed", Value: fmt.Sprintf("%d", failed)},
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
		if opts.ManualSave && succeeded > 0 {
			fmt.Fprintf(os.Stdout, "Results held in %s\n", holdDir)
		}
		if settings.Notification {
			fmt.Fprintf(os.Stdout, "Upscale completed: %d images\n", succeeded+failed)
		}
		return nil
	},
}

// forwardUntilDone relays ledger events to the UI until the batch
// notification fires, then drains what is queued and closes the UI feed.
func forwardUntilDone(events <-chan engine.Event, uiEvents chan<- engine.Event, batchDone <-chan int) {
	defer close(uiEvents)
	for {
		select {
		case ev := <-events:
			uiEvents <- ev
		case <-batchDone:
			for {
				select {
				case ev := <-events:
					uiEvents <- ev
				default:
					return
				}
			}
		}
	}
}

func applyUpscaleFlags(cmd *cobra.Command, settings *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("scale") {
		settings.ImageScale = upscaleScale
	}
	if flags.Changed("format") {
		settings.SaveImageAs = upscaleFormat
	}
	if flags.Changed("model") {
		settings.Model = upscaleModel
	}
	if flags.Changed("custom-models") {
		settings.CustomModelsFolder = config.AbsDir(upscaleCustomModels)
	}
	if flags.Changed("output") {
		settings.EnableSaveOutputFolder = true
		settings.SaveOutputFolder = config.AbsDir(upscaleOutput)
	}
	if flags.Changed("overwrite") {
		settings.OverwritePreviousUpscale = upscaleOverwrite
	}
	if flags.Changed("double") {
		settings.DoubleUpscale = upscaleDouble
	}
	if flags.Changed("tta") {
		settings.EnableTTA = upscaleTTA
	}
	if flags.Changed("gpu") {
		settings.GPUID = upscaleGPU
	}
	if flags.Changed("tile") {
		settings.CustomTileSize = upscaleTile
	}
	if flags.Changed("compression") {
		settings.ImageCompression = upscaleCompression
	}
	if flags.Changed("delegate-compression") {
		settings.DelegateCompression = upscaleDelegate
	}
	if flags.Changed("binary") {
		settings.BinaryPath = upscaleBinary
	}
	if flags.Changed("models") {
		settings.ModelsDir = config.AbsDir(upscaleModelsDir)
	}
	if flags.Changed("manual-save") {
		settings.ManualSaveControl = upscaleManualSave
	}
}

func init() {
	flags := upscaleCmd.Flags()
	flags.IntVarP(&upscaleScale, "scale", "s", 4, "upscaling factor")
	flags.StringVarP(&upscaleFormat, "format", "f", "png", "output format (png|jpg|webp|original)")
	flags.StringVarP(&upscaleModel, "model", "m", config.ModelStandard, "model id or custom model name")
	flags.StringVar(&upscaleCustomModels, "custom-models", "", "directory holding custom .param/.bin model pairs")
	flags.StringVarP(&upscaleOutput, "output", "o", "", "save results into this folder")
	flags.BoolVar(&upscaleOverwrite, "overwrite", false, "redo upscales whose output already exists")
	flags.BoolVar(&upscaleDouble, "double", false, "run two passes for a squared scale")
	flags.BoolVar(&upscaleTTA, "tta", false, "enable test-time augmentation")
	flags.StringVar(&upscaleGPU, "gpu", "", "GPU id passed to the binary")
	flags.IntVar(&upscaleTile, "tile", 0, "tile size override")
	flags.IntVarP(&upscaleCompression, "compression", "c", 0, "compression level 0-99")
	flags.BoolVar(&upscaleDelegate, "delegate-compression", false, "hand compression to the external compressor")
	flags.StringVar(&upscaleBinary, "binary", "", "path to upscayl-bin")
	flags.StringVar(&upscaleModelsDir, "models", "", "directory holding the bundled models")
	flags.BoolVar(&upscaleManualSave, "manual-save", false, "hold results for manual placement instead of writing them to their computed location")

	rootCmd.AddCommand(upscaleCmd)
}
