package upscale

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MetadataCopier propagates metadata from the original image to the
// upscaled output after a successful run.
type MetadataCopier interface {
	CopyIfDifferent(src, dst string) (bool, error)
}

// CompressionDelegate hands finished output to an external compressor.
// Invocations are fire-and-forget; their outcome never affects the item.
type CompressionDelegate interface {
	Available() bool
	Compress(path, destDir, format string, level float64)
}

// Pipeline drives a single item through one or two upscaling passes.
//
// With manual save enabled the final pass lands in HoldDir under the
// computed output's base name instead of the computed location; placing
// the held file is left to the user, and compression hand-off waits for
// that placement.
type Pipeline struct {
	Supervisor *Supervisor
	Metadata   MetadataCopier
	Compressor CompressionDelegate
	ScratchDir string // intermediate pass-1 files; defaults to os.TempDir()
	HoldDir    string // held results for manual save; defaults to ScratchDir
	Log        *slog.Logger
}

// Process upscales source and returns the final output path. originDir
// carries the originally dropped directory for folder-batch items (see
// OutputPath). Progress is reported as (percent, stage) where stage is 2
// only for the second pass of a double upscale.
func (p *Pipeline) Process(ctx context.Context, source, originDir string, opts Options, onProgress func(percent float64, stage int)) (string, error) {
	if onProgress == nil {
		onProgress = func(float64, int) {}
	}
	if opts.DoublePass {
		return p.processDouble(ctx, source, originDir, opts, onProgress)
	}
	return p.processSingle(ctx, source, originDir, opts, onProgress)
}

func (p *Pipeline) processSingle(ctx context.Context, source, originDir string, opts Options, onProgress func(float64, int)) (string, error) {
	dest, err := p.destination(OutputPath(source, originDir, opts), opts)
	if err != nil {
		return "", err
	}

	if fileExists(dest) && !opts.Overwrite {
		return dest, nil
	}

	result := p.Supervisor.Run(ctx, Args(source, dest, opts), func(percent float64) {
		onProgress(percent, 1)
	})
	if result.Status != 0 {
		return "", fmt.Errorf("upscale %s: %s", source, result.Reason)
	}

	p.finish(source, dest, opts)
	return dest, nil
}

// processDouble chains two passes of the base scale, compounding it to
// scale squared while reusing the single-pass contract of the binary.
// The intermediate file is removed on every path out of this function.
func (p *Pipeline) processDouble(ctx context.Context, source, originDir string, opts Options, onProgress func(float64, int)) (string, error) {
	dest, err := p.destination(OutputPath(source, originDir, opts), opts)
	if err != nil {
		return "", err
	}

	if fileExists(dest) && !opts.Overwrite {
		return dest, nil
	}

	ext := FormatExtension(source, opts.SaveImageAs)
	tmp := filepath.Join(p.scratch(), "hipixel-"+uuid.NewString()+"."+ext)
	defer os.Remove(tmp)

	first := p.Supervisor.Run(ctx, Args(source, tmp, opts), func(percent float64) {
		onProgress(percent, 1)
	})
	if first.Status != 0 {
		return "", fmt.Errorf("upscale pass 1 %s: %s", source, first.Reason)
	}

	second := p.Supervisor.Run(ctx, Args(tmp, dest, opts), func(percent float64) {
		onProgress(percent, 2)
	})
	if second.Status != 0 {
		return "", fmt.Errorf("upscale pass 2 %s: %s", source, second.Reason)
	}

	p.finish(source, dest, opts)
	return dest, nil
}

// destination resolves where the final pass writes: the computed output
// location, or a hold file named after it when manual save is on.
func (p *Pipeline) destination(out string, opts Options) (string, error) {
	if !opts.ManualSave {
		return out, nil
	}
	hold := p.HoldDir
	if hold == "" {
		hold = p.scratch()
	}
	if err := os.MkdirAll(hold, 0o755); err != nil {
		return "", fmt.Errorf("create hold folder: %w", err)
	}
	return filepath.Join(hold, filepath.Base(out)), nil
}

func (p *Pipeline) scratch() string {
	if p.ScratchDir != "" {
		return p.ScratchDir
	}
	return os.TempDir()
}

// finish applies the post-success side effects: compression hand-off and
// metadata propagation, both against the original source and the final
// output.
func (p *Pipeline) finish(source, out string, opts Options) {
	if opts.Compression > 0 && opts.DelegateCompression && !opts.ManualSave && p.Compressor != nil && p.Compressor.Available() {
		format := FormatExtension(source, opts.SaveImageAs)
		// The delegate speaks a 1-6 level scale; ours is 0-99.
		p.Compressor.Compress(out, opts.OutputDir, format, float64(opts.Compression)/16.5)
	}

	if p.Metadata != nil {
		if _, err := p.Metadata.CopyIfDifferent(source, out); err != nil {
			p.log().Warn("metadata propagation failed", "source", source, "output", out, "error", err)
		}
	}
}

func (p *Pipeline) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
