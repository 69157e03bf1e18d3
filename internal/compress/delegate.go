// Package compress hands finished output to an external compressor
// instead of the upscaler's own -c flag.
package compress

import (
	"log/slog"
	"os/exec"
	"strconv"
)

const defaultCommand = "zipic"

// Delegate invokes the external compressor CLI. Invocations are
// fire-and-forget: a compression failure is logged and never surfaced
// back to the pipeline.
type Delegate struct {
	Command string // executable name or path; defaults to "zipic"
	Log     *slog.Logger
}

func (d *Delegate) command() string {
	if d.Command != "" {
		return d.Command
	}
	return defaultCommand
}

// Available reports whether the compressor is installed.
func (d *Delegate) Available() bool {
	_, err := exec.LookPath(d.command())
	return err == nil
}

// Compress schedules compression of path at the given level (1-6 scale).
// destDir, when non-empty, tells the compressor where to place its
// result.
func (d *Delegate) Compress(path, destDir, format string, level float64) {
	args := []string{path, "--format", format, "--level", strconv.FormatFloat(level, 'f', 1, 64)}
	if destDir != "" {
		args = append(args, "--output", destDir)
	}

	cmd := exec.Command(d.command(), args...)
	if err := cmd.Start(); err != nil {
		d.log().Warn("compressor launch failed", "command", d.command(), "path", path, "error", err)
		return
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			d.log().Warn("compressor exited abnormally", "command", d.command(), "path", path, "error", err)
		}
	}()
}

func (d *Delegate) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
