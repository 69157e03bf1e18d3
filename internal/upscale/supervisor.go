package upscale

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// StatusLaunchFailed is the sentinel status reported when the binary
// could not even be started. Callers treat it like any other non-zero
// status.
const StatusLaunchFailed = -1

// CommandResult captures one run of the upscaler binary.
type CommandResult struct {
	Output string
	Reason string // OS-reported termination reason, or the launch error
	Status int
}

// Supervisor launches the external upscaler and surfaces its progress
// stream. One Run blocks the calling worker until the process exits.
type Supervisor struct {
	Binary string
	Log    *slog.Logger
}

// Args builds the argument vector for one invocation of the binary. The
// -c flag is only passed when compression is handled by the binary
// itself rather than delegated to the external compressor.
func Args(input, output string, opts Options) []string {
	format := strings.TrimPrefix(filepath.Ext(output), ".")

	args := []string{
		"-i", input,
		"-o", output,
		"-s", strconv.Itoa(opts.Scale),
		"-m", opts.Model.Dir(opts.ModelsDir),
		"-n", opts.Model.Name(),
		"-f", format,
	}

	if opts.Compression > 0 && !opts.DelegateCompression {
		args = append(args, "-c", strconv.Itoa(opts.Compression))
	}
	if opts.GPUID != "" {
		args = append(args, "-g", opts.GPUID)
	}
	if opts.TileSize != 0 {
		args = append(args, "-t", strconv.Itoa(opts.TileSize))
	}
	if opts.TTA {
		args = append(args, "-x")
	}

	return args
}

// Run executes the binary with args, draining combined stdout/stderr
// incrementally. Every complete line carrying a percentage is reported
// through onProgress; malformed lines are ignored. Launch failures are
// logged and returned as StatusLaunchFailed rather than an error, so
// callers handle "could not start" and "ran and failed" uniformly.
func (s *Supervisor) Run(ctx context.Context, args []string, onProgress func(float64)) CommandResult {
	cmd := exec.CommandContext(ctx, s.Binary, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var captured bytes.Buffer
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			captured.WriteString(line)
			captured.WriteByte('\n')
			if percent, ok := parseProgress(line); ok && onProgress != nil {
				onProgress(percent)
			}
		}
		// A line beyond the buffer limit stops the scanner with the pipe
		// still open; keep draining or the process blocks on a full pipe
		// and never exits.
		io.Copy(&captured, pr)
	}()

	if err := cmd.Start(); err != nil {
		pw.CloseWithError(err)
		<-scanDone
		s.log().Error("failed to launch upscaler",
			"binary", s.Binary,
			"args", strings.Join(args, " "),
			"error", err)
		return CommandResult{Reason: err.Error(), Status: StatusLaunchFailed}
	}

	waitErr := cmd.Wait()
	pw.Close()
	<-scanDone

	result := CommandResult{
		Output: captured.String(),
		Reason: cmd.ProcessState.String(),
		Status: cmd.ProcessState.ExitCode(),
	}
	if result.Status == 0 && waitErr != nil {
		result.Reason = waitErr.Error()
		result.Status = StatusLaunchFailed
	}

	if result.Status != 0 {
		s.log().Error("upscaler exited abnormally",
			"binary", s.Binary,
			"args", strings.Join(args, " "),
			"status", result.Status,
			"reason", result.Reason,
			"output", result.Output)
	}

	return result
}

func (s *Supervisor) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// parseProgress extracts the numeric prefix of a "<number>%" line.
func parseProgress(line string) (float64, bool) {
	idx := strings.IndexByte(line, '%')
	if idx < 0 {
		return 0, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(line[:idx]), 64)
	if err != nil {
		return 0, false
	}
	return percent, true
}
