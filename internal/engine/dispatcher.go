package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"hipixel/internal/upscale"
	"hipixel/pkg/imgutil"
)

// Source tags where a batch came from.
type Source int

const (
	SourceUser Source = iota
	SourceAutomated
)

// Thumbnailer produces a preview image for ledger display.
type Thumbnailer interface {
	Generate(source string) (string, error)
}

// Cloud-synced placeholders can take a moment to materialize after they
// appear in a listing; each unit retries existence briefly and is
// silently dropped from the batch if the file never shows up.
const (
	sourceRetries    = 5
	sourceRetryDelay = 200 * time.Millisecond
)

// Dispatcher is the batch entry point: it expands dropped paths into
// eligible images, spreads them across the shared queues, and tracks
// per-batch completion for the aggregate notification.
type Dispatcher struct {
	Queues     *QueueManager
	Ledger     *Ledger
	Pipeline   *upscale.Pipeline
	Thumbnails Thumbnailer
	// Notify fires exactly once per batch, after every item has reached
	// a terminal state, with the number of items that did. A batch whose
	// expansion yields nothing eligible still notifies, with zero, so
	// callers waiting on the batch never block.
	Notify func(count int)
	Log    *slog.Logger
}

type batchEntry struct {
	path   string
	origin string // dropped directory for folder-expanded items, else ""
}

// Process submits one batch of files and/or directories. It returns once
// the batch has been expanded and queued; callers observe outcomes
// through the ledger and the aggregate notification.
func (d *Dispatcher) Process(ctx context.Context, paths []string, opts upscale.Options, source Source) {
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			// Degrade to writing next to the sources instead of
			// aborting the batch.
			d.log().Error("create output folder failed, saving alongside sources",
				"dir", opts.OutputDir, "error", err)
			opts.OutputDir = ""
		}
	}

	var entries []batchEntry
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			d.log().Warn("input not found", "path", p, "error", err)
			continue
		}
		if info.IsDir() {
			for _, img := range imgutil.ImageContents(p) {
				entries = append(entries, batchEntry{path: img, origin: p})
			}
			continue
		}
		if imgutil.IsImageFile(p) {
			entries = append(entries, batchEntry{path: p})
		}
	}

	kept := entries[:0]
	for _, e := range entries {
		if imgutil.FileSize(e.path) > 0 {
			kept = append(kept, e)
		}
	}
	entries = kept

	if len(entries) == 0 {
		d.notify(0)
		return
	}

	queue := d.Queues.Allocate(len(entries))
	done := make(chan bool, len(entries))

	for _, e := range entries {
		e := e
		queue.Submit(func() {
			done <- d.runUnit(ctx, e, opts)
		})
	}

	go func() {
		completed := 0
		for range entries {
			if <-done {
				completed++
			}
		}
		d.Queues.Release(queue, len(entries))
		d.notify(completed)
	}()
}

func (d *Dispatcher) notify(count int) {
	if d.Notify != nil {
		d.Notify(count)
	}
}

// runUnit drives one item through the pipeline and reports whether the
// item reached a terminal ledger state. Units whose source vanished
// before processing are dropped and not counted toward the batch.
func (d *Dispatcher) runUnit(ctx context.Context, e batchEntry, opts upscale.Options) bool {
	outPath := upscale.OutputPath(e.path, e.origin, opts)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		d.log().Warn("create save directory failed", "dir", filepath.Dir(outPath), "error", err)
	}

	if !d.awaitSource(e.path) {
		return false
	}

	item := Item{
		ID:        uuid.NewString(),
		Path:      e.path,
		StartedAt: time.Now(),
		FileSize:  imgutil.FileSize(e.path),
		State:     StateProcessing,
	}
	if w, h, err := imgutil.Dimensions(e.path); err == nil {
		scale := opts.EffectiveScale()
		item.Width, item.Height = w, h
		item.TargetWidth, item.TargetHeight = w*scale, h*scale
	}
	if d.Thumbnails != nil {
		if thumb, err := d.Thumbnails.Generate(e.path); err == nil {
			item.Thumbnail = thumb
		} else {
			d.log().Warn("thumbnail generation failed", "path", e.path, "error", err)
			item.Thumbnail = e.path
		}
	}

	d.Ledger.Append(item)

	out, err := d.Pipeline.Process(ctx, e.path, e.origin, opts, func(percent float64, stage int) {
		item.Progress = percent
		item.Stage = stage
		d.Ledger.Update(item)
	})

	item.Elapsed = time.Since(item.StartedAt)
	if err != nil {
		item.State = StateFailed
	} else {
		item.State = StateSuccess
		item.Progress = 100
		item.OutputPath = out
		item.OutputFileSize = imgutil.FileSize(out)
	}
	d.Ledger.Update(item)
	return true
}

// awaitSource opens the file to nudge file providers into materializing
// it, polling briefly before giving up.
func (d *Dispatcher) awaitSource(path string) bool {
	for attempt := 0; attempt < sourceRetries; attempt++ {
		if f, err := os.Open(path); err == nil {
			f.Close()
			return true
		}
		time.Sleep(sourceRetryDelay)
	}
	d.log().Warn("source never materialized, dropping from batch", "path", path)
	return false
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
