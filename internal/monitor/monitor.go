// Package monitor watches directories for newly arriving images and
// feeds them to the batch dispatcher. A per-directory whitelist keeps
// previously seen inputs and the engine's own predicted output files
// from being re-ingested.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"hipixel/internal/engine"
	"hipixel/internal/upscale"
	"hipixel/pkg/imgutil"
)

// Directory is one watched folder. Disabling suspends scanning without
// forgetting the whitelist.
type Directory struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Batcher accepts detected image paths for processing.
type Batcher interface {
	Process(ctx context.Context, paths []string, opts upscale.Options, source engine.Source)
}

// ProcessingCounter reports how many ledger items are still in flight.
type ProcessingCounter interface {
	Processing() int
}

const defaultInterval = time.Second

// Monitor polls the watched directories. Polling keeps the detection
// mechanism portable; the whitelist-before-dispatch ordering below is
// what prevents feedback loops, independent of how changes are noticed.
type Monitor struct {
	mu        sync.Mutex
	dirs      []Directory
	whitelist map[string]map[string]struct{}

	dispatcher Batcher
	ledger     ProcessingCounter
	options    func() upscale.Options

	// StatePath persists the watched-directory list as JSON.
	StatePath string
	Interval  time.Duration
	Log       *slog.Logger
}

func New(dispatcher Batcher, ledger ProcessingCounter, options func() upscale.Options) *Monitor {
	return &Monitor{
		dispatcher: dispatcher,
		ledger:     ledger,
		options:    options,
		whitelist:  make(map[string]map[string]struct{}),
		Interval:   defaultInterval,
	}
}

// Load restores the watched-directory list from StatePath and seeds the
// whitelist of every enabled directory with its current images, so
// pre-existing files are never treated as new.
func (m *Monitor) Load() error {
	if m.StatePath == "" {
		return nil
	}
	data, err := os.ReadFile(m.StatePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var dirs []Directory
	if err := json.Unmarshal(data, &dirs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs = dirs
	for _, d := range dirs {
		if d.Enabled {
			m.seedLocked(d.Path)
		}
	}
	return nil
}

// Save writes the watched-directory list to StatePath.
func (m *Monitor) Save() error {
	if m.StatePath == "" {
		return nil
	}

	m.mu.Lock()
	dirs := make([]Directory, len(m.dirs))
	copy(dirs, m.dirs)
	m.mu.Unlock()

	data, err := json.MarshalIndent(dirs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.StatePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.StatePath, data, 0o644)
}

// Add starts watching path. Adding a directory that is already watched
// returns the existing entry.
func (m *Monitor) Add(path string) Directory {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.dirs {
		if d.Path == path {
			return d
		}
	}

	dir := Directory{ID: uuid.NewString(), Path: path, Enabled: true}
	m.dirs = append(m.dirs, dir)
	m.seedLocked(path)
	return dir
}

// Update replaces the entry with dir's id. Enabling a previously
// disabled directory re-seeds its whitelist from the current contents.
func (m *Monitor) Update(dir Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.dirs {
		if m.dirs[i].ID == dir.ID {
			previous := m.dirs[i]
			m.dirs[i] = dir
			if dir.Path != previous.Path {
				delete(m.whitelist, previous.Path)
			}
			if dir.Enabled {
				m.seedLocked(dir.Path)
			}
			return
		}
	}
}

// Remove stops watching path and drops its whitelist entirely.
func (m *Monitor) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.dirs {
		if m.dirs[i].Path == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			break
		}
	}
	delete(m.whitelist, path)
}

// Directories returns a snapshot of the watched list.
func (m *Monitor) Directories() []Directory {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Directory, len(m.dirs))
	copy(out, m.dirs)
	return out
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one detection cycle over every enabled directory.
//
// New files are added to the whitelist, together with their predicted
// output paths, before they are dispatched. The upscaler's own output is
// therefore already accounted for by the time it appears on disk, so the
// next cycle cannot re-ingest it. When nothing new is found the
// whitelist is refreshed to absorb external deletions, but only while no
// item is processing anywhere; otherwise a just-produced output could be
// dropped from the whitelist while sibling work is still running.
func (m *Monitor) Scan(ctx context.Context) {
	opts := m.options()

	m.mu.Lock()
	dirs := make([]Directory, len(m.dirs))
	copy(dirs, m.dirs)
	m.mu.Unlock()

	for _, dir := range dirs {
		if !dir.Enabled {
			continue
		}

		current := imgutil.ImageContents(dir.Path)

		m.mu.Lock()
		known := m.whitelist[dir.Path]
		if known == nil {
			known = make(map[string]struct{})
			m.whitelist[dir.Path] = known
		}

		var targets []string
		for _, img := range current {
			if _, ok := known[img]; !ok {
				targets = append(targets, img)
			}
		}

		if len(targets) == 0 {
			if m.ledger.Processing() == 0 {
				refreshed := make(map[string]struct{}, len(current))
				for _, img := range current {
					refreshed[img] = struct{}{}
				}
				m.whitelist[dir.Path] = refreshed
			}
			m.mu.Unlock()
			continue
		}

		for _, img := range targets {
			known[img] = struct{}{}
			known[upscale.OutputPath(img, "", opts)] = struct{}{}
			if opts.OutputDir != "" {
				// The dispatcher falls back to saving alongside the
				// source when the override directory cannot be created;
				// cover that landing spot as well.
				alongside := opts
				alongside.OutputDir = ""
				known[upscale.OutputPath(img, "", alongside)] = struct{}{}
			}
		}
		m.mu.Unlock()

		m.log().Info("detected new images", "dir", dir.Path, "count", len(targets))
		m.dispatcher.Process(ctx, targets, opts, engine.SourceAutomated)
	}
}

func (m *Monitor) seedLocked(path string) {
	seeded := make(map[string]struct{})
	for _, img := range imgutil.ImageContents(path) {
		seeded[img] = struct{}{}
	}
	m.whitelist[path] = seeded
}

// Whitelisted reports whether file is already accounted for in dir's
// whitelist.
func (m *Monitor) Whitelisted(dir, file string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	known, ok := m.whitelist[dir]
	if !ok {
		return false
	}
	_, ok = known[file]
	return ok
}

func (m *Monitor) log() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}
