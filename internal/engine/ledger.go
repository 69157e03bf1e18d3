package engine

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle of one item: Processing is the only non-terminal
// state, and there is no transition back out of Success or Failed.
type State int

const (
	StateProcessing State = iota
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is one unit of upscaling work as observed by the UI layer.
type Item struct {
	ID        string
	Path      string
	Thumbnail string
	StartedAt time.Time

	Width, Height             int
	TargetWidth, TargetHeight int

	OutputPath     string
	FileSize       int64
	OutputFileSize int64

	Progress float64 // 0-100
	Stage    int     // 1 or 2 for double-pass
	State    State
	Elapsed  time.Duration
}

type EventKind int

const (
	EventAppended EventKind = iota
	EventUpdated
	EventRemoved
	EventCleared
)

// Event describes one ledger mutation, delivered to subscribers in the
// order the mutations were applied.
type Event struct {
	Kind EventKind
	Item Item
}

// Ledger is the observable collection of in-flight and finished items.
// Workers mutate it concurrently; the mutex serializes every mutation
// and its publication, so observers never see a partial update.
type Ledger struct {
	mu    sync.Mutex
	items []Item
	subs  []chan Event

	// ThumbnailDir, when set, is deleted by RemoveAll.
	ThumbnailDir string
	Log          *slog.Logger
}

func NewLedger(thumbnailDir string) *Ledger {
	return &Ledger{ThumbnailDir: thumbnailDir}
}

// Append inserts item, replacing any existing entry with the same source
// path, and keeps the collection ordered by start time, newest first.
func (l *Ledger) Append(item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeLocked(item.Path)
	l.items = append(l.items, item)
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].StartedAt.After(l.items[j].StartedAt)
	})
	l.publish(Event{Kind: EventAppended, Item: item})
}

// Update replaces the entry matching item's source path in place. It is
// a no-op when no such entry exists.
func (l *Ledger) Update(item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.items {
		if l.items[i].Path == item.Path {
			l.items[i] = item
			l.publish(Event{Kind: EventUpdated, Item: item})
			return
		}
	}
}

// Remove drops the entry for the given source path, if any.
func (l *Ledger) Remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if removed, ok := l.removeLocked(path); ok {
		l.publish(Event{Kind: EventRemoved, Item: removed})
	}
}

// RemoveAll clears the ledger and deletes the thumbnail cache directory.
func (l *Ledger) RemoveAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	if l.ThumbnailDir != "" {
		if err := os.RemoveAll(l.ThumbnailDir); err != nil {
			l.log().Warn("remove thumbnail cache failed", "dir", l.ThumbnailDir, "error", err)
		}
	}
	l.publish(Event{Kind: EventCleared})
}

// Items returns a snapshot of the collection.
func (l *Ledger) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Processing reports how many items are currently in flight.
func (l *Ledger) Processing() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for i := range l.items {
		if l.items[i].State == StateProcessing {
			n++
		}
	}
	return n
}

// Subscribe returns a channel of ledger events. Delivery is best-effort:
// a subscriber that falls behind loses events rather than blocking the
// workers.
func (l *Ledger) Subscribe() <-chan Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, 256)
	l.subs = append(l.subs, ch)
	return ch
}

func (l *Ledger) removeLocked(path string) (Item, bool) {
	for i := range l.items {
		if l.items[i].Path == path {
			removed := l.items[i]
			l.items = append(l.items[:i], l.items[i+1:]...)
			return removed, true
		}
	}
	return Item{}, false
}

func (l *Ledger) publish(ev Event) {
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (l *Ledger) log() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}
