// Package watcher triggers re-syncs when files under collection roots
// change. Rapid bursts of events are debounced into a single trigger, the
// sync engine itself works out what actually changed.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required before a trigger fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes directory trees and emits coalesced change triggers.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

func New(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{fsw: fsw, debounce: debounce, logger: logger}, nil
}

// AddRoot watches root and every subdirectory beneath it. Hidden and
// dependency directories are skipped, matching the scanner.
func (w *Watcher) AddRoot(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Close releases the underlying notify handle.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// relevant reports whether an event should schedule a trigger. Directory
// creation is relevant because the new directory needs watching; otherwise
// only markdown files count.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op.Has(fsnotify.Create) {
		// A newly created directory gets added to the watch set. Add
		// fails harmlessly for plain files.
		if err := w.fsw.Add(ev.Name); err == nil {
			return true
		}
	}
	return strings.HasSuffix(ev.Name, ".md")
}

// Run blocks, invoking onChange after each debounced burst of relevant
// events, until ctx is cancelled. Errors from onChange are logged, not
// fatal; the watch keeps going.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("file event", "op", ev.Op.String(), "path", ev.Name)
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			armed = false
			if err := onChange(ctx); err != nil {
				w.logger.Warn("change handler failed", "error", err)
			}
		}
	}
}
