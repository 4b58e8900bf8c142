// Package watcher reloads the corpus when the documents directory
// changes. Change bursts (a copy of several PDFs, an editor's
// write-then-rename) are debounced into a single reload; reload
// failures are logged and watching continues.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc rebuilds the corpus if the documents changed.
type ReloadFunc func(ctx context.Context) error

// Watcher debounces document-directory events into corpus reloads.
type Watcher struct {
	dir      string
	debounce time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	reloads atomic.Uint64

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
}

// New creates a watcher over the given documents directory.
func New(dir string, debounce time.Duration, reload ReloadFunc, logger *slog.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("documents directory is required")
	}
	if reload == nil {
		return nil, errors.New("reload function is required")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		reload:   reload,
		logger:   logger,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start watches the documents directory and blocks until the context
// is canceled or Stop is called. Watcher errors are logged, never
// returned; only a failure to establish the watch is fatal.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.logger.Info("watching documents directory",
		"dir", w.dir,
		"debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle filters an event and schedules a debounced reload. Only PDF
// files count; the directory itself and editor droppings do not.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !isPDF(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug("document change detected",
		"file", filepath.Base(event.Name),
		"op", event.Op.String())

	w.scheduleReload(ctx)
}

// scheduleReload resets the debounce timer. Each relevant event pushes
// the reload out by another quiet period.
func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.fireReload(ctx)
	})
}

func (w *Watcher) fireReload(ctx context.Context) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	w.reloads.Add(1)
	w.logger.Info("documents changed, reloading corpus")

	if err := w.reload(ctx); err != nil {
		w.logger.Warn("corpus reload failed", "error", err)
	}
}

// Stop stops the watcher and releases resources. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.stopCh)
	return w.fsw.Close()
}

// Reloads returns the number of reloads triggered so far.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// isPDF applies the same filter as corpus discovery: PDF extension,
// not hidden.
func isPDF(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
