// Package watch reports changes to the application configuration file made
// by other processes or by hand.
package watch

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/example/cmd-notebook/internal/notebook/config"
)

// DefaultDebounce coalesces the burst of events produced by one save.
const DefaultDebounce = 100 * time.Millisecond

// ChangeFunc receives the configuration as loaded after a change.
type ChangeFunc func(cfg config.Config)

// Watcher watches the directory holding app_config.json. The store must be
// backed by the OS filesystem.
type Watcher struct {
	store    *config.Store
	logger   *slog.Logger
	debounce time.Duration
}

// New creates a Watcher for store.
func New(store *config.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{store: store, logger: logger, debounce: DefaultDebounce}
}

// SetDebounce overrides the quiet period before a change is reported.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultDebounce
	}
	w.debounce = d
}

// Run blocks until ctx is cancelled, calling fn each time the configuration
// file is created, written or renamed into place. Changes that fail to load
// are logged and skipped.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	path, err := w.store.Path()
	if err != nil {
		return err
	}
	// Load once so the file and its directory exist before watching.
	if _, err := w.store.Load(); err != nil {
		w.logger.Warn("watch: initial config load failed", "path", path, "error", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watch: started", "path", path)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watch: stopped")
			return nil

		case <-fire:
			fire = nil
			cfg, err := w.store.Load()
			if err != nil {
				w.logger.Warn("watch: config reload failed", "path", path, "error", err)
				continue
			}
			w.logger.Debug("watch: config changed", "data_dir", cfg.DataDir, "backup_count", cfg.BackupCount)
			if fn != nil {
				fn(cfg)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				restart(timer, w.debounce)
			}
			fire = timer.C

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch: error", "error", watchErr)
		}
	}
}

// restart rearms t for d, discarding a tick that fired but was not received.
func restart(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
