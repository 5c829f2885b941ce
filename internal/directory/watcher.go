// SPDX-License-Identifier: MIT

package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
)

// DefaultDebounce coalesces the burst of events an editor or an atomic
// rename produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Snapshot whenever its backing file changes.
type Watcher struct {
	path     string
	snapshot *Snapshot
	debounce time.Duration
	logger   zerolog.Logger
	reloaded func()
}

// NewWatcher returns a watcher for path. onReload, if set, runs after
// every successful reload.
func NewWatcher(path string, snapshot *Snapshot, debounce time.Duration, onReload func()) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		snapshot: snapshot,
		debounce: debounce,
		logger:   xglog.WithComponent("directory"),
		reloaded: onReload,
	}
}

// Load reads the file once and replaces the snapshot.
func (w *Watcher) Load() error {
	d, err := LoadFile(w.path)
	if err != nil {
		metrics.IncDirectoryReload("error")
		return err
	}
	w.snapshot.Replace(d)
	metrics.IncDirectoryReload("ok")
	if w.reloaded != nil {
		w.reloaded()
	}
	return nil
}

// Run watches the parent directory so atomic renames are seen, and
// blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info().
		Str(xglog.FieldEvent, "directory.watcher_started").
		Str(xglog.FieldPath, w.path).
		Msg("watching snapshot file for changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(xglog.FieldEvent, "directory.watcher_stopped").Msg("snapshot watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str(xglog.FieldEvent, "directory.file_changed").
					Str("op", ev.Op.String()).
					Msg("snapshot file changed")
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			if err := w.Load(); err != nil {
				w.logger.Error().
					Err(err).
					Str(xglog.FieldEvent, "directory.reload_failed").
					Msg("snapshot reload failed, keeping previous snapshot")
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str(xglog.FieldEvent, "directory.watcher_error").Msg("snapshot watcher error")
		}
	}
}
