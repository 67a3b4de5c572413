// Package watch redeploys when the manifest file changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid successive writes into one change.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors a single manifest file.
//
// The parent directory is watched rather than the file, so editors that
// replace the file by rename are seen as well.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
	log      *slog.Logger
}

// New creates a watcher for path. Use Run to start it.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	dir := filepath.Dir(abs)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		fs:       fs,
		path:     abs,
		debounce: debounce,
		log:      logger.With("component", "watch", "path", abs),
	}, nil
}

// Run calls onChange after each debounced write, create or rename of the
// manifest file. onChange runs on the watch goroutine, so changes are
// delivered one at a time. Run blocks until ctx is done and releases the
// underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	defer w.fs.Close()

	name := filepath.Base(w.path)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("manifest event", "op", event.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			if _, err := os.Stat(w.path); err != nil {
				// Renamed away and not yet replaced.
				w.log.Debug("manifest missing, waiting", "error", err)
				continue
			}
			w.log.Info("manifest changed")
			onChange(ctx)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}
