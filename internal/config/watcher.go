package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
)

// ReloadFunc is called after the watched file settles following a change.
type ReloadFunc func(path string)

// SeedWatcher watches the seed file and triggers a reload when it changes.
// The parent directory is watched so editors that replace the file by
// rename are handled.
type SeedWatcher struct {
	path      string
	debounce  time.Duration
	onChange  ReloadFunc
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewSeedWatcher creates a watcher for path. Call Start to begin watching.
func NewSeedWatcher(path string, debounce time.Duration, onChange ReloadFunc, logger *slog.Logger) (*SeedWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("reload callback cannot be nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving seed path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SeedWatcher{
		path:      abs,
		debounce:  debounce,
		onChange:  onChange,
		fsWatcher: fsWatcher,
		logger:    logging.OrDiscard(logger).With("component", "seed-watcher"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins watching the seed file's directory.
func (w *SeedWatcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *SeedWatcher) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	return err
}

func (w *SeedWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("seed watcher error", "error", err)
		}
	}
}

// schedule debounces bursts of events into one reload.
func (w *SeedWatcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Info("seed file changed", "path", w.path)
		w.onChange(w.path)
	})
}
