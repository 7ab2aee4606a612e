package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk and
// hands the freshly validated Config to a callback.
type Watcher struct {
	logger   *zap.Logger
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	reloads sync.WaitGroup
}

// NewWatcher creates a watcher for path. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(logger *zap.Logger, path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// watch the directory: editors that save through a rename replace the file
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &Watcher{
		logger:   logger,
		path:     filepath.Clean(path),
		debounce: debounce,
		watcher:  fw,
	}, nil
}

// Run blocks until ctx is done, calling onChange after each settled change.
// Files that fail to load are logged and skipped. Run returns only after a
// reload in progress has finished.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.stop()

	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Config file modified",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			w.schedule(ctx, onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, onChange func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil && w.timer.Stop() {
		w.reloads.Done()
	}
	w.reloads.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.reloads.Done()
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("Ignoring invalid configuration", zap.Error(err))
			return
		}
		w.logger.Info("Reloading configuration", zap.String("path", w.path))
		onChange(cfg)
	})
}

// stop cancels a pending reload and waits for one already running.
func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil && w.timer.Stop() {
		w.reloads.Done()
	}
	w.timer = nil
	w.mu.Unlock()
	w.reloads.Wait()
	w.watcher.Close()
}
