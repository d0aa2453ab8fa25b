package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceInterval coalesces editor write bursts into one reload.
const debounceInterval = 200 * time.Millisecond

// Watcher re-reads the config file on change and hands the validated
// result to a callback. Invalid files are logged and skipped, so a bad
// edit never tears down a running coordinator.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on
	// save, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close() //nolint:errcheck
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	return &Watcher{path: path, watcher: fw, logger: logger}, nil
}

// Watch blocks until ctx is cancelled, invoking onReload with each
// successfully loaded config.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) {
	defer w.watcher.Close() //nolint:errcheck

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload rejected", zap.Error(err))
				continue
			}
			w.logger.Info("config reloaded", zap.String("path", w.path))
			onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
