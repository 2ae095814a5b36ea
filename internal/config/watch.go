package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events an editor produces on save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the data file at path whenever it changes and passes the new
// File to onChange. Invalid files are logged and ignored, so the previous
// tables stay in effect. Watch returns once the watcher is running; it stops
// when ctx is done.
//
// The directory is watched rather than the file because editors commonly
// replace the file through a rename.
func Watch(ctx context.Context, path string, onChange func(*File), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close() //nolint:errcheck // already failing
		return fmt.Errorf("watch directory: %w", err)
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		reload := func() {
			f, err := LoadConfigFile(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous tables", "path", path, "error", err)
				return
			}
			logger.Info("config reloaded", "path", path)
			onChange(f)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
