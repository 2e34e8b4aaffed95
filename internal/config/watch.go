package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadQuiet coalesces the event bursts editors produce on save.
const reloadQuiet = 300 * time.Millisecond

// Watch reloads the config file on change and hands each valid new
// config to onChange. A config that fails to parse or validate is
// logged and skipped; the running config stays live. Blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file via rename, which
	// silently drops a watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadQuiet, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous", "path", path, "error", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				slog.Warn("config reload invalid, keeping previous", "path", path, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
