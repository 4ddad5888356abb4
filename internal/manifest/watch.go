package manifest

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads the registry whenever dir's contents change,
// debounced the same way the skill manager debounces its own discovery
// watch. The returned cancel function stops watching.
func Watch(ctx context.Context, dir string, registry *Registry, logger *slog.Logger) (context.CancelFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(150*time.Millisecond, func() {
					reloaded, err := LoadDir(dir)
					if err != nil {
						logger.Warn("manifest reload failed, keeping previous set", "error", err, "dir", dir)
						return
					}
					registry.Replace(reloaded)
					logger.Info("tool manifests reloaded", "dir", dir, "count", len(reloaded.All()))
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("manifest watcher error", "error", err)
			}
		}
	}()

	return cancel, nil
}
