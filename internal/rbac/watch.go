package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Watch starts watching the store's backing file for external edits
// (e.g. an operator hand-editing policies.json) and hot-reloads the
// in-memory document on change, mirroring the debounced fsnotify watch
// used for skill discovery elsewhere in this codebase. The returned
// cancel function stops the watcher.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger) (context.CancelFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(s.path)
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
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(150*time.Millisecond, func() {
					s.reload(logger)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("policies watcher error", "error", err)
			}
		}
	}()

	return cancel, nil
}

func (s *Store) reload(logger *slog.Logger) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		logger.Warn("failed to reload policies", "error", err, "path", s.path)
		return
	}
	var p dispatchmodel.Policies
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("failed to parse reloaded policies, keeping previous", "error", err, "path", s.path)
		return
	}
	s.mu.Lock()
	s.policies = p
	s.mu.Unlock()
	logger.Info("policies reloaded", "path", s.path)
}
