// Package manifest discovers and holds the process-singleton table of
// ToolManifest documents, keyed by exact tool name as required by the
// dispatcher's manifest lookup rule (§4.1: "Manifest lookup is
// exact-match only").
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Registry is the read-mostly manifest table.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]dispatchmodel.ToolManifest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{manifests: make(map[string]dispatchmodel.ToolManifest)}
}

// LoadDir walks dir non-recursively for *.json/*.json5 manifest files and
// loads each one, rejecting duplicate tool names.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".json5" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
		var m dispatchmodel.ToolManifest
		if err := json5.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("manifest %s missing name", path)
		}
		if err := r.Register(m); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return r, nil
}

// Register adds a manifest, rejecting it if a manifest with the same
// name is already registered.
func (r *Registry) Register(m dispatchmodel.ToolManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.manifests[m.Name]; exists {
		return fmt.Errorf("duplicate tool manifest name %q", m.Name)
	}
	r.manifests[m.Name] = m
	return nil
}

// Replace atomically swaps in a freshly loaded manifest set, used by the
// directory watcher on hot reload.
func (r *Registry) Replace(next *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next.mu.RLock()
	defer next.mu.RUnlock()
	r.manifests = make(map[string]dispatchmodel.ToolManifest, len(next.manifests))
	for k, v := range next.manifests {
		r.manifests[k] = v
	}
}

// Lookup implements the dispatcher's exact-match manifest resolution.
func (r *Registry) Lookup(toolID string) (dispatchmodel.ToolManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[toolID]
	return m, ok
}

// All returns every registered manifest, sorted by name.
func (r *Registry) All() []dispatchmodel.ToolManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]dispatchmodel.ToolManifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
