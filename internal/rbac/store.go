// Package rbac resolves tool access by role pattern matching, bound to a
// JSON policies file that is loaded at startup (seeding defaults if
// absent) and rewritten atomically on update.
package rbac

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arcweave/dispatchd/internal/dispatch"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Store owns the process-singleton Policies document behind a
// read-mostly lock.
type Store struct {
	mu       sync.RWMutex
	path     string
	policies dispatchmodel.Policies
}

// Load reads policies from path, seeding and saving defaults if the
// file does not exist.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var p dispatchmodel.Policies
		if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
			return nil, fmt.Errorf("parse policies: %w", jsonErr)
		}
		s.policies = p
		return s, nil
	case os.IsNotExist(err):
		s.policies = dispatchmodel.Default()
		if saveErr := s.save(); saveErr != nil {
			return nil, fmt.Errorf("seed default policies: %w", saveErr)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("read policies: %w", err)
	}
}

// Policies returns a defensive copy of the current document.
func (s *Store) Policies() dispatchmodel.Policies {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies.Clone()
}

// Replace swaps the in-memory document and persists it atomically.
func (s *Store) Replace(p dispatchmodel.Policies) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.policies
	s.policies = p.Clone()
	if err := s.save(); err != nil {
		s.policies = prev
		return err
	}
	return nil
}

// save writes the current document to a temp file in the same directory
// and renames it into place, so a crash mid-write never corrupts the
// live policies file.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.policies, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal policies: %v", dispatch.ErrPersistence, err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".policies-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp policies file: %v", dispatch.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp policies file: %v", dispatch.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp policies file: %v", dispatch.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename policies file: %v", dispatch.ErrPersistence, err)
	}
	return nil
}

// IsToolAllowed implements is_tool_allowed(user, tool) from §4.7.
func (s *Store) IsToolAllowed(user, tool string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.policies.Users[user]
	if !ok {
		return false
	}
	patterns, ok := s.policies.Roles[role]
	if !ok {
		return false
	}
	for _, pattern := range patterns {
		if matchPattern(pattern, tool) {
			return true
		}
	}
	return false
}

// matchPattern implements the ordered rule set from §4.7: "*" allows
// everything, an exact string allows that tool id, and "<prefix>.*"
// allows any tool id with that prefix.
func matchPattern(pattern, tool string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == tool {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(tool, prefix)
	}
	return false
}
