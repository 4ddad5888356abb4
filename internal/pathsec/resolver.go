// Package pathsec validates, canonicalizes, and glob-expands filesystem
// paths against an allowlist of host directories, with "shorthand"
// prefix rewriting for callers that address an allowlist entry by its
// basename. It is the sole gate between a tool's path argument and the
// host filesystem.
package pathsec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver enforces the allowlist rules from the specification.
type Resolver struct {
	// Base resolves relative candidate paths. Defaults to the process
	// working directory when empty.
	Base string
}

// base entry, canonicalized once per call (the allowlist is small and
// read-mostly, so per-call canonicalization keeps the type stateless).
type canonicalBase struct {
	raw  string
	abs  string
	name string
}

func canonicalize(allowlist []string) []canonicalBase {
	out := make([]canonicalBase, 0, len(allowlist))
	for _, b := range allowlist {
		abs, err := filepath.Abs(b)
		if err != nil {
			continue
		}
		abs = resolveSymlinks(abs)
		out = append(out, canonicalBase{raw: b, abs: filepath.Clean(abs), name: filepath.Base(filepath.Clean(b))})
	}
	return out
}

func resolveSymlinks(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

func (r Resolver) absolutize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := strings.TrimSpace(r.Base)
	if base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Clean(filepath.Join(base, path))
}

func hasPrefixComponents(path, prefix string) bool {
	if path == prefix {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, sep)+sep)
}

// resolve implements the deterministic 4-step algorithm from §4.2: direct
// allowlist match, then shorthand rewrite, then reject.
func (r Resolver) resolve(path string, allowlist []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	bases := canonicalize(allowlist)

	absolutized := r.absolutize(path)
	resolvedAbs := resolveSymlinks(absolutized)

	for _, b := range bases {
		if hasPrefixComponents(resolvedAbs, b.abs) {
			rel, err := filepath.Rel(b.abs, resolvedAbs)
			if err != nil {
				continue
			}
			if rel == "." {
				return b.abs, nil
			}
			return filepath.Join(b.abs, rel), nil
		}
	}

	// Shorthand rewrite: the *original* input's leading component must
	// match an allowlist entry's basename.
	for _, b := range bases {
		if b.name == "" {
			continue
		}
		shorthandPrefix := string(filepath.Separator) + b.name
		if path == shorthandPrefix || strings.HasPrefix(path, shorthandPrefix+string(filepath.Separator)) {
			suffix := strings.TrimPrefix(path, shorthandPrefix)
			suffix = strings.TrimPrefix(suffix, string(filepath.Separator))
			rewritten := filepath.Join(b.abs, suffix)
			return rewritten, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
}

// IsAllowed reports whether path is permitted under allowlist, applying
// shorthand rewriting before the check.
func (r Resolver) IsAllowed(path string, allowlist []string) bool {
	_, err := r.resolve(path, allowlist)
	return err == nil
}

// ResolvePath returns the canonical absolute form of path, rewritten
// through shorthand where that rule applied.
func (r Resolver) ResolvePath(path string, allowlist []string) (string, error) {
	return r.resolve(path, allowlist)
}

// ExpandWildcardPath resolves the directory portion of a glob pattern via
// ResolvePath, globs beneath it, and re-validates every match against the
// allowlist so a symlink cannot smuggle a match outside it.
func (r Resolver) ExpandWildcardPath(pattern string, allowlist []string) ([]string, error) {
	dir, file := filepath.Split(pattern)
	if dir == "" {
		dir = "."
	} else {
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
	}
	resolvedDir, err := r.resolve(dir, allowlist)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(resolvedDir, file))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		resolvedMatch := resolveSymlinks(m)
		if !r.IsAllowed(resolvedMatch, allowlist) {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, pattern)
	}
	return out, nil
}

// IsWildcard reports whether path contains glob metacharacters.
func IsWildcard(path string) bool {
	return strings.ContainsAny(path, "*?")
}
