package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

func stubManifest(name string) dispatchmodel.ToolManifest {
	return dispatchmodel.ToolManifest{Name: name, Version: "1.0.0", Entry: "native://builtin"}
}

func writeManifest(t *testing.T, dir, filename, name string) {
	t.Helper()
	content := `{"name":"` + name + `","version":"1.0.0","entry":"native://builtin","permissions":["fs.read"]}`
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.json", "fs.read")
	writeManifest(t, dir, "b.json", "fs.read")

	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected error for duplicate manifest names")
	}
}

func TestLoadDirExactMatchLookup(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "read.json", "fs.read")
	writeManifest(t, dir, "list.json5", "fs.list")

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	m, ok := registry.Lookup("fs.read")
	if !ok {
		t.Fatal("expected fs.read to be registered")
	}
	if m.Name != "fs.read" {
		t.Errorf("m.Name = %q, want fs.read", m.Name)
	}

	if _, ok := registry.Lookup("fs.rea"); ok {
		t.Error("Lookup should be exact-match only, found \"fs.rea\"")
	}

	if got := len(registry.All()); got != 2 {
		t.Errorf("len(All()) = %d, want 2", got)
	}
}

func TestLoadDirMissingDirReturnsEmptyRegistry(t *testing.T) {
	registry, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if got := len(registry.All()); got != 0 {
		t.Errorf("len(All()) = %d, want 0", got)
	}
}

func TestLoadDirIgnoresNonManifestFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "fs.json", "fs.read")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if got := len(registry.All()); got != 1 {
		t.Errorf("len(All()) = %d, want 1", got)
	}
}

func TestRegistryReplaceSwapsAtomically(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(stubManifest("old.tool")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	next := NewRegistry()
	if err := next.Register(stubManifest("new.tool")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	registry.Replace(next)
	if _, ok := registry.Lookup("old.tool"); ok {
		t.Error("old.tool should no longer be registered after Replace")
	}
	if _, ok := registry.Lookup("new.tool"); !ok {
		t.Error("new.tool should be registered after Replace")
	}
}
