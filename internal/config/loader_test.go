package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingPathReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadParsesJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.json", `{
  "server": {"port": 9000},
  "transports": ["http"],
  "context_engine": {"enabled": true, "changeCapPctPerDay": 15, "minConfidence": 0.7}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.ContextEngine.ChangeCapPctPerDay != 15 {
		t.Fatalf("expected cap 15, got %v", cfg.ContextEngine.ChangeCapPctPerDay)
	}
}

func TestLoadRejectsInvalidTransport(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.json", `{"transports": ["carrier-pigeon"]}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown transport")
	}
}

func TestLoadRejectsOutOfRangeCap(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.json", `{"context_engine": {"changeCapPctPerDay": 150}}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for cap above 100")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.json", `{"server": {"port": 7000}}`)
	path := writeConfig(t, dir, "config.json", `{"$include": "base.json", "profile": "prod"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("expected included port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Profile != "prod" {
		t.Fatalf("expected profile prod, got %q", cfg.Profile)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("DISPATCHD_TEST_PROFILE", "from-env")
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.json", `{"profile": "${DISPATCHD_TEST_PROFILE}"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != "from-env" {
		t.Fatalf("expected env-expanded profile, got %q", cfg.Profile)
	}
}
