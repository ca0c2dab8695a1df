package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QueueLength != 64 || cfg.MaxConcurrent != 4 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.DataDir == "" {
		t.Error("default data dir missing")
	}
}

func TestLoad_MissingFilesAreNotErrors(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("missing files must be skipped, got: %v", err)
	}
	if cfg.QueueLength != 64 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{"queue_length": 128, "max_concurrent": 8}`)
	project := writeConfig(t, dir, "project.json", `{"max_concurrent": 2}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QueueLength != 128 {
		t.Errorf("queue_length = %d, want global 128", cfg.QueueLength)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("max_concurrent = %d, want project 2", cfg.MaxConcurrent)
	}
}

func TestLoad_MalformedJSONFails(t *testing.T) {
	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.json", `{"queue_length": `)

	if _, err := Load(bad, ""); err == nil {
		t.Error("expected malformed JSON to fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	in := DefaultConfig()
	in.DataDir = "/var/lib/taskcycle"
	in.QueueLength = 16
	if err := Save(in, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out, err := Load(path, "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if out.DataDir != in.DataDir || out.QueueLength != in.QueueLength {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if got := cfg.DatabasePath(); got != filepath.Join("/data", "taskcycle.db") {
		t.Errorf("unexpected database path: %s", got)
	}
}
