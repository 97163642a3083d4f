package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "binhub.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.FetchTimeout() != 5*time.Minute {
		t.Errorf("default timeout: %v", cfg.FetchTimeout())
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binhub.yaml")
	contents := `version: 1
output: public
fetch:
  concurrency: 8
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != "public" {
		t.Errorf("output: %q", cfg.Output)
	}
	if cfg.Manifests != "manifests" {
		t.Errorf("manifests default lost: %q", cfg.Manifests)
	}
	if cfg.Fetch.Concurrency != 8 {
		t.Errorf("concurrency: %d", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.TimeoutSeconds != 300 || cfg.Fetch.Retries != 2 {
		t.Errorf("fetch defaults lost: %+v", cfg.Fetch)
	}
}

func TestLoadExplicitZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binhub.yaml")
	contents := `fetch:
  retries: 0
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("explicit retries: 0 was overridden to %d", cfg.Fetch.Retries)
	}
}

func TestLoadBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binhub.yaml")
	if err := os.WriteFile(path, []byte("fetch: [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for broken yaml")
	}
}
