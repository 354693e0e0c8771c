package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	defaults := DefaultConfig()
	if cfg.Server.Addr != defaults.Server.Addr {
		t.Errorf("expected default addr %s, got %s", defaults.Server.Addr, cfg.Server.Addr)
	}
	if cfg.Analysis.TimeoutSeconds != 30 {
		t.Errorf("expected default analysis timeout 30, got %d", cfg.Analysis.TimeoutSeconds)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"version": 1,
		"server": {"addr": "0.0.0.0:9000"},
		"cache": {"redisUrl": "redis://localhost:6379", "scriptTtlSeconds": 120},
		"analysis": {"serviceUrl": "http://ai:8000", "timeoutSeconds": 5}
	}`
	if err := os.WriteFile(filepath.Join(dir, "scriptd.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("override not applied: %s", cfg.Server.Addr)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379" {
		t.Errorf("cache override not applied: %s", cfg.Cache.RedisURL)
	}
	if cfg.Analysis.TimeoutSeconds != 5 {
		t.Errorf("analysis override not applied: %d", cfg.Analysis.TimeoutSeconds)
	}
	// Untouched sections keep defaults
	if cfg.Jobs.QueueSize != 100 {
		t.Errorf("expected default queue size, got %d", cfg.Jobs.QueueSize)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:7777"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig after Save failed: %v", err)
	}
	if loaded.Server.Addr != "127.0.0.1:7777" {
		t.Errorf("round trip lost addr: %s", loaded.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Analysis.TimeoutSeconds = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected validation failure for zero timeout")
	}

	bad = DefaultConfig()
	bad.Analysis.MinSimilarity = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected validation failure for out-of-range similarity")
	}
}
