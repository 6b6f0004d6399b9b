package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mnemo.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": 9090}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Memory.SessionTTLSeconds != 1800 {
		t.Errorf("expected default TTL 1800, got %d", cfg.Memory.SessionTTLSeconds)
	}
	if cfg.Memory.RetentionThreshold != 0.5 {
		t.Errorf("expected default retention threshold 0.5, got %f", cfg.Memory.RetentionThreshold)
	}
	if cfg.Memory.ContextThreshold != 0.7 {
		t.Errorf("expected default context threshold 0.7, got %f", cfg.Memory.ContextThreshold)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("MNEMO_TEST_REDIS", "redis://cache:6379/1")
	path := writeConfig(t, `{
		"cache": {"redis_url": "${MNEMO_TEST_REDIS}"},
		"durable": {"postgres_dsn": "${MNEMO_TEST_PG:postgres://localhost/mnemo}"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379/1" {
		t.Errorf("env substitution failed: %q", cfg.Cache.RedisURL)
	}
	if cfg.Durable.PostgresDSN != "postgres://localhost/mnemo" {
		t.Errorf("default substitution failed: %q", cfg.Durable.PostgresDSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
