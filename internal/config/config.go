package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Cache      CacheConfig      `json:"cache"`
	Durable    DurableConfig    `json:"durable"`
	Classifier ClassifierConfig `json:"classifier"`
	Memory     MemoryConfig     `json:"memory"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// CacheConfig points at the TTL-capable key-value backend for sessions.
type CacheConfig struct {
	RedisURL string `json:"redis_url"`
}

// DurableConfig selects the long-term record backend: Postgres when a DSN
// is set, otherwise versioned JSON files under DataDir.
type DurableConfig struct {
	PostgresDSN string `json:"postgres_dsn"`
	DataDir     string `json:"data_dir"`
}

// ClassifierConfig describes the external inference service.
type ClassifierConfig struct {
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// MemoryConfig holds the tuning knobs of the memory core.
type MemoryConfig struct {
	SessionTTLSeconds  int     `json:"session_ttl_seconds"`
	MaxHistory         int     `json:"max_history"`
	RetentionDays      int     `json:"retention_days"`
	MaxEvents          int     `json:"max_events"`
	RetentionThreshold float64 `json:"retention_threshold"`
	ContextThreshold   float64 `json:"context_threshold"`
	RecentWindow       int     `json:"recent_window"`
}

// SessionTTL returns the session TTL as a duration.
func (m MemoryConfig) SessionTTL() time.Duration {
	return time.Duration(m.SessionTTLSeconds) * time.Second
}

// RetentionAge returns the durable event age horizon as a duration.
func (m MemoryConfig) RetentionAge() time.Duration {
	return time.Duration(m.RetentionDays) * 24 * time.Hour
}

// Timeout returns the classifier call timeout.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns the configuration defaults applied before file values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Durable: DurableConfig{
			DataDir: "data/longterm",
		},
		Classifier: ClassifierConfig{
			Endpoint:       "https://openrouter.ai/api/v1",
			Model:          "openai/gpt-4o-mini",
			TimeoutSeconds: 15,
		},
		Memory: MemoryConfig{
			SessionTTLSeconds:  1800,
			MaxHistory:         20,
			RetentionDays:      365,
			MaxEvents:          1000,
			RetentionThreshold: 0.5,
			ContextThreshold:   0.7,
			RecentWindow:       10,
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references, layering file values over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
