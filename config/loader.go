package config

// loader.go - configuration loading from files and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML (or JSON) file at path onto cfg.  Unknown
// keys are rejected so typos do not silently fall back to defaults.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(cfg, data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func decode(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the KEYAGENT_ prefix.

// ConfigPathFromEnv returns KEYAGENT_CONFIG.
func ConfigPathFromEnv() string {
	return os.Getenv("KEYAGENT_CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flags are applied so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KEYAGENT_ADDRESS"); v != "" {
		cfg.Listen.Address = v
	}
	if v, ok := envInt("KEYAGENT_PORT"); ok {
		cfg.Listen.Port = v
	}
	if v, ok := envInt("KEYAGENT_BACKLOG"); ok {
		cfg.Listen.Backlog = v
	}
	if v := os.Getenv("KEYAGENT_SECRET"); v != "" {
		cfg.Security.Password = v
	}
	if v, ok := envInt("KEYAGENT_TIMEOUT"); ok {
		cfg.Security.TimeoutInterval = v
	}
	if v := os.Getenv("KEYAGENT_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("KEYAGENT_ACTUATOR"); v != "" {
		cfg.Actuator = v
	}
	if v := os.Getenv("KEYAGENT_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v, ok := envInt("KEYAGENT_VERBOSE"); ok {
		cfg.SetVerbosity(v)
	}
	if v := os.Getenv("KEYAGENT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Load builds a Config from defaults, the optional file at path, and
// the environment.  Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		path = ConfigPathFromEnv()
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
