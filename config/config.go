// Package config defines the runtime configuration for keyagent: where
// to listen, the shared secret, the idle timeout, which profile and
// actuator to run, and the command tree.
package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"keyagent/internal/command"
	kaerrors "keyagent/internal/errors"
)

// Config holds every tuneable for one agent process.  The tagged
// fields can come from a YAML or JSON file; the rest are set by flags.
type Config struct {
	Listen   ListenConfig         `yaml:"listen"`
	Security SecurityConfig       `yaml:"security"`
	Profile  string               `yaml:"profile"`
	Actuator string               `yaml:"actuator"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Log      LogConfig            `yaml:"log"`
	Commands []command.Definition `yaml:"commands"`

	// ── Runtime only ─────────────────────────────────────────────────
	IdleTick    time.Duration `yaml:"-"`
	Settle      time.Duration `yaml:"-"`
	ConnTimeout time.Duration `yaml:"-"`
	GracePeriod time.Duration `yaml:"-"`

	// Connect, when set, runs the interactive client against host:port
	// instead of serving.
	Connect string `yaml:"-"`
}

// ListenConfig is the server socket.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Backlog int    `yaml:"backlog"`
}

// SecurityConfig holds the shared secret, base64 encoded, and the idle
// timeout in minutes.
type SecurityConfig struct {
	Password        string `yaml:"password"`
	TimeoutInterval int    `yaml:"timeoutInterval"`
}

// MetricsConfig enables the HTTP metrics endpoint when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// LogConfig selects verbosity ("error", "info", "verbose", "debug")
// and format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Known profile, actuator and log values.
var (
	Profiles   = []string{"shell", "relay"}
	Actuators  = []string{"log", "xdotool"}
	LogLevels  = []string{"error", "info", "verbose", "debug"}
	LogFormats = []string{"text", "json"}
)

// Secret returns the decoded shared secret.
func (c *Config) Secret() (string, error) {
	if c.Security.Password == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.Security.Password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kaerrors.ErrSecretUndecodable, err)
	}
	return string(raw), nil
}

// EncodeSecret returns the form of secret stored in configuration.
func EncodeSecret(secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(secret))
}

// Tree builds the command tree from Commands.
func (c *Config) Tree() (*command.Tree, error) {
	return command.Build(c.Commands)
}

// Verbosity maps Log.Level onto the logger's 0..3 scale.
func (c *Config) Verbosity() int {
	if i := slices.Index(LogLevels, strings.ToLower(c.Log.Level)); i >= 0 {
		return i
	}
	return 1
}

// SetVerbosity stores v (clamped to 0..3) as a level name.
func (c *Config) SetVerbosity(v int) {
	v = max(0, min(v, len(LogLevels)-1))
	c.Log.Level = LogLevels[v]
}

// ListenAddr returns the host:port to bind.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Listen.Address, strconv.Itoa(c.Listen.Port))
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if c.Connect != "" {
		return nil
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return &kaerrors.ConfigError{
			Field:   "port",
			Value:   c.Listen.Port,
			Message: "port out of range 1-65535",
		}
	}
	if c.Listen.Backlog < 1 {
		return &kaerrors.ConfigError{
			Field:   "backlog",
			Value:   c.Listen.Backlog,
			Message: "at least one live session must be allowed",
		}
	}
	if c.Security.TimeoutInterval < 1 {
		return &kaerrors.ConfigError{
			Field:   "timeout",
			Value:   c.Security.TimeoutInterval,
			Message: "idle timeout must be at least one minute",
		}
	}
	if !slices.Contains(Profiles, c.Profile) {
		return &kaerrors.ConfigError{
			Field:   "profile",
			Value:   c.Profile,
			Message: "unknown profile",
			Hint:    "use one of: " + strings.Join(Profiles, ", "),
		}
	}
	if !slices.Contains(Actuators, c.Actuator) {
		return &kaerrors.ConfigError{
			Field:   "actuator",
			Value:   c.Actuator,
			Message: "unknown actuator",
			Hint:    "use one of: " + strings.Join(Actuators, ", "),
		}
	}
	if !slices.Contains(LogLevels, strings.ToLower(c.Log.Level)) {
		return &kaerrors.ConfigError{
			Field:   "log-level",
			Value:   c.Log.Level,
			Message: "unknown log level",
			Hint:    "use one of: " + strings.Join(LogLevels, ", "),
		}
	}
	if !slices.Contains(LogFormats, c.Log.Format) {
		return &kaerrors.ConfigError{
			Field:   "log-format",
			Value:   c.Log.Format,
			Message: "unknown log format",
			Hint:    "use text or json",
		}
	}

	secret, err := c.Secret()
	if err != nil {
		return &kaerrors.ConfigError{
			Field:   "secret",
			Message: err.Error(),
			Hint:    "generate one with: keyagent --encode-secret",
		}
	}
	if c.Profile == "shell" && secret == "" {
		return &kaerrors.ConfigError{
			Field:   "secret",
			Message: "the shell profile requires a shared secret",
			Hint:    "set security.password or KEYAGENT_SECRET to the output of keyagent --encode-secret",
		}
	}

	if _, err := c.Tree(); err != nil {
		return &kaerrors.ConfigError{
			Field:   "commands",
			Message: err.Error(),
			Hint:    "sibling command names must be unique, non-empty and free of spaces",
		}
	}
	return nil
}
