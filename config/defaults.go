package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultAddress is the interface the agent listens on.
	DefaultAddress = "0.0.0.0"

	// DefaultPort is the agent's TCP port.
	DefaultPort = 4000

	// DefaultBacklog bounds concurrently live sessions.
	DefaultBacklog = 10

	// DefaultTimeoutInterval is the idle timeout in minutes.
	DefaultTimeoutInterval = 5

	// DefaultIdleTick is one idle poll period.
	DefaultIdleTick = 500 * time.Millisecond

	// DefaultSettle is the pause between injected keyboard steps.
	DefaultSettle = 500 * time.Millisecond

	// DefaultProfile and DefaultActuator select the hook set and the
	// host injector.
	DefaultProfile  = "shell"
	DefaultActuator = "log"

	// DefaultLogLevel and DefaultLogFormat configure the logger.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// DefaultConnTimeout is the client dial timeout.
	DefaultConnTimeout = 10 * time.Second

	// DefaultGracePeriod is how long shutdown waits for live sessions.
	DefaultGracePeriod = 5 * time.Second
)

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		Listen: ListenConfig{
			Address: DefaultAddress,
			Port:    DefaultPort,
			Backlog: DefaultBacklog,
		},
		Security: SecurityConfig{
			TimeoutInterval: DefaultTimeoutInterval,
		},
		Profile:  DefaultProfile,
		Actuator: DefaultActuator,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		IdleTick:    DefaultIdleTick,
		Settle:      DefaultSettle,
		ConnTimeout: DefaultConnTimeout,
		GracePeriod: DefaultGracePeriod,
	}
}
