// Package cmd wires up the CLI flags and dispatches to the agent core.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"keyagent/config"
	"keyagent/internal/core"
	"keyagent/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X keyagent/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Swapped out by tests.
var (
	stdin  io.Reader = os.Stdin  //nolint:gochecknoglobals
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// Execute parses args and runs the selected keyagent mode.
func Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keyagent", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── configuration ────────────────────────────────────────────
	configPath := fs.StringP("config", "c", "", "YAML configuration file (default $KEYAGENT_CONFIG)")

	// ── listener ─────────────────────────────────────────────────
	address := fs.StringP("address", "a", config.DefaultAddress, "Address to listen on")
	port := fs.IntP("port", "p", config.DefaultPort, "Port to listen on")
	backlog := fs.IntP("backlog", "b", config.DefaultBacklog, "Maximum live sessions")
	timeout := fs.IntP("timeout", "t", config.DefaultTimeoutInterval, "Idle timeout in minutes")

	// ── behaviour ────────────────────────────────────────────────
	profile := fs.String("profile", config.DefaultProfile,
		"Session profile ("+strings.Join(config.Profiles, ", ")+")")
	actuatorKind := fs.String("actuator", config.DefaultActuator,
		"Keystroke actuator ("+strings.Join(config.Actuators, ", ")+")")
	metricsAddr := fs.String("metrics-addr", "", "Serve metrics over HTTP on this address")

	// ── client ───────────────────────────────────────────────────
	connect := fs.String("connect", "", "Connect to an agent at host:port instead of serving")

	// ── output ───────────────────────────────────────────────────
	verbose := fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
	logFormat := fs.String("log-format", config.DefaultLogFormat, "Log format (text, json)")

	// ── one-shot actions ─────────────────────────────────────────
	var encodeSecret, check, showVersion, showHelp bool
	fs.BoolVar(&encodeSecret, "encode-secret", false, "Read a secret and print its encoded form")
	fs.BoolVar(&check, "check", false, "Validate the configuration, print the command tree and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "keyagent %s\n", version)
		return nil
	}
	if encodeSecret {
		return runEncodeSecret()
	}

	// ── load: defaults < file < env < flags ──────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if fs.Changed("address") {
		cfg.Listen.Address = *address
	}
	if fs.Changed("port") {
		cfg.Listen.Port = *port
	}
	if fs.Changed("backlog") {
		cfg.Listen.Backlog = *backlog
	}
	if fs.Changed("timeout") {
		cfg.Security.TimeoutInterval = *timeout
	}
	if fs.Changed("profile") {
		cfg.Profile = *profile
	}
	if fs.Changed("actuator") {
		cfg.Actuator = *actuatorKind
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Address = *metricsAddr
	}
	if fs.Changed("verbose") {
		cfg.SetVerbosity(1 + *verbose)
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = *logFormat
	}
	cfg.Connect = *connect

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if check {
		return runCheck(cfg)
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbosity())
	if cfg.Log.Format == "json" {
		logger.SetJSON()
	}

	core.Version = version
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// runEncodeSecret reads one secret, without echo when stdin is a
// terminal, and prints the value to put in security.password.
func runEncodeSecret() error {
	var secret string
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stderr, "Secret: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = string(raw)
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return errors.New("empty secret")
	}
	fmt.Fprintln(stdout, config.EncodeSecret(secret))
	return nil
}

func runCheck(cfg *config.Config) error {
	tree, err := cfg.Tree()
	if err != nil {
		return err
	}
	if cfg.Connect == "" {
		fmt.Fprintf(stdout, "listen %s  profile %s  actuator %s  timeout %dm  backlog %d\n",
			cfg.ListenAddr(), cfg.Profile, cfg.Actuator,
			cfg.Security.TimeoutInterval, cfg.Listen.Backlog)
	}
	fmt.Fprintf(stdout, "%d commands\n", tree.Len())
	return tree.Render(stdout)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `keyagent – remote keystroke agent v%s

Accepts TCP sessions, authenticates them against a shared secret and
turns submitted lines into keystrokes on the local desktop.

Usage:
  keyagent [options]                          Serve
  keyagent --connect <host:port>              Interactive client
  keyagent --encode-secret                    Encode a secret for the config file
  keyagent --check [options]                  Validate and print the command tree

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  keyagent -c agent.yaml                      Serve with a config file
  keyagent -p 4000 --profile relay            Anonymous relay on port 4000
  keyagent --actuator xdotool -vv             Type into X11, debug logging
  keyagent --connect 10.0.0.7:4000            Drive a remote agent
  echo hunter2 | keyagent --encode-secret     Print the encoded secret
`)
}
