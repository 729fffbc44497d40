package core

import (
	"fmt"

	"keyagent/config"
	"keyagent/internal/actuator"
	"keyagent/internal/broadcast"
	"keyagent/internal/capability"
	"keyagent/internal/engine"
	"keyagent/internal/metrics"
	"keyagent/internal/retry"
	"keyagent/internal/session"
	"keyagent/internal/transport"
	"keyagent/util"
)

// Version is reported in the welcome banner.  Set by cmd.
var Version = "dev"

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Connect != "" {
		return buildConnect(cfg, logger), nil
	}
	return buildServe(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, logger *util.Logger) Mode {
	return &ConnectMode{
		Dialer: &transport.RetryDialer{
			Dialer:  &transport.TCPDialer{Timeout: cfg.ConnTimeout},
			Backoff: retry.DialBackoff(),
			Logger:  logger,
		},
		Address: cfg.Connect,
		Logger:  logger,
	}
}

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	tree, err := cfg.Tree()
	if err != nil {
		return nil, err
	}
	secret, err := cfg.Secret()
	if err != nil {
		return nil, err
	}
	act, err := actuator.New(cfg.Actuator, logger)
	if err != nil {
		return nil, fmt.Errorf("actuator: %w", err)
	}

	state := broadcast.New()
	m := metrics.New()
	registry := session.NewRegistry()

	hooks, err := capability.New(cfg.Profile, capability.Options{
		Tree:     tree,
		Secret:   secret,
		Actuator: act,
		State:    state,
		Registry: registry,
		Metrics:  m,
		Timeout:  cfg.Security.TimeoutInterval,
		Settle:   cfg.Settle,
		Version:  Version,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.New(hooks, state, logger)
	eng.IdleTick = cfg.IdleTick
	eng.Metrics = m
	eng.Registry = registry

	logger.Verbose("profile %s, actuator %s, %d commands", cfg.Profile, cfg.Actuator, tree.Len())

	return &ServeMode{
		Acceptor: &Acceptor{
			Host:    cfg.Listen.Address,
			Engine:  eng,
			State:   state,
			Logger:  logger,
			Metrics: m,
		},
		Port:        cfg.Listen.Port,
		Backlog:     cfg.Listen.Backlog,
		MetricsAddr: cfg.Metrics.Address,
		GracePeriod: cfg.GracePeriod,
		State:       state,
		Metrics:     m,
		Logger:      logger,
	}, nil
}
