package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyagent/config"
	"keyagent/internal/command"
	"keyagent/internal/transport"
	"keyagent/util"
)

func TestBuild_Serve(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.Password = config.EncodeSecret("s3cret")
	cfg.Listen.Backlog = 4

	mode, err := Build(cfg, util.NewNopLogger())
	require.NoError(t, err)

	serve, ok := mode.(*ServeMode)
	require.True(t, ok, "expected *ServeMode, got %T", mode)
	assert.Equal(t, 4, serve.Backlog)
	assert.Equal(t, cfg.Listen.Port, serve.Port)
	assert.Same(t, serve.State, serve.Acceptor.State)
	assert.Same(t, serve.State, serve.Acceptor.Engine.State)
	assert.Equal(t, cfg.IdleTick, serve.Acceptor.Engine.IdleTick)
}

func TestBuild_Connect(t *testing.T) {
	cfg := config.Defaults()
	cfg.Connect = "10.0.0.7:4000"

	mode, err := Build(cfg, util.NewNopLogger())
	require.NoError(t, err)

	conn, ok := mode.(*ConnectMode)
	require.True(t, ok, "expected *ConnectMode, got %T", mode)
	assert.Equal(t, "10.0.0.7:4000", conn.Address)
	assert.IsType(t, &transport.RetryDialer{}, conn.Dialer)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad actuator", func(c *config.Config) { c.Actuator = "robot" }},
		{"bad profile", func(c *config.Config) { c.Profile = "kiosk" }},
		{"bad secret", func(c *config.Config) { c.Security.Password = "%%" }},
		{"duplicate command", func(c *config.Config) {
			c.Commands = []command.Definition{{Name: "a"}, {Name: "A"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			_, err := Build(cfg, util.NewNopLogger())
			assert.Error(t, err)
		})
	}
}
