package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Agents = []AgentConfig{
		{Name: "flight", Address: "http://flight:8081", Priority: 1},
		{Name: "context", Address: "local://context"},
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "defaults without agents", mutate: func(c *Config) { c.Agents = nil }},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "missing agent name", mutate: func(c *Config) { c.Server.AgentName = "" }, wantErr: "agent_name"},
		{name: "queue size", mutate: func(c *Config) { c.Bus.QueueSize = 0 }, wantErr: "queue_size"},
		{name: "history size", mutate: func(c *Config) { c.Bus.HistorySize = -1 }, wantErr: "history_size"},
		{name: "ttl", mutate: func(c *Config) { c.Bus.DefaultTTL = 0 }, wantErr: "default_ttl"},
		{name: "transport timeout", mutate: func(c *Config) { c.Transport.ProbeTimeout = 0 }, wantErr: "transport timeouts"},
		{name: "coordinator timeout", mutate: func(c *Config) { c.Coordinator.Timeout = 0 }, wantErr: "coordinator.timeout"},
		{name: "negative weight", mutate: func(c *Config) { c.Router.Weights.ActionBonus = -1 }, wantErr: "action_bonus"},
		{name: "fallback confidence", mutate: func(c *Config) { c.Router.Weights.FallbackConfidence = 1.5 }, wantErr: "fallback_confidence"},
		{name: "duplicate agent", mutate: func(c *Config) { c.Agents[1].Name = "flight"; c.Router.DefaultAgent = "flight" }, wantErr: "duplicate name"},
		{name: "empty agent name", mutate: func(c *Config) { c.Agents[0].Name = "" }, wantErr: "name is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.Agents[0].Address = "ftp://x" }, wantErr: "unsupported scheme"},
		{name: "missing host", mutate: func(c *Config) { c.Agents[0].Address = "http://" }, wantErr: "missing host"},
		{name: "priority", mutate: func(c *Config) { c.Agents[0].Priority = 2 }, wantErr: "priority"},
		{name: "unknown default agent", mutate: func(c *Config) { c.Router.DefaultAgent = "hotel" }, wantErr: "default_agent"},
		{name: "discovery address", mutate: func(c *Config) { c.Discovery.Addresses = []string{"nope"} }, wantErr: "discovery address"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log format"},
		{name: "sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HTTPPort = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "invalid HTTP port")
		assert.Contains(t, err.Error(), "invalid log level")
	}
}
