// =============================================================================
// a2abus default configuration
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/coordinator"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/agent/transport"
	"github.com/BaSui01/a2abus/internal/cache"
)

// DefaultConfig returns a configuration with no specialists.
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Bus:         bus.DefaultConfig(),
		Transport:   transport.DefaultConfig(),
		Router:      DefaultRouterConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Discovery:   DefaultDiscoveryConfig(),
		Redis:       cache.DefaultConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the HTTP defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		AgentName:       "orchestrator",
		AgentVersion:    "1.0.0",
	}
}

// DefaultRouterConfig returns the default weights and cues with "context" as
// the fallback agent.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		DefaultAgent: "context",
		Weights:      router.DefaultWeights(),
		Cues:         router.DefaultCues(),
	}
}

// DefaultDiscoveryConfig returns discovery disabled.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Enabled:         false,
		RefreshInterval: 5 * time.Minute,
		ProbeInterval:   30 * time.Second,
		CardCacheTTL:    10 * time.Minute,
	}
}

// DefaultLogConfig returns JSON logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns telemetry disabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "a2abus",
		SampleRate:   0.1,
		Insecure:     true,
	}
}
