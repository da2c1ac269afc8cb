package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/a2abus/agent/transport"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if strings.TrimSpace(c.Server.AgentName) == "" {
		errs = append(errs, "server.agent_name is required")
	}

	if c.Bus.QueueSize <= 0 {
		errs = append(errs, "bus.queue_size must be positive")
	}
	if c.Bus.HistorySize <= 0 {
		errs = append(errs, "bus.history_size must be positive")
	}
	if c.Bus.DefaultTTL <= 0 {
		errs = append(errs, "bus.default_ttl must be positive")
	}
	if c.Transport.DeliveryTimeout <= 0 || c.Transport.ProbeTimeout <= 0 {
		errs = append(errs, "transport timeouts must be positive")
	}
	if c.Coordinator.Timeout <= 0 {
		errs = append(errs, "coordinator.timeout must be positive")
	}

	w := c.Router.Weights
	for name, v := range map[string]float64{
		"primary": w.Primary, "secondary": w.Secondary,
		"question_bonus": w.QuestionBonus, "action_bonus": w.ActionBonus,
		"comparison_bonus": w.ComparisonBonus, "continuity_bonus": w.ContinuityBonus,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("router.weights.%s must not be negative", name))
		}
	}
	if w.FallbackConfidence < 0 || w.FallbackConfidence > 1 {
		errs = append(errs, "router.weights.fallback_confidence must be between 0 and 1")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if err := validateAddress(a.Address); err != nil {
			errs = append(errs, fmt.Sprintf("agents[%d] %s: %v", i, a.Name, err))
		}
		if a.Priority < 0 || a.Priority > 1 {
			errs = append(errs, fmt.Sprintf("agents[%d] %s: priority must be in (0, 1]", i, a.Name))
		}
	}
	if len(c.Agents) > 0 && !seen[c.Router.DefaultAgent] {
		errs = append(errs, fmt.Sprintf("router.default_agent %q is not a configured agent", c.Router.DefaultAgent))
	}

	for _, addr := range c.Discovery.Addresses {
		if err := validateAddress(addr); err != nil {
			errs = append(errs, fmt.Sprintf("discovery address %q: %v", addr, err))
		}
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}
	switch transport.Scheme(addr) {
	case transport.SchemeHTTP, transport.SchemeHTTPS:
		if u.Host == "" {
			return fmt.Errorf("missing host")
		}
	case transport.SchemeLocal:
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
