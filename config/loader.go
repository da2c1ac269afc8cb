// =============================================================================
// a2abus configuration loader
// =============================================================================
// YAML file plus environment overrides.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("a2abus.yaml").
//	    WithEnvPrefix("A2ABUS").
//	    WithValidator((*config.Config).Validate).
//	    Load()
//
// Precedence: defaults → YAML file → environment.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/coordinator"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/agent/transport"
	"github.com/BaSui01/a2abus/internal/cache"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "A2ABUS"

// =============================================================================
// Configuration structure
// =============================================================================

// Config is the complete configuration of one bus node. It is loaded once
// at start and not mutated afterwards.
type Config struct {
	Server      ServerConfig       `yaml:"server" env:"SERVER"`
	Bus         bus.Config         `yaml:"bus" env:"BUS"`
	Transport   transport.Config   `yaml:"transport" env:"TRANSPORT"`
	Router      RouterConfig       `yaml:"router" env:"ROUTER"`
	Coordinator coordinator.Config `yaml:"coordinator" env:"COORDINATOR"`
	// Agents are the specialists known at start.
	Agents    []AgentConfig   `yaml:"agents"`
	Discovery DiscoveryConfig `yaml:"discovery" env:"DISCOVERY"`
	Redis     cache.Config    `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the orchestrator HTTP surface.
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Per-IP rate limit; 0 disables it.
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// AgentName is the name the orchestrator registers on its own bus.
	AgentName    string `yaml:"agent_name" env:"AGENT_NAME"`
	AgentVersion string `yaml:"agent_version" env:"AGENT_VERSION"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RouterConfig configures the intent router. Profiles come from Agents.
type RouterConfig struct {
	DefaultAgent string         `yaml:"default_agent" env:"DEFAULT_AGENT"`
	Weights      router.Weights `yaml:"weights" env:"WEIGHTS"`
	Cues         router.Cues    `yaml:"cues" env:"CUES"`
}

// AgentConfig describes one specialist.
type AgentConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	// Priority weight in (0, 1]; 0 means 1.
	Priority          float64           `yaml:"priority"`
	Capabilities      []string          `yaml:"capabilities"`
	PrimaryKeywords   []string          `yaml:"primary_keywords"`
	SecondaryKeywords []string          `yaml:"secondary_keywords"`
	DomainWords       []string          `yaml:"domain_words"`
	Transactional     bool              `yaml:"transactional"`
	Metadata          map[string]string `yaml:"metadata"`
}

// Profile converts the agent into a router profile.
func (a AgentConfig) Profile() router.Profile {
	return router.Profile{
		Name:              a.Name,
		PrimaryKeywords:   a.PrimaryKeywords,
		SecondaryKeywords: a.SecondaryKeywords,
		DomainWords:       a.DomainWords,
		Transactional:     a.Transactional,
		Priority:          a.Priority,
	}
}

// Info converts the agent into a bus registration.
func (a AgentConfig) Info() bus.AgentInfo {
	keywords := make([]string, 0, len(a.PrimaryKeywords)+len(a.SecondaryKeywords))
	keywords = append(keywords, a.PrimaryKeywords...)
	keywords = append(keywords, a.SecondaryKeywords...)
	return bus.AgentInfo{
		Address:      a.Address,
		Capabilities: a.Capabilities,
		Keywords:     keywords,
		Priority:     a.Priority,
		Metadata:     a.Metadata,
	}
}

// DiscoveryConfig configures agent-card discovery and health probing.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addresses are fetched for agent cards in addition to Agents.
	Addresses       []string      `yaml:"addresses" env:"ADDRESSES"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
	ProbeInterval   time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	CardCacheTTL    time.Duration `yaml:"card_cache_ttl" env:"CARD_CACHE_TTL"`
	// UseRedis shares fetched cards through Redis.
	UseRedis bool `yaml:"use_redis" env:"USE_REDIS"`
}

// LogConfig configures zap.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// RouterTable builds the intent router table from Router and Agents.
func (c *Config) RouterTable() router.Table {
	profiles := make([]router.Profile, 0, len(c.Agents))
	for _, a := range c.Agents {
		profiles = append(profiles, a.Profile())
	}
	return router.Table{
		Profiles:     profiles,
		DefaultAgent: c.Router.DefaultAgent,
		Weights:      c.Router.Weights,
		Cues:         c.Router.Cues,
	}
}

// =============================================================================
// Loader
// =============================================================================

// Loader builds a Config.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the A2ABUS environment prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load applies defaults, the YAML file, environment overrides and the
// validators in that order.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks struct fields with an env tag, recursing into
// nested structs with the joined prefix.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma separated
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults and environment overrides only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
