// Package config loads YAML configuration for a maestro deployment:
// conductor defaults, registry heartbeat tuning, termination thresholds,
// delegation timeouts, and logging. Durations are written as Go duration
// strings ("30s", "2m").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete deployment configuration.
type Config struct {
	Conductor   ConductorConfig   `yaml:"conductor"`
	Registry    RegistryConfig    `yaml:"registry"`
	Termination TerminationConfig `yaml:"termination"`
	Delegation  DelegationConfig  `yaml:"delegation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ConductorConfig tunes the task dispatcher.
type ConductorConfig struct {
	// DefaultInstrument handles requests that do not name one.
	DefaultInstrument string `yaml:"default_instrument"`
	// MaxSpawnDepth bounds recursive spawn chains.
	MaxSpawnDepth int `yaml:"max_spawn_depth"`
}

// RegistryConfig tunes the node registry.
type RegistryConfig struct {
	// HeartbeatTimeout is how stale a node's heartbeat may be before it is
	// considered offline.
	HeartbeatTimeout string `yaml:"heartbeat_timeout"`
}

// TerminationConfig tunes the iterative-loop termination evaluator.
type TerminationConfig struct {
	ConfidenceThreshold      float64 `yaml:"confidence_threshold"`
	ConfidenceDeltaThreshold float64 `yaml:"confidence_delta_threshold"`
	MaxIterations            int     `yaml:"max_iterations"`
}

// DelegationConfig tunes the cross-node delegation client.
type DelegationConfig struct {
	Timeout string `yaml:"timeout"`
}

// LoggingConfig tunes structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

// Load reads and validates a configuration file. Missing fields are filled
// with defaults; the MAESTRO_LOG_LEVEL environment variable overrides the
// configured log level.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.overrideFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads a configuration file, falling back to Default on any
// error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Conductor.MaxSpawnDepth == 0 {
		c.Conductor.MaxSpawnDepth = 3
	}
	if c.Registry.HeartbeatTimeout == "" {
		c.Registry.HeartbeatTimeout = "90s"
	}
	if c.Termination.ConfidenceThreshold == 0 {
		c.Termination.ConfidenceThreshold = 0.8
	}
	if c.Termination.ConfidenceDeltaThreshold == 0 {
		c.Termination.ConfidenceDeltaThreshold = 0.05
	}
	if c.Termination.MaxIterations == 0 {
		c.Termination.MaxIterations = 5
	}
	if c.Delegation.Timeout == "" {
		c.Delegation.Timeout = "30s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) overrideFromEnv() {
	if level := os.Getenv("MAESTRO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) validate() error {
	if c.Conductor.MaxSpawnDepth < 0 {
		return fmt.Errorf("conductor.max_spawn_depth must not be negative, got %d", c.Conductor.MaxSpawnDepth)
	}
	if _, err := time.ParseDuration(c.Registry.HeartbeatTimeout); err != nil {
		return fmt.Errorf("registry.heartbeat_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Delegation.Timeout); err != nil {
		return fmt.Errorf("delegation.timeout: %w", err)
	}
	if c.Termination.ConfidenceThreshold < 0 || c.Termination.ConfidenceThreshold > 1 {
		return fmt.Errorf("termination.confidence_threshold must be in [0,1], got %v", c.Termination.ConfidenceThreshold)
	}
	if c.Termination.ConfidenceDeltaThreshold < 0 || c.Termination.ConfidenceDeltaThreshold > 1 {
		return fmt.Errorf("termination.confidence_delta_threshold must be in [0,1], got %v", c.Termination.ConfidenceDeltaThreshold)
	}
	if c.Termination.MaxIterations < 1 {
		return fmt.Errorf("termination.max_iterations must be at least 1, got %d", c.Termination.MaxIterations)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// HeartbeatTimeout returns the parsed registry heartbeat timeout.
func (c *Config) HeartbeatTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Registry.HeartbeatTimeout)
	return d
}

// DelegationTimeout returns the parsed delegation timeout.
func (c *Config) DelegationTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Delegation.Timeout)
	return d
}
