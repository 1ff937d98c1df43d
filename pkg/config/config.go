// Package config loads the orchestration core configuration from YAML
// with environment overrides and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// HTTPPort is the port the transport server listens on.
	HTTPPort int `yaml:"http_port"`

	Session     SessionConfig     `yaml:"session"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	AgentClient AgentClientConfig `yaml:"agent_client"`
	Registry    RegistryConfig    `yaml:"registry"`
	Policy      PolicyConfig      `yaml:"policy"`
	Planner     PlannerConfig     `yaml:"planner"`
	Redis       RedisConfig       `yaml:"redis"`
	Audit       AuditConfig       `yaml:"audit"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	TTLSeconds         int `yaml:"ttl_seconds"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
	EventQueueCapacity int `yaml:"event_queue_capacity"`
	SweepSeconds       int `yaml:"sweep_seconds"`
}

// SchedulerConfig configures pattern execution limits.
type SchedulerConfig struct {
	ParallelMaxInFlight   int `yaml:"parallel_max_in_flight"`
	ProcessMaxInFlight    int `yaml:"process_max_in_flight"`
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	QueueOverflow         int `yaml:"queue_overflow"`
}

// AgentClientConfig configures outbound agent invocation.
type AgentClientConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	BackoffBaseMS int `yaml:"backoff_base_ms"`
	BackoffCapMS  int `yaml:"backoff_cap_ms"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	HeartbeatTimeoutSeconds int `yaml:"heartbeat_timeout_seconds"`
}

// PolicyConfig configures the policy engine.
type PolicyConfig struct {
	// Path is the policy document file. Empty means built-in defaults.
	Path string `yaml:"path"`
	// Default is "deny" or "allow" when no rule matches.
	Default string `yaml:"default"`
	// ReloadOnSignal reloads the document on SIGHUP (default true).
	ReloadOnSignal *bool `yaml:"reload_on_signal"`
}

// ReloadsOnSignal resolves the ReloadOnSignal pointer with its default.
func (p PolicyConfig) ReloadsOnSignal() bool {
	if p.ReloadOnSignal == nil {
		return true
	}
	return *p.ReloadOnSignal
}

// PlannerConfig selects the LLM planner used for agent selection.
type PlannerConfig struct {
	// Provider is "mock", "openai", "gemini", or "bedrock".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// RedisConfig configures the optional shared backend. An empty Addr
// selects the in-memory backends.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// MaxEntries caps the in-memory trail.
	MaxEntries int `yaml:"max_entries"`
	// FirestoreProject enables the durable firestore sink when set.
	FirestoreProject    string `yaml:"firestore_project"`
	FirestoreCollection string `yaml:"firestore_collection"`
}

// Load reads configuration from a YAML file, applies defaults, then
// environment overrides. A missing path yields pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every option at its default.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 3600
	}
	if c.Session.IdleTimeoutSeconds == 0 {
		c.Session.IdleTimeoutSeconds = 1800
	}
	if c.Session.EventQueueCapacity == 0 {
		c.Session.EventQueueCapacity = 256
	}
	if c.Session.SweepSeconds == 0 {
		c.Session.SweepSeconds = 60
	}
	if c.Scheduler.ParallelMaxInFlight == 0 {
		c.Scheduler.ParallelMaxInFlight = 16
	}
	if c.Scheduler.ProcessMaxInFlight == 0 {
		c.Scheduler.ProcessMaxInFlight = 256
	}
	if c.Scheduler.DefaultTimeoutSeconds == 0 {
		c.Scheduler.DefaultTimeoutSeconds = 60
	}
	if c.Scheduler.QueueOverflow == 0 {
		c.Scheduler.QueueOverflow = 1024
	}
	if c.AgentClient.MaxRetries == 0 {
		c.AgentClient.MaxRetries = 3
	}
	if c.AgentClient.BackoffBaseMS == 0 {
		c.AgentClient.BackoffBaseMS = 250
	}
	if c.AgentClient.BackoffCapMS == 0 {
		c.AgentClient.BackoffCapMS = 4000
	}
	if c.Registry.HeartbeatTimeoutSeconds == 0 {
		c.Registry.HeartbeatTimeoutSeconds = 30
	}
	if c.Policy.Default == "" {
		c.Policy.Default = "deny"
	}
	if c.Planner.Provider == "" {
		c.Planner.Provider = "mock"
	}
	if c.Audit.MaxEntries == 0 {
		c.Audit.MaxEntries = 10000
	}
	if c.Audit.FirestoreCollection == "" {
		c.Audit.FirestoreCollection = "audit_entries"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTCORE_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = p
		}
	}
	if v := os.Getenv("AGENTCORE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("AGENTCORE_POLICY_PATH"); v != "" {
		c.Policy.Path = v
	}
	if c.Planner.APIKey == "" {
		switch c.Planner.Provider {
		case "openai":
			c.Planner.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.Planner.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Policy.Default != "deny" && c.Policy.Default != "allow" {
		return fmt.Errorf("policy.default must be \"deny\" or \"allow\", got %q", c.Policy.Default)
	}
	switch c.Planner.Provider {
	case "mock", "openai", "gemini", "bedrock":
	default:
		return fmt.Errorf("unknown planner provider: %s", c.Planner.Provider)
	}
	if c.Session.EventQueueCapacity < 1 {
		return fmt.Errorf("session.event_queue_capacity must be positive")
	}
	return nil
}

// SessionTTL returns the absolute session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutSeconds) * time.Second
}

// HeartbeatTimeout returns the registry heartbeat timeout as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Registry.HeartbeatTimeoutSeconds) * time.Second
}

// DefaultTimeout returns the scheduler's default invocation timeout.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Scheduler.DefaultTimeoutSeconds) * time.Second
}
