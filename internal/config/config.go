package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models disruptline.yml.
type Config struct {
	Outreach struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"outreach"`
	Executor struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"executor"`
	Collector CollectorConfig          `yaml:"collector"`
	Reasoning ReasoningConfig          `yaml:"reasoning"`
	Channels  map[string]ChannelConfig `yaml:"channels"`
	Regions   RegionsConfig            `yaml:"regions"`
	Webhooks  []WebhookConfig          `yaml:"webhooks"`
	Logging   LoggingConfig            `yaml:"logging"`
}

type CollectorConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ExpectedResponses int           `yaml:"expected_responses"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ReasoningConfig struct {
	// Endpoint is an OpenAI-compatible chat completions URL. Empty disables
	// the remote collaborator and every synthesis uses the local fallback.
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	APIKeyEnv         string        `yaml:"api_key_env"`
}

// APIKey reads the reasoning credential from the configured env var.
func (r ReasoningConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(r.APIKeyEnv))
}

type ChannelConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// IsEnabled treats an unset flag as enabled.
func (c ChannelConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type ContactConfig struct {
	Name        string `yaml:"name"`
	Phone       string `yaml:"phone"`
	WhatsApp    string `yaml:"whatsapp"`
	SMS         string `yaml:"sms"`
	Email       string `yaml:"email"`
	APIEndpoint string `yaml:"api_endpoint"`
}

type RegionsConfig struct {
	// Keywords maps an extra location keyword to a region name.
	Keywords map[string]string `yaml:"keywords"`
	// Contacts maps region -> role -> contact, overriding the built-in directory.
	Contacts map[string]map[string]ContactConfig `yaml:"contacts"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

var knownChannels = map[string]struct{}{
	"whatsapp": {}, "sms": {}, "email": {}, "phone": {}, "api": {},
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Outreach.Concurrency < 1 {
		return fmt.Errorf("config.outreach.concurrency must be >= 1")
	}
	if c.Executor.Concurrency < 1 {
		return fmt.Errorf("config.executor.concurrency must be >= 1")
	}
	if c.Collector.PollInterval <= 0 {
		return fmt.Errorf("config.collector.poll_interval must be positive")
	}
	if c.Collector.ExpectedResponses < 0 {
		return fmt.Errorf("config.collector.expected_responses must be >= 0")
	}
	if c.Collector.Timeout < 0 {
		return fmt.Errorf("config.collector.timeout must be >= 0")
	}
	if c.Reasoning.RequestsPerMinute < 0 {
		return fmt.Errorf("config.reasoning.requests_per_minute must be >= 0")
	}
	if c.Reasoning.Endpoint != "" && c.Reasoning.Model == "" {
		return fmt.Errorf("config.reasoning.model is required when an endpoint is set")
	}
	for name := range c.Channels {
		if _, ok := knownChannels[name]; !ok {
			return fmt.Errorf("config.channels has unknown channel %s", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "disruptline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with dl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func decode(data []byte) (*Config, error) {
	cfg := Config{}
	cfg.Outreach.Concurrency = 8
	cfg.Executor.Concurrency = 8
	cfg.Collector = CollectorConfig{PollInterval: 10 * time.Second, ExpectedResponses: 3, Timeout: 30 * time.Minute}
	cfg.Reasoning = ReasoningConfig{Timeout: 60 * time.Second, RequestsPerMinute: 30, APIKeyEnv: "DISRUPTLINE_LLM_API_KEY"}
	cfg.Logging = LoggingConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return &cfg, nil
}

const defaultTemplate = `outreach:
  concurrency: 8

executor:
  concurrency: 8

collector:
  poll_interval: 10s
  expected_responses: 3
  timeout: 30m

reasoning:
  # OpenAI-compatible chat completions endpoint; leave empty for local fallback only.
  endpoint: ""
  model: ""
  timeout: 60s
  requests_per_minute: 30
  api_key_env: DISRUPTLINE_LLM_API_KEY

channels:
  whatsapp: {enabled: true}
  sms: {enabled: true}
  email: {enabled: true}
  phone: {enabled: true}
  api: {enabled: true}

regions:
  keywords: {}
  contacts: {}

webhooks: []

logging:
  level: info
  file: ""
  max_size_mb: 100
  max_backups: 5
  max_age_days: 30
`
