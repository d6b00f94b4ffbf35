// Package config handles finagent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/finagent/config.yaml, /etc/finagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "finagent", "config.yaml"))
	}

	paths = append(paths, "/etc/finagent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all finagent configuration.
type Config struct {
	LLM      LLMConfig    `yaml:"llm"`
	Market   MarketConfig `yaml:"market"`
	Email    SMTPConfig   `yaml:"email"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
	Alerts   AlertsConfig `yaml:"alerts"`
	Listen   ListenConfig `yaml:"listen"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
}

// LLMConfig defines the chat model endpoint. Any OpenAI-compatible
// provider works; BaseURL selects it (api.deepseek.com, api.openai.com,
// openrouter.ai, or a local server).
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// MarketConfig defines the market data provider connection.
type MarketConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// RatePerMinute caps outbound API calls. Zero disables limiting.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// SMTPConfig defines outbound mail settings for alert notifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// StartTLS upgrades a plain connection (port 587). When false the
	// connection is implicit TLS from the start (port 465).
	StartTLS bool `yaml:"starttls"`
	// DefaultTo receives alert mail when a task has no notify target.
	DefaultTo string `yaml:"default_to"`
}

// Configured reports whether enough fields are set to send mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// MQTTConfig defines the optional MQTT notification channel.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// AlertsConfig defines the price-alert scheduler settings.
type AlertsConfig struct {
	// TasksFile is the JSON task store path. Defaults to
	// <data_dir>/alerts.json.
	TasksFile string `yaml:"tasks_file"`
	// HeartbeatFile is the worker liveness file. Defaults to
	// <data_dir>/scheduler.pid.
	HeartbeatFile string `yaml:"heartbeat_file"`
	// IntervalSec is the seconds between alert checks (default 60).
	IntervalSec int `yaml:"interval_sec"`
}

// ListenConfig defines the events API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration back to a YAML file. Used by the
// interactive reconfiguration tools so settings survive restarts.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.7,
		},
		Email:   SMTPConfig{Port: 465},
		Alerts:  AlertsConfig{IntervalSec: 60},
		Listen:  ListenConfig{Port: 8080},
		DataDir: "data",
	}
}

// applyDefaults fills derived paths that depend on other fields.
func (c *Config) applyDefaults() {
	if c.Alerts.TasksFile == "" {
		c.Alerts.TasksFile = filepath.Join(c.DataDir, "alerts.json")
	}
	if c.Alerts.HeartbeatFile == "" {
		c.Alerts.HeartbeatFile = filepath.Join(c.DataDir, "scheduler.pid")
	}
	if c.Alerts.IntervalSec <= 0 {
		c.Alerts.IntervalSec = 60
	}
	if c.Email.Port == 0 {
		c.Email.Port = 465
	}
}

// PortfolioDB returns the portfolio database path under the data dir.
func (c *Config) PortfolioDB() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// ProfileFile returns the user profile path under the data dir.
func (c *Config) ProfileFile() string {
	return filepath.Join(c.DataDir, "profile.json")
}

// SessionsDir returns the saved-session directory under the data dir.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}
