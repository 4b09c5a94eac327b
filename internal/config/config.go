// ABOUTME: Configuration loading and parsing for bellhop
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bellhop-chat/bellhop/internal/channels"
)

// Config represents the complete bellhop configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Channels ChannelsConfig `yaml:"channels"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP gateway address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig selects and configures the conversation store
type DatabaseConfig struct {
	// Driver is "sqlite", "redis" or "memory"
	Driver string `yaml:"driver"`
	// Path is the SQLite database file (sqlite driver)
	Path string `yaml:"path"`
	// Addr is the Redis host:port (redis driver)
	Addr string `yaml:"addr"`
}

// EngineConfig holds conversation engine tuning
type EngineConfig struct {
	IdleTimeout   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	MaxInvalidInputs int `yaml:"max_invalid_inputs"`
	MaxPartySize     int `yaml:"max_party_size"`

	// Raw string values for YAML unmarshaling
	IdleTimeoutRaw   string `yaml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// ChannelsConfig holds configuration for all channel integrations
type ChannelsConfig struct {
	Matrix  MatrixChannelConfig  `yaml:"matrix"`
	Discord DiscordChannelConfig `yaml:"discord"`
	Slack   SlackChannelConfig   `yaml:"slack"`
}

// MatrixChannelConfig holds Matrix integration configuration
type MatrixChannelConfig struct {
	Enabled               bool `yaml:"enabled"`
	channels.MatrixConfig `yaml:",inline"`
}

// DiscordChannelConfig holds Discord integration configuration
type DiscordChannelConfig struct {
	Enabled                bool `yaml:"enabled"`
	channels.DiscordConfig `yaml:",inline"`
}

// SlackChannelConfig holds Slack integration configuration
type SlackChannelConfig struct {
	Enabled              bool `yaml:"enabled"`
	channels.SlackConfig `yaml:",inline"`
}

// SinksConfig holds artifact handoff configuration
type SinksConfig struct {
	// WebhookURL receives terminal artifacts as JSON POSTs. Empty logs them.
	WebhookURL string `yaml:"webhook_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "bellhop.db"},
		Engine: EngineConfig{
			IdleTimeout:      24 * time.Hour,
			SweepInterval:    10 * time.Minute,
			MaxInvalidInputs: 3,
			MaxPartySize:     10,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "redis":
		if c.Database.Addr == "" {
			return fmt.Errorf("database.addr is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, redis or memory, got %q", c.Database.Driver)
	}

	if c.Engine.MaxInvalidInputs < 0 {
		return fmt.Errorf("engine.max_invalid_inputs must not be negative")
	}
	if c.Engine.MaxPartySize < 1 {
		return fmt.Errorf("engine.max_party_size must be at least 1")
	}

	if c.Channels.Matrix.Enabled {
		if c.Channels.Matrix.Homeserver == "" || c.Channels.Matrix.UserID == "" || c.Channels.Matrix.AccessToken == "" {
			return fmt.Errorf("channels.matrix requires homeserver, user_id and access_token when enabled")
		}
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("channels.discord.token is required when discord is enabled")
	}
	if c.Channels.Slack.Enabled && c.Channels.Slack.BotToken == "" {
		return fmt.Errorf("channels.slack.bot_token is required when slack is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.IdleTimeoutRaw != "" {
		cfg.Engine.IdleTimeout, err = time.ParseDuration(cfg.Engine.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Engine.IdleTimeoutRaw, err)
		}
	}

	if cfg.Engine.SweepIntervalRaw != "" {
		cfg.Engine.SweepInterval, err = time.ParseDuration(cfg.Engine.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Engine.SweepIntervalRaw, err)
		}
	}

	return nil
}
