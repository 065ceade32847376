// Package config provides configuration management for AppForge.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for AppForge.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DatabaseConfig holds conversation persistence configuration.
// An empty path selects the in-memory conversation store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AgentConfig holds model provider configuration.
type AgentConfig struct {
	APIKey         string `mapstructure:"apiKey"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"maxTokens"`
	RequestTimeout int    `mapstructure:"requestTimeout"` // in seconds
}

// WorkspaceConfig holds generated project workspace configuration.
type WorkspaceConfig struct {
	Root           string `mapstructure:"root"`           // directory holding one subdirectory per project
	BasePort       int    `mapstructure:"basePort"`       // first port handed to a running project
	StartupGraceMS int    `mapstructure:"startupGraceMs"` // fixed wait after spawning before declaring success
	InstallTimeout int    `mapstructure:"installTimeout"` // dependency install timeout, in seconds
	StopTimeout    int    `mapstructure:"stopTimeout"`    // bounded wait for process exit, in seconds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns the model request timeout as a time.Duration.
func (a *AgentConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// StartupGrace returns the post-spawn grace period as a time.Duration.
func (w *WorkspaceConfig) StartupGrace() time.Duration {
	return time.Duration(w.StartupGraceMS) * time.Millisecond
}

// InstallTimeoutDuration returns the install timeout as a time.Duration.
func (w *WorkspaceConfig) InstallTimeoutDuration() time.Duration {
	return time.Duration(w.InstallTimeout) * time.Second
}

// StopTimeoutDuration returns the process stop wait as a time.Duration.
func (w *WorkspaceConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(w.StopTimeout) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "appforge")
	v.SetDefault("nats.maxReconnects", 10)

	// Database defaults - empty path means in-memory conversations
	v.SetDefault("database.path", "")

	// Agent defaults
	v.SetDefault("agent.apiKey", "")
	v.SetDefault("agent.model", "claude-sonnet-4-20250514")
	v.SetDefault("agent.maxTokens", 8192)
	v.SetDefault("agent.requestTimeout", 120)

	// Workspace defaults
	v.SetDefault("workspace.root", "./projects")
	v.SetDefault("workspace.basePort", 3001)
	v.SetDefault("workspace.startupGraceMs", 1500)
	v.SetDefault("workspace.installTimeout", 180)
	v.SetDefault("workspace.stopTimeout", 5)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix APPFORGE_ with underscore-separated naming.
// Config file should be named config.yaml and placed in the current directory or /etc/appforge/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("APPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The provider credential is conventionally set via ANTHROPIC_API_KEY,
	// so bind it explicitly alongside the prefixed form.
	_ = v.BindEnv("agent.apiKey", "ANTHROPIC_API_KEY", "APPFORGE_AGENT_API_KEY")
	_ = v.BindEnv("agent.model", "APPFORGE_AGENT_MODEL")
	_ = v.BindEnv("workspace.root", "APPFORGE_WORKSPACE_ROOT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/appforge/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Agent.MaxTokens <= 0 {
		errs = append(errs, "agent.maxTokens must be positive")
	}
	if cfg.Agent.RequestTimeout <= 0 {
		errs = append(errs, "agent.requestTimeout must be positive")
	}

	if cfg.Workspace.Root == "" {
		errs = append(errs, "workspace.root is required")
	}
	if cfg.Workspace.BasePort <= 0 || cfg.Workspace.BasePort > 65535 {
		errs = append(errs, "workspace.basePort must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
