// Package config loads kernel runtime options with Viper: defaults, an
// optional config file, and JUPYTER_KERNEL_* environment variables. The
// connection file is not handled here; it is a wire artifact with an exact
// format and is parsed by the connection package.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full kernel runtime configuration.
type Config struct {
	Kernel  KernelConfig  `mapstructure:"kernel"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// KernelConfig tunes the protocol engine.
type KernelConfig struct {
	Name                string  `mapstructure:"name"`
	DisplayName         string  `mapstructure:"display_name"`
	StreamRateLimit     float64 `mapstructure:"stream_rate_limit"`
	StreamRateBurst     int     `mapstructure:"stream_rate_burst"`
	CompletionCacheSize int     `mapstructure:"completion_cache_size"`
}

// LoggingConfig tunes structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and holds the configuration.
type Manager struct {
	config *Config
}

// NewManager loads configuration from defaults, file and environment.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("kernel")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/go-jupyter")

	viper.SetEnvPrefix("JUPYTER_KERNEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("kernel.name", "echo")
	viper.SetDefault("kernel.display_name", "Echo")
	viper.SetDefault("kernel.stream_rate_limit", 0)
	viper.SetDefault("kernel.stream_rate_burst", 100)
	viper.SetDefault("kernel.completion_cache_size", 128)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// GetConfig returns the loaded configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Validate checks the loaded configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Kernel.Name == "" {
		return fmt.Errorf("kernel name is required")
	}
	if config.Kernel.StreamRateLimit < 0 {
		return fmt.Errorf("invalid stream rate limit: %f", config.Kernel.StreamRateLimit)
	}
	if config.Kernel.CompletionCacheSize < 0 {
		return fmt.Errorf("invalid completion cache size: %d", config.Kernel.CompletionCacheSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}
	return nil
}
