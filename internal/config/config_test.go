package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "echo", cfg.Kernel.Name)
	assert.Equal(t, "Echo", cfg.Kernel.DisplayName)
	assert.Equal(t, float64(0), cfg.Kernel.StreamRateLimit)
	assert.Equal(t, 128, cfg.Kernel.CompletionCacheSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.NoError(t, m.Validate())
}

func TestValidate(t *testing.T) {
	valid := Config{
		Kernel:  KernelConfig{Name: "echo", StreamRateBurst: 100, CompletionCacheSize: 128},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing kernel name", func(c *Config) { c.Kernel.Name = "" }, "kernel name is required"},
		{"negative rate limit", func(c *Config) { c.Kernel.StreamRateLimit = -1 }, "invalid stream rate limit"},
		{"negative cache size", func(c *Config) { c.Kernel.CompletionCacheSize = -1 }, "invalid completion cache size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"upper case level accepted", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
		{"json format accepted", func(c *Config) { c.Logging.Format = "json" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			m := &Manager{config: &cfg}
			err := m.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
