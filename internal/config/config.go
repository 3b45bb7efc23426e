package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Parley hub configuration
type Config struct {
	// Hub server
	Hub HubConfig `json:"hub" mapstructure:"hub"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// HubConfig holds relay hub settings
type HubConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	IdleTimeout   time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
	// MetricsAddr serves /metrics and /healthz when non-empty.
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Host:          "127.0.0.1",
			Port:          7777,
			IdleTimeout:   60 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Addr returns the bind address as host:port
func (h HubConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
