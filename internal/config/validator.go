package config

import (
	"fmt"
	"time"
)

// Validator validates configuration
type Validator struct{}

// NewValidator creates a new config validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the configuration for errors
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := v.validateHub(cfg.Hub); err != nil {
		return fmt.Errorf("hub config: %w", err)
	}
	if err := v.validateLogging(cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (v *Validator) validateHub(hub HubConfig) error {
	if hub.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if hub.Port < 0 || hub.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", hub.Port)
	}
	if hub.IdleTimeout < time.Second {
		return fmt.Errorf("idle_timeout must be at least 1s, got %s", hub.IdleTimeout)
	}
	if hub.SweepInterval < time.Second {
		return fmt.Errorf("sweep_interval must be at least 1s, got %s", hub.SweepInterval)
	}
	if hub.SweepInterval > hub.IdleTimeout {
		return fmt.Errorf("sweep_interval %s exceeds idle_timeout %s", hub.SweepInterval, hub.IdleTimeout)
	}
	return nil
}

func (v *Validator) validateLogging(logging LoggingConfig) error {
	switch logging.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal":
		return nil
	}
	return fmt.Errorf("invalid log level: %s", logging.Level)
}
