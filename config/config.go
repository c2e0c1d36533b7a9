// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config holds the agent configuration: YAML file overlaid
// with environment variables, validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the MQTT agent.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Notifier NotifierConfig `yaml:"notifier"`
	Log      LogConfig      `yaml:"log"`
	Otel     OtelConfig     `yaml:"otel"`
}

// ServerConfig holds the control and health listener configuration.
type ServerConfig struct {
	ControlAddr     string        `yaml:"control_addr" env:"AGENT_CONTROL_ADDR"`
	HealthAddr      string        `yaml:"health_addr" env:"AGENT_HEALTH_ADDR"`
	HealthEnabled   bool          `yaml:"health_enabled" env:"AGENT_HEALTH_ENABLED"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"AGENT_SHUTDOWN_TIMEOUT"`
}

// NotifierConfig holds the orchestrator-facing notifier configuration.
type NotifierConfig struct {
	URL             string        `yaml:"url" env:"AGENT_DISCOVERY_URL"`
	QueueSize       int           `yaml:"queue_size" env:"AGENT_NOTIFIER_QUEUE_SIZE"`
	Workers         int           `yaml:"workers" env:"AGENT_NOTIFIER_WORKERS"`
	Timeout         time.Duration `yaml:"timeout" env:"AGENT_NOTIFIER_TIMEOUT"`
	MaxAttempts     int           `yaml:"max_attempts" env:"AGENT_NOTIFIER_MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"AGENT_NOTIFIER_INITIAL_INTERVAL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"AGENT_NOTIFIER_SHUTDOWN_TIMEOUT"`

	// Circuit breaker settings.
	FailureThreshold int           `yaml:"failure_threshold" env:"AGENT_NOTIFIER_FAILURE_THRESHOLD"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env:"AGENT_NOTIFIER_RESET_TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" env:"AGENT_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"AGENT_LOG_FORMAT"` // text, json
}

// OtelConfig holds OpenTelemetry configuration.
type OtelConfig struct {
	Enabled         bool    `yaml:"enabled" env:"AGENT_OTEL_ENABLED"`
	Endpoint        string  `yaml:"endpoint" env:"AGENT_OTEL_ENDPOINT"`
	ServiceName     string  `yaml:"service_name" env:"AGENT_OTEL_SERVICE_NAME"`
	ServiceVersion  string  `yaml:"service_version" env:"AGENT_OTEL_SERVICE_VERSION"`
	TracesEnabled   bool    `yaml:"traces_enabled" env:"AGENT_OTEL_TRACES_ENABLED"`
	TraceSampleRate float64 `yaml:"trace_sample_rate" env:"AGENT_OTEL_TRACE_SAMPLE_RATE"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ControlAddr:     ":47619",
			HealthAddr:      ":8081",
			HealthEnabled:   true,
			ShutdownTimeout: 30 * time.Second,
		},
		Notifier: NotifierConfig{
			QueueSize:        1000,
			Workers:          2,
			Timeout:          5 * time.Second,
			MaxAttempts:      3,
			InitialInterval:  time.Second,
			ShutdownTimeout:  10 * time.Second,
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Otel: OtelConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "mqtt-agent",
			ServiceVersion:  "1.0.0",
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
		},
	}
}

// Load loads configuration from a YAML file, then overlays environment
// variables. If the file doesn't exist, defaults are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.ControlAddr == "" {
		return fmt.Errorf("server.control_addr cannot be empty")
	}
	if c.Server.HealthEnabled && c.Server.HealthAddr == "" {
		return fmt.Errorf("server.health_addr required when health is enabled")
	}
	if c.Server.ShutdownTimeout < time.Second {
		return fmt.Errorf("server.shutdown_timeout must be at least 1 second")
	}

	if c.Notifier.QueueSize < 1 {
		return fmt.Errorf("notifier.queue_size must be at least 1")
	}
	if c.Notifier.Workers < 1 {
		return fmt.Errorf("notifier.workers must be at least 1")
	}
	if c.Notifier.MaxAttempts < 1 {
		return fmt.Errorf("notifier.max_attempts must be at least 1")
	}
	if c.Notifier.FailureThreshold < 1 {
		return fmt.Errorf("notifier.failure_threshold must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	if c.Otel.Enabled {
		if c.Otel.Endpoint == "" {
			return fmt.Errorf("otel.endpoint required when otel is enabled")
		}
		if c.Otel.TraceSampleRate < 0 || c.Otel.TraceSampleRate > 1 {
			return fmt.Errorf("otel.trace_sample_rate must be in [0, 1]")
		}
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
