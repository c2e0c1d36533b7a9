// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":47619", cfg.Server.ControlAddr)
	assert.True(t, cfg.Server.HealthEnabled)
	assert.Equal(t, 2, cfg.Notifier.Workers)
	assert.Equal(t, 5*time.Second, cfg.Notifier.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Otel.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty control addr",
			modify: func(c *Config) {
				c.Server.ControlAddr = ""
			},
			wantErr: true,
		},
		{
			name: "health enabled without addr",
			modify: func(c *Config) {
				c.Server.HealthAddr = ""
			},
			wantErr: true,
		},
		{
			name: "health disabled without addr",
			modify: func(c *Config) {
				c.Server.HealthEnabled = false
				c.Server.HealthAddr = ""
			},
			wantErr: false,
		},
		{
			name: "zero notifier workers",
			modify: func(c *Config) {
				c.Notifier.Workers = 0
			},
			wantErr: true,
		},
		{
			name: "zero notifier queue",
			modify: func(c *Config) {
				c.Notifier.QueueSize = 0
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "otel enabled without endpoint",
			modify: func(c *Config) {
				c.Otel.Enabled = true
				c.Otel.Endpoint = ""
			},
			wantErr: true,
		},
		{
			name: "sample rate out of range",
			modify: func(c *Config) {
				c.Otel.Enabled = true
				c.Otel.TraceSampleRate = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "Load of a missing file should fall back to defaults")
	assert.Equal(t, ":47619", cfg.Server.ControlAddr)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	cfg := Default()
	cfg.Server.ControlAddr = ":50000"
	cfg.Notifier.URL = "http://orchestrator:9000"
	cfg.Log.Format = "json"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":50000", loaded.Server.ControlAddr)
	assert.Equal(t, "http://orchestrator:9000", loaded.Notifier.URL)
	assert.Equal(t, "json", loaded.Log.Format)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("AGENT_CONTROL_ADDR", ":51000")
	t.Setenv("AGENT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":51000", cfg.Server.ControlAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err, "expected an error for malformed YAML")
}
