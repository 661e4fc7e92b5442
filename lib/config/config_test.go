// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()

	if cfg.ListenAddress != "127.0.0.1:37777" {
		t.Errorf("ListenAddress = %q, want 127.0.0.1:37777", cfg.ListenAddress)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.StallThreshold != 5*time.Minute {
		t.Errorf("StallThreshold = %s, want 5m", cfg.StallThreshold)
	}
	if cfg.EventWorker.BatchSize != 10 {
		t.Errorf("EventWorker.BatchSize = %d, want 10", cfg.EventWorker.BatchSize)
	}
	if cfg.SummaryWorker.BatchSize != 5 {
		t.Errorf("SummaryWorker.BatchSize = %d, want 5", cfg.SummaryWorker.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestLoadDaemonConfigRequiresEnvVar(t *testing.T) {
	orig := os.Getenv(daemonConfigEnvVar)
	defer os.Setenv(daemonConfigEnvVar, orig)
	os.Unsetenv(daemonConfigEnvVar)

	_, err := LoadDaemonConfig()
	if err == nil {
		t.Fatal("LoadDaemonConfig() with unset env var: want error, got nil")
	}
}

func TestLoadDaemonConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "daemon.yaml")

	configContent := `
listen_address: 127.0.0.1:9999
database_path: /custom/daemon.db
max_retries: 5
event_worker:
  tick_interval: 30s
  batch_size: 20
reaper:
  signature: my-agent-cli
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadDaemonConfigFile(configPath)
	if err != nil {
		t.Fatalf("LoadDaemonConfigFile: %v", err)
	}

	if cfg.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("ListenAddress = %q, want 127.0.0.1:9999", cfg.ListenAddress)
	}
	if cfg.DatabasePath != "/custom/daemon.db" {
		t.Errorf("DatabasePath = %q, want /custom/daemon.db", cfg.DatabasePath)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.EventWorker.TickInterval != 30*time.Second {
		t.Errorf("EventWorker.TickInterval = %s, want 30s", cfg.EventWorker.TickInterval)
	}
	if cfg.EventWorker.BatchSize != 20 {
		t.Errorf("EventWorker.BatchSize = %d, want 20", cfg.EventWorker.BatchSize)
	}
	// SummaryWorker was not specified, so the default should survive the merge.
	if cfg.SummaryWorker.BatchSize != 5 {
		t.Errorf("SummaryWorker.BatchSize = %d, want unmodified default 5", cfg.SummaryWorker.BatchSize)
	}
	if cfg.Reaper.Signature != "my-agent-cli" {
		t.Errorf("Reaper.Signature = %q, want my-agent-cli", cfg.Reaper.Signature)
	}
}

func TestLoadDaemonConfigFileExpandsVars(t *testing.T) {
	orig := os.Getenv("CLAUDE_MEM_HOME")
	defer os.Setenv("CLAUDE_MEM_HOME", orig)
	os.Setenv("CLAUDE_MEM_HOME", "/srv/claude-mem")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "daemon.yaml")

	configContent := `
database_path: ${CLAUDE_MEM_HOME}/daemon.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadDaemonConfigFile(configPath)
	if err != nil {
		t.Fatalf("LoadDaemonConfigFile: %v", err)
	}

	if cfg.DatabasePath != "/srv/claude-mem/daemon.db" {
		t.Errorf("DatabasePath = %q, want /srv/claude-mem/daemon.db", cfg.DatabasePath)
	}
}

func TestDaemonConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DaemonConfig)
		wantErr bool
	}{
		{name: "valid default", modify: func(c *DaemonConfig) {}, wantErr: false},
		{name: "empty listen address", modify: func(c *DaemonConfig) { c.ListenAddress = "" }, wantErr: true},
		{name: "empty database path", modify: func(c *DaemonConfig) { c.DatabasePath = "" }, wantErr: true},
		{name: "zero max retries", modify: func(c *DaemonConfig) { c.MaxRetries = 0 }, wantErr: true},
		{name: "zero event batch size", modify: func(c *DaemonConfig) { c.EventWorker.BatchSize = 0 }, wantErr: true},
		{name: "zero summary batch size", modify: func(c *DaemonConfig) { c.SummaryWorker.BatchSize = 0 }, wantErr: true},
		{name: "empty reaper signature", modify: func(c *DaemonConfig) { c.Reaper.Signature = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDaemonConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureDatabaseDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultDaemonConfig()
	cfg.DatabasePath = filepath.Join(tmpDir, "nested", "daemon.db")

	if err := cfg.EnsureDatabaseDir(); err != nil {
		t.Fatalf("EnsureDatabaseDir: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "nested"))
	if err != nil {
		t.Fatalf("stat nested dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("nested path is not a directory")
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		setenv   map[string]string
		expected string
	}{
		{
			name:     "present var",
			input:    "${CLAUDE_MEM_TEST_VAR}/x",
			setenv:   map[string]string{"CLAUDE_MEM_TEST_VAR": "/home/user"},
			expected: "/home/user/x",
		},
		{
			name:     "missing with default",
			input:    "${CLAUDE_MEM_TEST_MISSING:-default}",
			expected: "default",
		},
		{
			name:     "no variables",
			input:    "no variables here",
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.setenv {
				orig := os.Getenv(k)
				os.Setenv(k, v)
				defer os.Setenv(k, orig)
			}
			if got := expandVars(tt.input); got != tt.expected {
				t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
