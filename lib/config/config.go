// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// daemonConfigEnvVar names the environment variable holding the path to
// the daemon config file. There is no fallback discovery.
const daemonConfigEnvVar = "CLAUDE_MEM_DAEMON_CONFIG"

// DaemonConfig tunes the queue, workers, and process reaper.
type DaemonConfig struct {
	// ListenAddress is the loopback address the HTTP intake server
	// binds to.
	ListenAddress string `yaml:"listen_address"`

	// DatabasePath is the SQLite file backing the durable queue and
	// session store.
	DatabasePath string `yaml:"database_path"`

	// MaxRetries bounds how many times a row may revert from
	// summarizing to pending before landing in failed.
	MaxRetries int `yaml:"max_retries"`

	// StallThreshold is how long a row may sit in summarizing before
	// the periodic release considers the claiming worker dead.
	StallThreshold time.Duration `yaml:"stall_threshold"`

	// RetentionWindow is how long a completed row is kept before
	// garbage collection.
	RetentionWindow time.Duration `yaml:"retention_window"`

	// ToolResponseTruncateBytes caps the size of a stored tool_response
	// payload before an explicit truncation suffix is appended.
	ToolResponseTruncateBytes int `yaml:"tool_response_truncate_bytes"`

	// LLMTimeout bounds a single call to the LLM client.
	LLMTimeout time.Duration `yaml:"llm_timeout"`

	// GracefulTerminationTimeout is how long [proctrack.Tracker.Terminate]
	// waits after a polite signal before escalating to a forceful one.
	GracefulTerminationTimeout time.Duration `yaml:"graceful_termination_timeout"`

	// EventWorker tunes the tool-event summarizer loop.
	EventWorker WorkerConfig `yaml:"event_worker"`

	// SummaryWorker tunes the session-summary summarizer loop.
	SummaryWorker WorkerConfig `yaml:"summary_worker"`

	// Reaper tunes the orphan process scanner.
	Reaper ReaperConfig `yaml:"reaper"`
}

// WorkerConfig tunes one summarizer worker's tick loop.
type WorkerConfig struct {
	// TickInterval is how often the worker wakes to claim a batch.
	TickInterval time.Duration `yaml:"tick_interval"`

	// BatchSize is the maximum number of rows claimed per tick.
	BatchSize int `yaml:"batch_size"`

	// CleanupEveryNTicks runs completed-row garbage collection on every
	// Nth tick, over the worker's own table; zero disables it.
	CleanupEveryNTicks int `yaml:"cleanup_every_n_ticks"`

	// StallReleaseEveryNTicks runs releaseStuckEvents on every Nth
	// tick, in addition to the unconditional run at worker startup.
	// Zero disables the periodic run (startup release still happens).
	StallReleaseEveryNTicks int `yaml:"stall_release_every_n_ticks"`
}

// ReaperConfig tunes the orphan process reaper.
type ReaperConfig struct {
	// ScanInterval is how often the reaper enumerates host processes.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// MaxAge is how old an unregistered matching process must be
	// before the reaper kills it.
	MaxAge time.Duration `yaml:"max_age"`

	// Signature is the command-line substring identifying an
	// agent-subprocess the reaper is responsible for. Not hardcoded,
	// since the assistant CLI's invocation may vary by install.
	Signature string `yaml:"signature"`
}

// DefaultDaemonConfig returns the configuration used when no file is
// present and as the base onto which a loaded file is merged.
func DefaultDaemonConfig() *DaemonConfig {
	homeDir, _ := os.UserHomeDir()

	return &DaemonConfig{
		ListenAddress:              "127.0.0.1:37777",
		DatabasePath:               filepath.Join(homeDir, ".claude-mem", "daemon.db"),
		MaxRetries:                 3,
		StallThreshold:             5 * time.Minute,
		RetentionWindow:            time.Hour,
		ToolResponseTruncateBytes:  50_000,
		LLMTimeout:                 60 * time.Second,
		GracefulTerminationTimeout: 5 * time.Second,
		EventWorker: WorkerConfig{
			TickInterval:            10 * time.Second,
			BatchSize:               10,
			CleanupEveryNTicks:      100,
			StallReleaseEveryNTicks: 30,
		},
		SummaryWorker: WorkerConfig{
			TickInterval: 10 * time.Second,
			BatchSize:    5,
		},
		Reaper: ReaperConfig{
			ScanInterval: 5 * time.Minute,
			MaxAge:       30 * time.Minute,
			Signature:    "claude-mem-agent",
		},
	}
}

// LoadDaemonConfig loads the daemon config file named by the
// CLAUDE_MEM_DAEMON_CONFIG environment variable. Returns an error if
// the variable is unset; there is no implicit discovery.
func LoadDaemonConfig() (*DaemonConfig, error) {
	path := os.Getenv(daemonConfigEnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your daemon config file, or use --config", daemonConfigEnvVar)
	}
	return LoadDaemonConfigFile(path)
}

// LoadDaemonConfigFile loads the daemon config from a specific file
// path, merging it onto [DefaultDaemonConfig].
func LoadDaemonConfigFile(path string) (*DaemonConfig, error) {
	cfg := DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.ListenAddress = expandVars(cfg.ListenAddress)
	cfg.DatabasePath = expandVars(cfg.DatabasePath)
	cfg.Reaper.Signature = expandVars(cfg.Reaper.Signature)

	return cfg, cfg.Validate()
}

// Validate checks the configuration for obviously broken values.
func (cfg *DaemonConfig) Validate() error {
	if cfg.ListenAddress == "" {
		return fmt.Errorf("config: listen_address is required")
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("config: database_path is required")
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("config: max_retries must be at least 1")
	}
	if cfg.EventWorker.BatchSize < 1 {
		return fmt.Errorf("config: event_worker.batch_size must be at least 1")
	}
	if cfg.SummaryWorker.BatchSize < 1 {
		return fmt.Errorf("config: summary_worker.batch_size must be at least 1")
	}
	if cfg.Reaper.Signature == "" {
		return fmt.Errorf("config: reaper.signature is required")
	}
	return nil
}

// EnsureDatabaseDir creates the parent directory of DatabasePath if it
// does not exist, with owner-only permissions since the database may
// contain raw tool input and output.
func (cfg *DaemonConfig) EnsureDatabaseDir() error {
	dir := filepath.Dir(cfg.DatabasePath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}
	return nil
}
