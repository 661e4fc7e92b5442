// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the daemon.
//
// Two independent files are loaded, each from a path named by an
// environment variable or flag, with no fallback discovery:
//
//   - [DaemonConfig] -- queue, worker, and reaper tuning, loaded via
//     [LoadDaemonConfig] from CLAUDE_MEM_DAEMON_CONFIG or --config.
//   - [Settings] -- LLM provider selection and API credentials, loaded
//     via [LoadSettings] from CLAUDE_MEM_SETTINGS or --settings.
//
// Both support ${VAR} and ${VAR:-default} expansion after loading, so
// credentials can be kept out of the file itself and supplied by the
// environment.
package config
