// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proctrack

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/claude-mem/daemon/lib/clock"
)

// candidateProcess is a process observed on the host, independent of
// whatever the Tracker knows about it.
type candidateProcess struct {
	pid     int
	age     time.Duration
	command string
}

// processLister enumerates host processes. Implemented per-OS in
// reaper_unix.go and reaper_windows.go.
type processLister interface {
	list() ([]candidateProcess, error)
}

// ScanResult reports the outcome of one Reaper sweep.
type ScanResult struct {
	Found  int
	Killed int
	Failed int
}

// Reaper finds processes matching a command-line signature that the
// Tracker never learned about — orphans left behind by a crashed
// daemon generation, a killed parent, or a subprocess that outlived
// its session — and terminates the ones old enough to be safely
// assumed abandoned.
type Reaper struct {
	tracker         *Tracker
	lister          processLister
	clock           clock.Clock
	logger          *slog.Logger
	signature       string
	maxAge          time.Duration
	gracefulTimeout time.Duration

	totalsMu sync.Mutex
	totals   ScanResult
}

// Config configures a Reaper.
type Config struct {
	Tracker         *Tracker
	Clock           clock.Clock
	Logger          *slog.Logger
	Signature       string
	MaxAge          time.Duration
	GracefulTimeout time.Duration
}

// NewReaper constructs a Reaper backed by the host's native process
// lister.
func NewReaper(cfg Config) (*Reaper, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("proctrack: reaper: Tracker is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("proctrack: reaper: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("proctrack: reaper: Logger is required")
	}
	if cfg.Signature == "" {
		return nil, fmt.Errorf("proctrack: reaper: Signature is required")
	}

	gracefulTimeout := cfg.GracefulTimeout
	if gracefulTimeout == 0 {
		gracefulTimeout = 5 * time.Second
	}

	return &Reaper{
		tracker:         cfg.Tracker,
		lister:          newProcessLister(),
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		signature:       cfg.Signature,
		maxAge:          cfg.MaxAge,
		gracefulTimeout: gracefulTimeout,
	}, nil
}

// Scan enumerates processes whose command line contains the
// configured signature, excludes anything the Tracker already owns
// and anything younger than MaxAge, and terminates the remainder.
func (r *Reaper) Scan() (ScanResult, error) {
	candidates, err := r.lister.list()
	if err != nil {
		return ScanResult{}, fmt.Errorf("proctrack: reaper: list processes: %w", err)
	}

	tracked := r.trackedPIDs()

	var result ScanResult
	for _, candidate := range candidates {
		if !containsSignature(candidate.command, r.signature) {
			continue
		}
		if tracked[candidate.pid] {
			continue
		}
		if candidate.age < r.maxAge {
			continue
		}

		result.Found++
		if r.killCandidate(candidate.pid) {
			result.Killed++
		} else {
			result.Failed++
			r.logger.Warn("proctrack: reaper failed to kill orphan", "pid", candidate.pid, "command", candidate.command)
		}
	}

	r.totalsMu.Lock()
	r.totals.Found += result.Found
	r.totals.Killed += result.Killed
	r.totals.Failed += result.Failed
	r.totalsMu.Unlock()

	return result, nil
}

// Totals returns the cumulative Scan results across the Reaper's
// lifetime. Exposed for the intake stats endpoint.
func (r *Reaper) Totals() ScanResult {
	r.totalsMu.Lock()
	defer r.totalsMu.Unlock()
	return r.totals
}

func (r *Reaper) trackedPIDs() map[int]bool {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	pids := make(map[int]bool, len(r.tracker.processes))
	for _, entry := range r.tracker.processes {
		pids[entry.pid] = true
	}
	return pids
}

func (r *Reaper) killCandidate(pid int) bool {
	return r.tracker.terminate(pid, r.gracefulTimeout)
}

func containsSignature(command, signature string) bool {
	return signature != "" && strings.Contains(command, signature)
}
