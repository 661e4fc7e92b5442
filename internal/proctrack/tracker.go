// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proctrack supervises the subprocesses a daemon spawns on
// behalf of a session. A Tracker records each live handle for the
// happy-path shutdown sequence (polite signal, wait, force-kill,
// verify); a Reaper built on top of it sweeps the process table for
// matching processes the Tracker never learned about.
package proctrack

import (
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/claude-mem/daemon/lib/clock"
)

type trackedProcess struct {
	cmd          *exec.Cmd
	pid          int
	command      string
	registeredAt time.Time
}

// Tracker records the subprocesses currently attributed to a session.
type Tracker struct {
	mu        sync.Mutex
	processes map[int64]*trackedProcess
	clock     clock.Clock
	logger    *slog.Logger
}

// NewTracker constructs a Tracker. clk and logger must be non-nil.
func NewTracker(clk clock.Clock, logger *slog.Logger) *Tracker {
	return &Tracker{
		processes: make(map[int64]*trackedProcess),
		clock:     clk,
		logger:    logger,
	}
}

// Register associates a spawned process with sessionDBID, overwriting
// any prior registration for that session. A goroutine waits on cmd
// and removes the record once the process exits on its own, so a
// Tracker never accumulates handles for processes nobody asked it to
// terminate.
func (t *Tracker) Register(sessionDBID int64, cmd *exec.Cmd, command string) {
	entry := &trackedProcess{
		cmd:          cmd,
		pid:          cmd.Process.Pid,
		command:      command,
		registeredAt: t.clock.Now(),
	}

	t.mu.Lock()
	t.processes[sessionDBID] = entry
	t.mu.Unlock()

	go t.waitForExit(sessionDBID, entry)
}

func (t *Tracker) waitForExit(sessionDBID int64, entry *trackedProcess) {
	_ = entry.cmd.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.processes[sessionDBID]; ok && current == entry {
		delete(t.processes, sessionDBID)
	}
}

// Terminate sends a polite SIGTERM to the process group tracked for
// sessionDBID (or to the tracked pid alone when it leads no group),
// waits up to gracefulTimeout for it to exit, then
// escalates to SIGKILL and waits a short additional interval before
// verifying death with a zero-impact probe signal. Returns true if no
// process is tracked for sessionDBID (nothing to terminate counts as
// success) or if the process is confirmed dead afterward.
func (t *Tracker) Terminate(sessionDBID int64, gracefulTimeout time.Duration) bool {
	t.mu.Lock()
	entry, ok := t.processes[sessionDBID]
	t.mu.Unlock()
	if !ok {
		return true
	}

	return t.terminate(entry.pid, gracefulTimeout)
}

func (t *Tracker) terminate(pid int, gracefulTimeout time.Duration) bool {
	if err := sendTerminateSignal(pid); err != nil {
		return VerifyDead(pid)
	}

	const pollInterval = 20 * time.Millisecond
	deadline := t.clock.Now().Add(gracefulTimeout)
	for t.clock.Now().Before(deadline) {
		if VerifyDead(pid) {
			return true
		}
		t.clock.Sleep(pollInterval)
	}
	if VerifyDead(pid) {
		return true
	}

	_ = sendKillSignal(pid)
	t.clock.Sleep(pollInterval)
	return VerifyDead(pid)
}

// TerminateAll terminates every process currently tracked, using
// gracefulTimeout for each, and reports how many succeeded and how
// many did not.
func (t *Tracker) TerminateAll(gracefulTimeout time.Duration) (terminated, failed int) {
	t.mu.Lock()
	sessionIDs := make([]int64, 0, len(t.processes))
	for sessionDBID := range t.processes {
		sessionIDs = append(sessionIDs, sessionDBID)
	}
	t.mu.Unlock()

	for _, sessionDBID := range sessionIDs {
		if t.Terminate(sessionDBID, gracefulTimeout) {
			terminated++
		} else {
			failed++
		}
	}
	return terminated, failed
}

// Depth returns the number of processes currently tracked. Exposed
// for the intake stats endpoint.
func (t *Tracker) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processes)
}
