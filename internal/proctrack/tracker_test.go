// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proctrack

import (
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/claude-mem/daemon/lib/clock"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Property 8: Tracker.Terminate returns true iff the process is gone
// afterward.
func TestTerminateKillsRunningProcess(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	tracker.Register(1, cmd, "sleep 30")

	if !tracker.Terminate(1, time.Second) {
		t.Fatal("Terminate = false, want true for a process that should die on SIGTERM")
	}
	if !VerifyDead(cmd.Process.Pid) {
		t.Error("process still alive after Terminate reported success")
	}
}

func TestTerminateNoSuchSessionReturnsTrue(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	if !tracker.Terminate(999, time.Second) {
		t.Error("Terminate for an untracked session should report success")
	}
}

func TestRegisterRemovesRecordOnNaturalExit(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start true: %v", err)
	}
	tracker.Register(2, cmd, "true")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tracker.mu.Lock()
		_, stillTracked := tracker.processes[2]
		tracker.mu.Unlock()
		if !stillTracked {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("tracker still holds a record for a process that exited on its own")
}

func TestTerminateAll(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	for sessionDBID := int64(1); sessionDBID <= 3; sessionDBID++ {
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			t.Fatalf("start sleep: %v", err)
		}
		tracker.Register(sessionDBID, cmd, "sleep 30")
	}

	terminated, failed := tracker.TerminateAll(time.Second)
	if terminated != 3 || failed != 0 {
		t.Errorf("TerminateAll = (%d, %d), want (3, 0)", terminated, failed)
	}
}

func TestVerifyDeadCurrentProcess(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	if VerifyDead(cmd.Process.Pid) {
		t.Error("VerifyDead = true for a process that is still running")
	}
}
