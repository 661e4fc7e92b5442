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

type fakeLister struct {
	candidates []candidateProcess
}

func (f fakeLister) list() ([]candidateProcess, error) {
	return f.candidates, nil
}

func newTestReaper(t *testing.T, tracker *Tracker, candidates []candidateProcess, maxAge time.Duration) *Reaper {
	t.Helper()
	reaper, err := NewReaper(Config{
		Tracker:   tracker,
		Clock:     clock.Real(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Signature: "claude-mem-agent",
		MaxAge:    maxAge,
	})
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}
	reaper.lister = fakeLister{candidates: candidates}
	return reaper
}

// S7 — orphan reaper: a registered process matching the signature is
// left alone, an unregistered one old enough to exceed MaxAge is
// killed, and one too young to qualify is left alone even though it
// matches.
func TestReaperScan(t *testing.T) {
	tracker := newTestTracker(t)

	registered := exec.Command("sleep", "30")
	if err := registered.Start(); err != nil {
		t.Fatalf("start registered sleep: %v", err)
	}
	tracker.Register(1, registered, "claude-mem-agent --session 1")

	orphan := exec.Command("sleep", "30")
	if err := orphan.Start(); err != nil {
		t.Fatalf("start orphan sleep: %v", err)
	}

	youngOrphan := exec.Command("sleep", "30")
	if err := youngOrphan.Start(); err != nil {
		t.Fatalf("start young orphan sleep: %v", err)
	}
	defer youngOrphan.Process.Kill()

	candidates := []candidateProcess{
		{pid: registered.Process.Pid, age: time.Hour, command: "claude-mem-agent --session 1"},
		{pid: orphan.Process.Pid, age: time.Hour, command: "claude-mem-agent --session 2"},
		{pid: youngOrphan.Process.Pid, age: time.Second, command: "claude-mem-agent --session 3"},
		{pid: 999999, age: time.Hour, command: "unrelated-process"},
	}

	reaper := newTestReaper(t, tracker, candidates, 30*time.Minute)

	result, err := reaper.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Found != 1 {
		t.Errorf("Found = %d, want 1 (only the old unregistered match)", result.Found)
	}
	if result.Killed != 1 {
		t.Errorf("Killed = %d, want 1", result.Killed)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}

	if !VerifyDead(orphan.Process.Pid) {
		t.Error("orphan process should have been killed")
	}
	if VerifyDead(registered.Process.Pid) {
		t.Error("registered process should not have been touched")
	}
	if VerifyDead(youngOrphan.Process.Pid) {
		t.Error("young orphan process should not have been touched")
	}

	tracker.Terminate(1, time.Second)
}

func TestContainsSignature(t *testing.T) {
	t.Parallel()

	cases := []struct {
		command, signature string
		want               bool
	}{
		{"claude-mem-agent --session 1", "claude-mem-agent", true},
		{"/usr/bin/bash -c sleep", "claude-mem-agent", false},
		{"anything", "", false},
	}
	for _, c := range cases {
		if got := containsSignature(c.command, c.signature); got != c.want {
			t.Errorf("containsSignature(%q, %q) = %v, want %v", c.command, c.signature, got, c.want)
		}
	}
}
