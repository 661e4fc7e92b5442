// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package proctrack

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// sendTerminateSignal sends SIGTERM to the process group led by pid,
// so a spawned LLM-agent subprocess's own children go down with it.
// When pid leads no process group, SIGTERM goes to pid alone.
func sendTerminateSignal(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != syscall.ESRCH {
		return err
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// sendKillSignal sends SIGKILL to the process group led by pid, or to
// pid alone when it leads no process group.
func sendKillSignal(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != syscall.ESRCH {
		return err
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}

// VerifyDead reports whether pid no longer exists, using a signal
// number of 0 which the kernel never delivers but still validates
// against the process table. A process that has exited but not yet
// been reaped (state Z in /proc/<pid>/stat) also counts as dead.
func VerifyDead(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		stat, readErr := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
		if readErr != nil {
			return false
		}
		text := string(stat)
		fields := strings.Fields(text[strings.LastIndexByte(text, ')')+1:])
		return len(fields) > 0 && fields[0] == "Z"
	}
	return err == syscall.ESRCH
}
