// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package proctrack

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type windowsProcessLister struct{}

func newProcessLister() processLister {
	return windowsProcessLister{}
}

// list queries Win32_Process via PowerShell's CIM cmdlets, since
// Windows has no ps-style etime field and process age has to be
// derived from CreationDate instead.
func (windowsProcessLister) list() ([]candidateProcess, error) {
	script := `Get-CimInstance Win32_Process | ` +
		`Select-Object ProcessId,CreationDate,CommandLine | ` +
		`ConvertTo-Csv -NoTypeInformation`
	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("powershell: %w", err)
	}

	reader := csv.NewReader(bufio.NewReader(strings.NewReader(string(output))))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("proctrack: parse CIM output: %w", err)
	}
	if len(rows) < 1 {
		return nil, nil
	}

	now := time.Now()
	var candidates []candidateProcess
	for _, row := range rows[1:] { // skip header
		if len(row) < 3 {
			continue
		}
		pid, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		createdAt, err := parseCIMDate(row[1])
		if err != nil {
			continue
		}
		candidates = append(candidates, candidateProcess{
			pid:     pid,
			age:     now.Sub(createdAt),
			command: row[2],
		})
	}

	return candidates, nil
}

// parseCIMDate parses the CIM_DATETIME string Get-CimInstance emits,
// e.g. "20260105143012.123456+060".
func parseCIMDate(value string) (time.Time, error) {
	if len(value) < 14 {
		return time.Time{}, fmt.Errorf("proctrack: unexpected CIM date %q", value)
	}
	return time.Parse("20060102150405", value[:14])
}
