// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import "errors"

// ErrStorageUnavailable is returned when the underlying store rejects
// a write outright (disk full, file locked by another process, etc).
var ErrStorageUnavailable = errors.New("queue: storage unavailable")

// ErrDuplicateSummaryPending is returned by InsertRawSummaryRequest
// when a request for the same session is already pending or
// summarizing.
var ErrDuplicateSummaryPending = errors.New("queue: a summary request is already pending or summarizing for this session")

// ErrNoSuchRow is returned by Mark* operations when the row id does
// not exist, which should only happen if a caller races a cleanup
// pass against a stale id.
var ErrNoSuchRow = errors.New("queue: no such row")
