// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

// Status is the lifecycle state of a raw queue row.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSummarizing Status = "summarizing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// RawToolEvent is a single tool invocation captured verbatim from a
// hook, awaiting enrichment into a SessionStore observation.
type RawToolEvent struct {
	ID                int64
	SessionDBID       int64
	ContentSessionID  string
	ToolName          string
	ToolInput         string
	ToolResponse      string
	Cwd               string
	PromptNumber      int
	Project           string
	Status            Status
	RetryCount        int
	CreatedAtEpoch    int64
	SummarizedAtEpoch int64
	// ObservationID is nil until the row reaches StatusCompleted. A
	// non-nil zero means the LLM produced no observation for this
	// event and it was intentionally dropped.
	ObservationID *int64
	ErrorMessage  string
}

// RawSummaryRequest is an end-of-turn summarization request captured
// verbatim from a hook, awaiting enrichment into a SessionStore
// summary.
type RawSummaryRequest struct {
	ID                    int64
	SessionDBID           int64
	ContentSessionID      string
	MemorySessionID       *int64
	Project               string
	UserPrompt            string
	LastAssistantMessage  string
	Status                Status
	RetryCount            int
	CreatedAtEpoch        int64
	SummarizedAtEpoch     int64
	SummaryID             *int64
	ErrorMessage          string
}

// Stats is a point-in-time count of rows in each lifecycle state,
// returned by ToolEventStats and SummaryRequestStats.
type Stats struct {
	Pending     int64
	Summarizing int64
	Completed   int64
	Failed      int64
}

func (s *Stats) add(status Status, count int64) {
	switch status {
	case StatusPending:
		s.Pending = count
	case StatusSummarizing:
		s.Summarizing = count
	case StatusCompleted:
		s.Completed = count
	case StatusFailed:
		s.Failed = count
	}
}
