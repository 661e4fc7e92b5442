// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"testing"
)

// S6 — duplicate-summary guard.
func TestInsertRawSummaryRequestRejectsDuplicate(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{
		SessionDBID:      42,
		ContentSessionID: "content-42",
		Project:          "claude-mem",
		UserPrompt:       "implement thing",
	}); err != nil {
		t.Fatalf("first InsertRawSummaryRequest: %v", err)
	}

	_, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{
		SessionDBID:      42,
		ContentSessionID: "content-42",
		Project:          "claude-mem",
		UserPrompt:       "implement thing, attempt two",
	})
	if !errors.Is(err, ErrDuplicateSummaryPending) {
		t.Errorf("second InsertRawSummaryRequest: err = %v, want ErrDuplicateSummaryPending", err)
	}
}

// Once the first request leaves {pending, summarizing}, a new request
// for the same session is accepted again.
func TestInsertRawSummaryRequestAllowsAfterCompletion(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	firstID, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{
		SessionDBID:      42,
		ContentSessionID: "content-42",
	})
	if err != nil {
		t.Fatalf("first InsertRawSummaryRequest: %v", err)
	}

	if _, err := q.ClaimSummaryRequestBatch(ctx, 1); err != nil {
		t.Fatalf("ClaimSummaryRequestBatch: %v", err)
	}
	if err := q.MarkSummaryRequestCompleted(ctx, firstID, 7); err != nil {
		t.Fatalf("MarkSummaryRequestCompleted: %v", err)
	}

	if _, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{
		SessionDBID:      42,
		ContentSessionID: "content-42",
	}); err != nil {
		t.Errorf("InsertRawSummaryRequest after completion: %v, want nil", err)
	}
}

func TestClaimSummaryRequestBatchSetsMemorySessionID(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	memorySessionID := int64(9)
	_, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{
		SessionDBID:      42,
		ContentSessionID: "content-42",
		MemorySessionID:  &memorySessionID,
		UserPrompt:       "implement thing",
	})
	if err != nil {
		t.Fatalf("InsertRawSummaryRequest: %v", err)
	}

	claimed, err := q.ClaimSummaryRequestBatch(ctx, 1)
	if err != nil {
		t.Fatalf("ClaimSummaryRequestBatch: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("ClaimSummaryRequestBatch: got %d rows, want 1", len(claimed))
	}
	if claimed[0].MemorySessionID == nil || *claimed[0].MemorySessionID != memorySessionID {
		t.Errorf("MemorySessionID = %v, want %d", claimed[0].MemorySessionID, memorySessionID)
	}
	if claimed[0].Status != StatusSummarizing {
		t.Errorf("Status = %q, want summarizing", claimed[0].Status)
	}
}

func TestMarkSummaryRequestFailedTerminatesAtMaxRetries(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	const maxRetries = 2

	id, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{SessionDBID: 1, ContentSessionID: "c1"})
	if err != nil {
		t.Fatalf("InsertRawSummaryRequest: %v", err)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if _, err := q.ClaimSummaryRequestBatch(ctx, 1); err != nil {
			t.Fatalf("ClaimSummaryRequestBatch: %v", err)
		}
		if err := q.MarkSummaryRequestFailed(ctx, id, "parse error", maxRetries); err != nil {
			t.Fatalf("MarkSummaryRequestFailed: %v", err)
		}
	}

	stats, err := q.SummaryRequestStats(ctx)
	if err != nil {
		t.Fatalf("SummaryRequestStats: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}

	// The session is now free for a fresh summary request.
	if _, err := q.InsertRawSummaryRequest(ctx, RawSummaryRequest{SessionDBID: 1, ContentSessionID: "c1"}); err != nil {
		t.Errorf("InsertRawSummaryRequest after failure: %v, want nil", err)
	}
}
