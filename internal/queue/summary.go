// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// InsertRawSummaryRequest records an end-of-turn summarization request
// with status=pending. Rejects the insert with
// ErrDuplicateSummaryPending if a row for the same SessionDBID is
// already pending or summarizing — checked inside the same
// transaction as the insert so two concurrent inserts for the same
// session cannot both succeed.
func (q *Queue) InsertRawSummaryRequest(ctx context.Context, req RawSummaryRequest) (id int64, err error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("queue: insert raw summary request: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var pendingCount int64
	existsQuery := `SELECT COUNT(*) FROM raw_summary_requests
		WHERE session_db_id = ? AND status IN (?, ?)`
	err = sqlitex.Execute(conn, existsQuery, &sqlitex.ExecOptions{
		Args: []any{req.SessionDBID, string(StatusPending), string(StatusSummarizing)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pendingCount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("queue: insert raw summary request: checking duplicates: %w", err)
	}
	if pendingCount > 0 {
		return 0, ErrDuplicateSummaryPending
	}

	var memorySessionID any
	if req.MemorySessionID != nil {
		memorySessionID = *req.MemorySessionID
	}

	insertQuery := `INSERT INTO raw_summary_requests
		(session_db_id, content_session_id, memory_session_id, project,
		 user_prompt, last_assistant_message, status, retry_count, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`
	err = sqlitex.Execute(conn, insertQuery, &sqlitex.ExecOptions{
		Args: []any{
			req.SessionDBID,
			req.ContentSessionID,
			memorySessionID,
			req.Project,
			req.UserPrompt,
			req.LastAssistantMessage,
			string(StatusPending),
			q.nowMillis(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: insert raw summary request: %v", ErrStorageUnavailable, err)
	}

	return conn.LastInsertRowID(), nil
}

// ClaimSummaryRequestBatch atomically selects up to limit pending rows
// ordered by created_at_epoch ascending, flips them to summarizing,
// and returns them.
func (q *Queue) ClaimSummaryRequestBatch(ctx context.Context, limit int) (requests []RawSummaryRequest, err error) {
	if limit <= 0 {
		return nil, nil
	}

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: claim summary request batch: %w", err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("queue: claim summary request batch: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	selectQuery := `SELECT id, session_db_id, content_session_id, memory_session_id, project,
		user_prompt, last_assistant_message, status, retry_count, created_at_epoch,
		summarized_at_epoch, summary_id, error_message
		FROM raw_summary_requests WHERE status = ? ORDER BY created_at_epoch ASC LIMIT ?`

	err = sqlitex.Execute(conn, selectQuery, &sqlitex.ExecOptions{
		Args: []any{string(StatusPending), limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			requests = append(requests, scanRawSummaryRequest(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: claim summary request batch: select: %w", err)
	}

	if len(requests) == 0 {
		return nil, nil
	}

	ids := make([]any, len(requests))
	for i := range requests {
		ids[i] = requests[i].ID
	}
	updateQuery := fmt.Sprintf(`UPDATE raw_summary_requests SET status = ? WHERE id IN (%s)`, placeholders(len(ids)))
	args := append([]any{string(StatusSummarizing)}, ids...)

	if err := sqlitex.Execute(conn, updateQuery, &sqlitex.ExecOptions{Args: args}); err != nil {
		return nil, fmt.Errorf("queue: claim summary request batch: update: %w", err)
	}

	for i := range requests {
		requests[i].Status = StatusSummarizing
	}
	return requests, nil
}

// MarkSummaryRequestCompleted sets status=completed,
// summarized_at_epoch=now, summary_id=materializedID.
func (q *Queue) MarkSummaryRequestCompleted(ctx context.Context, id int64, materializedID int64) error {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("queue: mark summary request completed: %w", err)
	}
	defer q.pool.Put(conn)

	query := `UPDATE raw_summary_requests SET status = ?, summarized_at_epoch = ?, summary_id = ? WHERE id = ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusCompleted), q.nowMillis(), materializedID, id},
	})
	if err != nil {
		return fmt.Errorf("queue: mark summary request completed: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("queue: mark summary request completed: %w", ErrNoSuchRow)
	}
	return nil
}

// MarkSummaryRequestFailed mirrors MarkToolEventFailed for the summary
// request table.
func (q *Queue) MarkSummaryRequestFailed(ctx context.Context, id int64, errMessage string, maxRetries int) (err error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("queue: mark summary request failed: %w", err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("queue: mark summary request failed: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var retryCount int
	found := false
	err = sqlitex.Execute(conn, `SELECT retry_count FROM raw_summary_requests WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			retryCount = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("queue: mark summary request failed: select: %w", err)
	}
	if !found {
		return fmt.Errorf("queue: mark summary request failed: %w", ErrNoSuchRow)
	}

	retryCount++
	nextStatus := StatusPending
	if retryCount >= maxRetries {
		nextStatus = StatusFailed
	}

	err = sqlitex.Execute(conn, `UPDATE raw_summary_requests SET status = ?, retry_count = ?, error_message = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(nextStatus), retryCount, errMessage, id}})
	if err != nil {
		return fmt.Errorf("queue: mark summary request failed: update: %w", err)
	}
	return nil
}

// ReleaseStuckSummaryRequests mirrors ReleaseStuckToolEvents for the
// summary request table.
func (q *Queue) ReleaseStuckSummaryRequests(ctx context.Context, olderThanMs int64) (int64, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: release stuck summary requests: %w", err)
	}
	defer q.pool.Put(conn)

	threshold := q.nowMillis() - olderThanMs
	if olderThanMs <= 0 {
		threshold = 1<<63 - 1
	}
	query := `UPDATE raw_summary_requests SET status = ? WHERE status = ? AND created_at_epoch < ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusPending), string(StatusSummarizing), threshold},
	})
	if err != nil {
		return 0, fmt.Errorf("queue: release stuck summary requests: %w", err)
	}
	return int64(conn.Changes()), nil
}

// DeleteCompletedSummaryRequests mirrors DeleteCompletedToolEvents for
// the summary request table.
func (q *Queue) DeleteCompletedSummaryRequests(ctx context.Context, olderThanEpoch int64) (int64, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: delete completed summary requests: %w", err)
	}
	defer q.pool.Put(conn)

	query := `DELETE FROM raw_summary_requests WHERE status = ? AND summarized_at_epoch < ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusCompleted), olderThanEpoch},
	})
	if err != nil {
		return 0, fmt.Errorf("queue: delete completed summary requests: %w", err)
	}
	return int64(conn.Changes()), nil
}

// SummaryRequestStats mirrors ToolEventStats for the summary request
// table.
func (q *Queue) SummaryRequestStats(ctx context.Context) (Stats, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("queue: summary request stats: %w", err)
	}
	defer q.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, `SELECT status, COUNT(*) FROM raw_summary_requests GROUP BY status`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.add(Status(stmt.ColumnText(0)), stmt.ColumnInt64(1))
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue: summary request stats: %w", err)
	}
	return stats, nil
}

func scanRawSummaryRequest(stmt *sqlite.Stmt) RawSummaryRequest {
	// Columns: id(0), session_db_id(1), content_session_id(2),
	// memory_session_id(3), project(4), user_prompt(5),
	// last_assistant_message(6), status(7), retry_count(8),
	// created_at_epoch(9), summarized_at_epoch(10), summary_id(11),
	// error_message(12)
	req := RawSummaryRequest{
		ID:                   stmt.ColumnInt64(0),
		SessionDBID:          stmt.ColumnInt64(1),
		ContentSessionID:     stmt.ColumnText(2),
		Project:              stmt.ColumnText(4),
		UserPrompt:           stmt.ColumnText(5),
		LastAssistantMessage: stmt.ColumnText(6),
		Status:               Status(stmt.ColumnText(7)),
		RetryCount:           stmt.ColumnInt(8),
		CreatedAtEpoch:       stmt.ColumnInt64(9),
		ErrorMessage:         stmt.ColumnText(12),
	}
	if !stmt.ColumnIsNull(3) {
		memorySessionID := stmt.ColumnInt64(3)
		req.MemorySessionID = &memorySessionID
	}
	if !stmt.ColumnIsNull(10) {
		req.SummarizedAtEpoch = stmt.ColumnInt64(10)
	}
	if !stmt.ColumnIsNull(11) {
		summaryID := stmt.ColumnInt64(11)
		req.SummaryID = &summaryID
	}
	return req
}
