// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the durable intake queue: two SQLite tables,
// one for fine-grained tool events and one for end-of-turn
// session-summary requests, each carrying a status lifecycle and
// retry counter. InsertRawEvent and InsertRawSummaryRequest are the
// only operations on the hot hook-response path; everything else runs
// off a worker's tick loop.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/claude-mem/daemon/lib/clock"
	"github.com/claude-mem/daemon/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_tool_events (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_db_id        INTEGER NOT NULL,
	content_session_id   TEXT NOT NULL,
	tool_name            TEXT NOT NULL,
	tool_input           TEXT,
	tool_response        TEXT,
	cwd                  TEXT,
	prompt_number        INTEGER NOT NULL DEFAULT 0,
	project              TEXT,
	status               TEXT NOT NULL,
	retry_count          INTEGER NOT NULL DEFAULT 0,
	created_at_epoch     INTEGER NOT NULL,
	summarized_at_epoch  INTEGER,
	observation_id       INTEGER,
	error_message        TEXT
);
CREATE INDEX IF NOT EXISTS idx_raw_tool_events_status ON raw_tool_events(status, created_at_epoch);
CREATE INDEX IF NOT EXISTS idx_raw_tool_events_session ON raw_tool_events(session_db_id);

CREATE TABLE IF NOT EXISTS raw_summary_requests (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	session_db_id           INTEGER NOT NULL,
	content_session_id      TEXT NOT NULL,
	memory_session_id       INTEGER,
	project                 TEXT,
	user_prompt             TEXT,
	last_assistant_message  TEXT,
	status                  TEXT NOT NULL,
	retry_count             INTEGER NOT NULL DEFAULT 0,
	created_at_epoch        INTEGER NOT NULL,
	summarized_at_epoch     INTEGER,
	summary_id              INTEGER,
	error_message           TEXT
);
CREATE INDEX IF NOT EXISTS idx_raw_summary_requests_status ON raw_summary_requests(status, created_at_epoch);
CREATE INDEX IF NOT EXISTS idx_raw_summary_requests_session ON raw_summary_requests(session_db_id);
`

// truncationSuffix is appended to a tool_response payload that exceeded
// the configured byte cap, so a reader downstream can tell the
// difference between "short response" and "response we cut off".
const truncationSuffix = "...[truncated]"

// Queue is the durable event queue, backed by a SQLite connection
// pool shared with the rest of the daemon's database file.
type Queue struct {
	pool          *sqlitepool.Pool
	clock         clock.Clock
	logger        *slog.Logger
	truncateBytes int
}

// Config holds the parameters for opening a Queue.
type Config struct {
	// Pool is the connection pool backing the queue's database file.
	// Required; the pool is not owned by the Queue, which never closes
	// it.
	Pool *sqlitepool.Pool

	// Clock provides the current time for created_at_epoch stamping
	// and stall-threshold comparisons.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger

	// ToolResponseTruncateBytes caps the size of a stored
	// tool_response payload. Defaults to 50000 if zero or negative.
	ToolResponseTruncateBytes int
}

// Open creates the queue's tables (if they do not already exist) on
// the given pool and returns a Queue ready to serve inserts and
// claims.
func Open(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("queue: Pool is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("queue: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("queue: Logger is required")
	}

	truncateBytes := cfg.ToolResponseTruncateBytes
	if truncateBytes <= 0 {
		truncateBytes = 50_000
	}

	q := &Queue{
		pool:          cfg.Pool,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		truncateBytes: truncateBytes,
	}

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	defer q.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("queue: creating schema: %w", err)
	}

	return q, nil
}

func (q *Queue) nowMillis() int64 {
	return q.clock.Now().UnixMilli()
}

// truncateToolResponse caps toolResponse at q.truncateBytes, appending
// truncationSuffix when the cap is exceeded. Operates on bytes, not
// runes — a payload boundary landing mid-rune is an acceptable cost
// for a diagnostic field.
func (q *Queue) truncateToolResponse(toolResponse string) string {
	if len(toolResponse) <= q.truncateBytes {
		return toolResponse
	}
	return toolResponse[:q.truncateBytes] + truncationSuffix
}

// InsertRawEvent records a single tool invocation with status=pending.
// Synchronous, single local transactional write, no network I/O —
// this is the hot path every hook invocation blocks on.
func (q *Queue) InsertRawEvent(ctx context.Context, event RawToolEvent) (int64, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer q.pool.Put(conn)

	query := `INSERT INTO raw_tool_events
		(session_db_id, content_session_id, tool_name, tool_input, tool_response,
		 cwd, prompt_number, project, status, retry_count, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{
			event.SessionDBID,
			event.ContentSessionID,
			event.ToolName,
			event.ToolInput,
			q.truncateToolResponse(event.ToolResponse),
			event.Cwd,
			event.PromptNumber,
			event.Project,
			string(StatusPending),
			q.nowMillis(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: insert raw event: %v", ErrStorageUnavailable, err)
	}

	return conn.LastInsertRowID(), nil
}

// ClaimToolEventBatch atomically selects up to limit pending rows
// ordered by created_at_epoch ascending, flips them to summarizing,
// and returns them. The select and update run in a single
// transaction so two workers never claim the same row.
func (q *Queue) ClaimToolEventBatch(ctx context.Context, limit int) (events []RawToolEvent, err error) {
	if limit <= 0 {
		return nil, nil
	}

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: claim tool event batch: %w", err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("queue: claim tool event batch: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	selectQuery := `SELECT id, session_db_id, content_session_id, tool_name, tool_input,
		tool_response, cwd, prompt_number, project, status, retry_count,
		created_at_epoch, summarized_at_epoch, observation_id, error_message
		FROM raw_tool_events WHERE status = ? ORDER BY created_at_epoch ASC LIMIT ?`

	err = sqlitex.Execute(conn, selectQuery, &sqlitex.ExecOptions{
		Args: []any{string(StatusPending), limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			events = append(events, scanRawToolEvent(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: claim tool event batch: select: %w", err)
	}

	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]any, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	updateQuery := fmt.Sprintf(`UPDATE raw_tool_events SET status = ? WHERE id IN (%s)`, placeholders(len(ids)))
	args := append([]any{string(StatusSummarizing)}, ids...)

	if err := sqlitex.Execute(conn, updateQuery, &sqlitex.ExecOptions{Args: args}); err != nil {
		return nil, fmt.Errorf("queue: claim tool event batch: update: %w", err)
	}

	for i := range events {
		events[i].Status = StatusSummarizing
	}
	return events, nil
}

// MarkToolEventCompleted sets status=completed, summarized_at_epoch=now,
// observation_id=materializedID. materializedID may legitimately be 0,
// meaning the LLM produced no observation for this event.
func (q *Queue) MarkToolEventCompleted(ctx context.Context, id int64, materializedID int64) error {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("queue: mark tool event completed: %w", err)
	}
	defer q.pool.Put(conn)

	query := `UPDATE raw_tool_events SET status = ?, summarized_at_epoch = ?, observation_id = ? WHERE id = ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusCompleted), q.nowMillis(), materializedID, id},
	})
	if err != nil {
		return fmt.Errorf("queue: mark tool event completed: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("queue: mark tool event completed: %w", ErrNoSuchRow)
	}
	return nil
}

// MarkToolEventFailed increments the row's retry counter. If the new
// count reaches maxRetries the row lands in failed terminally;
// otherwise it reverts to pending so a future claim retries it.
// Each call adds one to retry_count (read and written in one
// transaction), so repeated calls for the same id never lower it.
func (q *Queue) MarkToolEventFailed(ctx context.Context, id int64, errMessage string, maxRetries int) (err error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("queue: mark tool event failed: %w", err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("queue: mark tool event failed: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var retryCount int
	found := false
	err = sqlitex.Execute(conn, `SELECT retry_count FROM raw_tool_events WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			retryCount = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("queue: mark tool event failed: select: %w", err)
	}
	if !found {
		return fmt.Errorf("queue: mark tool event failed: %w", ErrNoSuchRow)
	}

	retryCount++
	nextStatus := StatusPending
	if retryCount >= maxRetries {
		nextStatus = StatusFailed
	}

	err = sqlitex.Execute(conn, `UPDATE raw_tool_events SET status = ?, retry_count = ?, error_message = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(nextStatus), retryCount, errMessage, id}})
	if err != nil {
		return fmt.Errorf("queue: mark tool event failed: update: %w", err)
	}
	return nil
}

// ReleaseStuckToolEvents reverts rows stuck in summarizing whose
// created_at_epoch is older than olderThanMs back to pending, without
// touching retry_count. olderThanMs=0 releases all summarizing rows —
// used at worker startup for crash recovery.
func (q *Queue) ReleaseStuckToolEvents(ctx context.Context, olderThanMs int64) (int64, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: release stuck tool events: %w", err)
	}
	defer q.pool.Put(conn)

	threshold := q.nowMillis() - olderThanMs
	if olderThanMs <= 0 {
		// Above every created_at_epoch, so rows stamped in the current
		// millisecond are released too.
		threshold = 1<<63 - 1
	}
	query := `UPDATE raw_tool_events SET status = ? WHERE status = ? AND created_at_epoch < ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusPending), string(StatusSummarizing), threshold},
	})
	if err != nil {
		return 0, fmt.Errorf("queue: release stuck tool events: %w", err)
	}
	return int64(conn.Changes()), nil
}

// DeleteCompletedToolEvents garbage-collects completed rows whose
// summarized_at_epoch is older than olderThanEpoch.
func (q *Queue) DeleteCompletedToolEvents(ctx context.Context, olderThanEpoch int64) (int64, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: delete completed tool events: %w", err)
	}
	defer q.pool.Put(conn)

	query := `DELETE FROM raw_tool_events WHERE status = ? AND summarized_at_epoch < ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(StatusCompleted), olderThanEpoch},
	})
	if err != nil {
		return 0, fmt.Errorf("queue: delete completed tool events: %w", err)
	}
	return int64(conn.Changes()), nil
}

// ToolEventStats returns a point-in-time count of rows in each
// lifecycle state.
func (q *Queue) ToolEventStats(ctx context.Context) (Stats, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("queue: tool event stats: %w", err)
	}
	defer q.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, `SELECT status, COUNT(*) FROM raw_tool_events GROUP BY status`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.add(Status(stmt.ColumnText(0)), stmt.ColumnInt64(1))
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue: tool event stats: %w", err)
	}
	return stats, nil
}

func scanRawToolEvent(stmt *sqlite.Stmt) RawToolEvent {
	// Columns: id(0), session_db_id(1), content_session_id(2),
	// tool_name(3), tool_input(4), tool_response(5), cwd(6),
	// prompt_number(7), project(8), status(9), retry_count(10),
	// created_at_epoch(11), summarized_at_epoch(12), observation_id(13),
	// error_message(14)
	event := RawToolEvent{
		ID:               stmt.ColumnInt64(0),
		SessionDBID:      stmt.ColumnInt64(1),
		ContentSessionID: stmt.ColumnText(2),
		ToolName:         stmt.ColumnText(3),
		ToolInput:        stmt.ColumnText(4),
		ToolResponse:     stmt.ColumnText(5),
		Cwd:              stmt.ColumnText(6),
		PromptNumber:     stmt.ColumnInt(7),
		Project:          stmt.ColumnText(8),
		Status:           Status(stmt.ColumnText(9)),
		RetryCount:       stmt.ColumnInt(10),
		CreatedAtEpoch:   stmt.ColumnInt64(11),
		ErrorMessage:     stmt.ColumnText(14),
	}
	if !stmt.ColumnIsNull(12) {
		event.SummarizedAtEpoch = stmt.ColumnInt64(12)
	}
	if !stmt.ColumnIsNull(13) {
		observationID := stmt.ColumnInt64(13)
		event.ObservationID = &observationID
	}
	return event
}

// placeholders returns "?, ?, ..." with n question marks, for building
// an IN (...) clause with a variable number of arguments.
func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ", ")
}
