// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore implements the collaborator tables the core
// queue workers depend on but do not own: sessions, the observations
// materialized from raw tool events, and the summaries materialized
// from raw summary requests. It shares a database file (and pool)
// with internal/queue; its tables live alongside raw_tool_events and
// raw_summary_requests in the same embedded store.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/claude-mem/daemon/lib/clock"
	"github.com/claude-mem/daemon/lib/sqlitepool"
)

// ErrSessionNotFound is returned by GetSessionByID when no session
// with that id exists.
var ErrSessionNotFound = errors.New("sessionstore: session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_session_id TEXT NOT NULL UNIQUE,
	project TEXT NOT NULL,
	memory_session_id INTEGER,
	initial_prompt TEXT NOT NULL DEFAULT '',
	created_at_epoch INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_session_id INTEGER NOT NULL,
	project TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	subtitle TEXT NOT NULL DEFAULT '',
	facts TEXT NOT NULL DEFAULT '[]',
	narrative TEXT NOT NULL DEFAULT '',
	concepts TEXT NOT NULL DEFAULT '[]',
	files_read TEXT NOT NULL DEFAULT '[]',
	files_modified TEXT NOT NULL DEFAULT '[]',
	prompt_number INTEGER NOT NULL DEFAULT 0,
	created_at_epoch INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_project_created
	ON observations (project, created_at_epoch DESC);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_session_id INTEGER NOT NULL,
	project TEXT NOT NULL,
	request TEXT NOT NULL DEFAULT '',
	investigated TEXT NOT NULL DEFAULT '',
	learned TEXT NOT NULL DEFAULT '',
	completed TEXT NOT NULL DEFAULT '',
	next_steps TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	prompt_number INTEGER NOT NULL DEFAULT 0,
	discovery_tokens INTEGER NOT NULL DEFAULT 0,
	created_at_epoch INTEGER NOT NULL
);
`

// Interface is the narrow surface the queue workers depend on:
// resolving a session's materialization target, persisting
// materialized observations/summaries, and fetching advisory recent
// context for the summary prompt.
type Interface interface {
	GetSessionByID(ctx context.Context, sessionDBID int64) (Session, error)
	StoreObservations(ctx context.Context, memorySessionID int64, project string, observations []Observation, summary *Summary, promptNumber int, discoveryTokens int64) (StoreResult, error)
	GetRecentObservations(ctx context.Context, project string, limit int) ([]RecentObservation, error)
}

// Store is the SQLite-backed Interface implementation.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config configures a Store.
type Config struct {
	Pool   *sqlitepool.Pool
	Clock  clock.Clock
	Logger *slog.Logger
}

// Open creates the collaborator tables (if absent) and returns a
// Store bound to cfg.Pool.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("sessionstore: Pool is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("sessionstore: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("sessionstore: Logger is required")
	}

	conn, err := cfg.Pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	defer cfg.Pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("sessionstore: create schema: %w", err)
	}

	return &Store{pool: cfg.Pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

func (s *Store) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// InitSession registers a content session, returning its row id.
// This backs the /api/sessions/init intake route; it is not part of
// Interface because the queue workers never call it — only intake
// does, at session start.
func (s *Store) InitSession(ctx context.Context, contentSessionID, project, prompt string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: init session: %w", err)
	}
	defer s.pool.Put(conn)

	query := `INSERT INTO sessions (content_session_id, project, initial_prompt, created_at_epoch)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_session_id) DO UPDATE SET project = excluded.project
		RETURNING id`

	var sessionDBID int64
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{contentSessionID, project, prompt, s.nowMillis()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sessionDBID = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sessionstore: init session: %w", err)
	}
	return sessionDBID, nil
}

// AttachMemorySession records the memory_session_id assigned to a
// content session once one exists, so later materialization calls can
// resolve it via GetSessionByID.
func (s *Store) AttachMemorySession(ctx context.Context, sessionDBID, memorySessionID int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: attach memory session: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE sessions SET memory_session_id = ? WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{memorySessionID, sessionDBID},
	})
	if err != nil {
		return fmt.Errorf("sessionstore: attach memory session: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("sessionstore: attach memory session: %w", ErrSessionNotFound)
	}
	return nil
}

// GetSessionByID resolves the materialization target for a raw row's
// session_db_id. Returns ErrSessionNotFound if memory_session_id was
// never attached — the caller (the worker) treats this as a
// MaterializationError and marks the row failed.
func (s *Store) GetSessionByID(ctx context.Context, sessionDBID int64) (Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("sessionstore: get session: %w", err)
	}
	defer s.pool.Put(conn)

	var session Session
	found := false
	query := `SELECT id, content_session_id, project, memory_session_id FROM sessions WHERE id = ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{sessionDBID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			session.SessionDBID = stmt.ColumnInt64(0)
			session.ContentSessionID = stmt.ColumnText(1)
			session.Project = stmt.ColumnText(2)
			if !stmt.ColumnIsNull(3) {
				session.MemorySessionID = stmt.ColumnInt64(3)
			}
			return nil
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("sessionstore: get session: %w", err)
	}
	if !found || session.MemorySessionID == 0 {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// StoreObservations persists materialized observations and, if
// summary is non-nil, a summary row, all within one transaction so a
// caller never observes a partial write.
func (s *Store) StoreObservations(ctx context.Context, memorySessionID int64, project string, observations []Observation, summary *Summary, promptNumber int, discoveryTokens int64) (result StoreResult, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StoreResult{}, fmt.Errorf("sessionstore: store observations: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return StoreResult{}, fmt.Errorf("sessionstore: store observations: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	now := s.nowMillis()
	insertObservation := `INSERT INTO observations
		(memory_session_id, project, type, title, subtitle, facts, narrative, concepts, files_read, files_modified, prompt_number, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, observation := range observations {
		facts, err := marshalStringSlice(observation.Facts)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: marshal facts: %w", err)
		}
		concepts, err := marshalStringSlice(observation.Concepts)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: marshal concepts: %w", err)
		}
		filesRead, err := marshalStringSlice(observation.FilesRead)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: marshal files_read: %w", err)
		}
		filesModified, err := marshalStringSlice(observation.FilesModified)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: marshal files_modified: %w", err)
		}

		err = sqlitex.Execute(conn, insertObservation, &sqlitex.ExecOptions{
			Args: []any{
				memorySessionID, project, observation.Type, observation.Title, observation.Subtitle,
				facts, observation.Narrative, concepts, filesRead, filesModified, promptNumber, now,
			},
		})
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: insert observation: %w", err)
		}
		result.ObservationIDs = append(result.ObservationIDs, conn.LastInsertRowID())
	}

	if summary != nil {
		insertSummary := `INSERT INTO summaries
			(memory_session_id, project, request, investigated, learned, completed, next_steps, notes, prompt_number, discovery_tokens, created_at_epoch)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		err = sqlitex.Execute(conn, insertSummary, &sqlitex.ExecOptions{
			Args: []any{
				memorySessionID, project, summary.Request, summary.Investigated, summary.Learned,
				summary.Completed, summary.NextSteps, summary.Notes, promptNumber, discoveryTokens, now,
			},
		})
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: store observations: insert summary: %w", err)
		}
		summaryID := conn.LastInsertRowID()
		result.SummaryID = &summaryID
	}

	return result, nil
}

func marshalStringSlice(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// GetRecentObservations returns up to limit of the most recently
// stored observations for a project, newest first. Used as advisory
// context in the summary prompt; a failure here is not fatal to
// summarization, so callers may choose to log and continue with an
// empty slice.
func (s *Store) GetRecentObservations(ctx context.Context, project string, limit int) ([]RecentObservation, error) {
	if limit <= 0 {
		return nil, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get recent observations: %w", err)
	}
	defer s.pool.Put(conn)

	var recent []RecentObservation
	query := `SELECT type, title, narrative FROM observations WHERE project = ? ORDER BY created_at_epoch DESC LIMIT ?`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{project, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			text := stmt.ColumnText(1)
			if narrative := stmt.ColumnText(2); narrative != "" {
				text = text + ": " + narrative
			}
			recent = append(recent, RecentObservation{Type: stmt.ColumnText(0), Text: text})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get recent observations: %w", err)
	}
	return recent, nil
}
