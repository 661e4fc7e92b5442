// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/claude-mem/daemon/internal/parser"
	"github.com/claude-mem/daemon/internal/queue"
	"github.com/claude-mem/daemon/internal/sessionstore"
	"github.com/claude-mem/daemon/lib/clock"
	"github.com/claude-mem/daemon/lib/llm"
)

// recentActivityLimit bounds how much advisory context the summary
// prompt carries. Per spec.md §4.5, failures to fetch it are logged as
// a warning and otherwise ignored — it is advisory, not required.
const recentActivityLimit = 10

// SummaryWorker polls the end-of-turn summary request queue and
// processes one request at a time (not grouped, unlike EventWorker —
// each request is already its own unit of work). Implements
// spec.md §4.5.
type SummaryWorker struct {
	queue   *queue.Queue
	store   sessionstore.Interface
	llm     Completer
	clock   clock.Clock
	logger  *slog.Logger
	cfg     SummaryWorkerConfig
	running atomic.Bool
	tick    int64
}

// SummaryWorkerConfig tunes one SummaryWorker's tick loop.
type SummaryWorkerConfig struct {
	TickInterval            time.Duration
	BatchSize               int
	MaxRetries              int
	StallThreshold          time.Duration
	RetentionWindow         time.Duration
	CleanupEveryNTicks      int
	StallReleaseEveryNTicks int
}

// NewSummaryWorker constructs a SummaryWorker. All arguments are
// required.
func NewSummaryWorker(q *queue.Queue, store sessionstore.Interface, llmClient Completer, clk clock.Clock, logger *slog.Logger, cfg SummaryWorkerConfig) *SummaryWorker {
	return &SummaryWorker{
		queue:  q,
		store:  store,
		llm:    llmClient,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}

// Run blocks, firing Tick on cfg.TickInterval until ctx is canceled.
func (w *SummaryWorker) Run(ctx context.Context) {
	if _, err := w.queue.ReleaseStuckSummaryRequests(ctx, 0); err != nil {
		w.logger.Error("summary worker: startup release failed", "error", err)
	}

	ticker := w.clock.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one pass: optional cleanup/stall-release, then claims a
// batch and processes each request independently. If a previous tick
// is still in flight it returns immediately without running another.
func (w *SummaryWorker) Tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("summary worker: tick skipped, previous tick still running")
		return
	}
	defer w.running.Store(false)

	tickNumber := atomic.AddInt64(&w.tick, 1)

	if w.cfg.CleanupEveryNTicks > 0 && tickNumber%int64(w.cfg.CleanupEveryNTicks) == 0 {
		cutoff := w.clock.Now().Add(-w.cfg.RetentionWindow).UnixMilli()
		if deleted, err := w.queue.DeleteCompletedSummaryRequests(ctx, cutoff); err != nil {
			w.logger.Error("summary worker: cleanup failed", "error", err)
		} else if deleted > 0 {
			w.logger.Info("summary worker: cleanup", "deleted", deleted)
		}
	}

	if w.cfg.StallReleaseEveryNTicks > 0 && tickNumber%int64(w.cfg.StallReleaseEveryNTicks) == 0 {
		if released, err := w.queue.ReleaseStuckSummaryRequests(ctx, w.cfg.StallThreshold.Milliseconds()); err != nil {
			w.logger.Error("summary worker: stall release failed", "error", err)
		} else if released > 0 {
			w.logger.Info("summary worker: stall release", "released", released)
		}
	}

	claimed, err := w.queue.ClaimSummaryRequestBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("summary worker: claim failed", "error", err)
		return
	}

	for _, req := range claimed {
		w.processRequest(ctx, req)
	}
}

// processRequest resolves the owning memory session (re-fetching it
// even if the denormalized memory_session_id on the row is set, since
// that copy may be stale), builds the prompt with best-effort recent
// activity, calls the LLM, parses the summary, persists it, and marks
// the row.
func (w *SummaryWorker) processRequest(ctx context.Context, req queue.RawSummaryRequest) {
	session, err := w.store.GetSessionByID(ctx, req.SessionDBID)
	if err != nil {
		w.fail(ctx, req, fmt.Sprintf("resolving session: %v", err))
		return
	}

	recent, err := w.store.GetRecentObservations(ctx, session.Project, recentActivityLimit)
	if err != nil {
		w.logger.Warn("summary worker: recent activity fetch failed, continuing without it", "error", err)
		recent = nil
	}

	prompt := buildSummaryPrompt(req, recent)
	response, err := w.llm.Complete(ctx, summarySystemPreamble, prompt, llm.MaxTokensSessionSummary)
	if err != nil {
		w.fail(ctx, req, llmFailureMessage(err))
		return
	}

	summary := parser.ParseSummary(response.Content, req.SessionDBID)
	if summary == nil {
		w.fail(ctx, req, "Failed to parse summary from LLM response")
		return
	}

	result, err := w.store.StoreObservations(ctx, session.MemorySessionID, session.Project, nil, summary, 0, response.TotalTokens)
	if err != nil {
		w.fail(ctx, req, fmt.Sprintf("storing summary: %v", err))
		return
	}

	var summaryID int64
	if result.SummaryID != nil {
		summaryID = *result.SummaryID
	}
	if err := w.queue.MarkSummaryRequestCompleted(ctx, req.ID, summaryID); err != nil {
		w.logger.Error("summary worker: mark completed failed", "id", req.ID, "error", err)
	}
}

func (w *SummaryWorker) fail(ctx context.Context, req queue.RawSummaryRequest, message string) {
	if err := w.queue.MarkSummaryRequestFailed(ctx, req.ID, message, w.cfg.MaxRetries); err != nil {
		w.logger.Error("summary worker: mark failed failed", "id", req.ID, "error", err)
	}
}
