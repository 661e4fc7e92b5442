// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs the two summarizer tick loops: one over raw
// tool events, one over end-of-turn summary requests. Each loop is
// single-threaded and reentrancy-guarded — a tick that is still
// running when the timer fires again is left alone, the next tick
// simply starts late.
package worker

import (
	"context"
	"errors"
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

// Completer is the subset of *llm.Client an EventWorker and
// SummaryWorker depend on. Tests substitute a fake.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (*llm.Response, error)
}

// EventWorker polls the tool-event queue, builds an LLM prompt per
// session group, materializes the parsed observations, and marks the
// raw rows. Implements spec.md §4.4.
type EventWorker struct {
	queue   *queue.Queue
	store   sessionstore.Interface
	llm     Completer
	clock   clock.Clock
	logger  *slog.Logger
	cfg     EventWorkerConfig
	running atomic.Bool
	tick    int64
}

// EventWorkerConfig tunes one EventWorker's tick loop.
type EventWorkerConfig struct {
	TickInterval            time.Duration
	BatchSize               int
	MaxRetries              int
	StallThreshold          time.Duration
	RetentionWindow         time.Duration
	CleanupEveryNTicks      int
	StallReleaseEveryNTicks int
}

// NewEventWorker constructs an EventWorker. All arguments are
// required.
func NewEventWorker(q *queue.Queue, store sessionstore.Interface, llmClient Completer, clk clock.Clock, logger *slog.Logger, cfg EventWorkerConfig) *EventWorker {
	return &EventWorker{
		queue:  q,
		store:  store,
		llm:    llmClient,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}

// Run blocks, firing Tick on cfg.TickInterval until ctx is canceled.
// It releases all stuck rows once before the first tick, matching the
// startup-threshold-zero contract in spec.md §4.1.
func (w *EventWorker) Run(ctx context.Context) {
	if _, err := w.queue.ReleaseStuckToolEvents(ctx, 0); err != nil {
		w.logger.Error("event worker: startup release failed", "error", err)
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

// Tick runs one pass of the 6-step cycle. If a previous tick is still
// in flight it returns immediately without running another.
func (w *EventWorker) Tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("event worker: tick skipped, previous tick still running")
		return
	}
	defer w.running.Store(false)

	tickNumber := atomic.AddInt64(&w.tick, 1)

	if w.cfg.CleanupEveryNTicks > 0 && tickNumber%int64(w.cfg.CleanupEveryNTicks) == 0 {
		cutoff := w.clock.Now().Add(-w.cfg.RetentionWindow).UnixMilli()
		if deleted, err := w.queue.DeleteCompletedToolEvents(ctx, cutoff); err != nil {
			w.logger.Error("event worker: cleanup failed", "error", err)
		} else if deleted > 0 {
			w.logger.Info("event worker: cleanup", "deleted", deleted)
		}
	}

	if w.cfg.StallReleaseEveryNTicks > 0 && tickNumber%int64(w.cfg.StallReleaseEveryNTicks) == 0 {
		if released, err := w.queue.ReleaseStuckToolEvents(ctx, w.cfg.StallThreshold.Milliseconds()); err != nil {
			w.logger.Error("event worker: stall release failed", "error", err)
		} else if released > 0 {
			w.logger.Info("event worker: stall release", "released", released)
		}
	}

	claimed, err := w.queue.ClaimToolEventBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("event worker: claim failed", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, group := range groupBySession(claimed) {
		w.processGroup(ctx, group)
	}
}

// processGroup handles one session's sub-batch: resolve the session,
// build a prompt, call the LLM, parse, persist, mark each raw row.
func (w *EventWorker) processGroup(ctx context.Context, events []queue.RawToolEvent) {
	session, err := w.store.GetSessionByID(ctx, events[0].SessionDBID)
	if err != nil {
		w.failAll(ctx, events, fmt.Sprintf("resolving session: %v", err))
		return
	}

	prompt := buildEventPrompt(events)
	response, err := w.llm.Complete(ctx, eventSystemPreamble, prompt, llm.MaxTokensEventSummary)
	if err != nil {
		w.failAll(ctx, events, llmFailureMessage(err))
		return
	}

	observations := parser.ParseObservations(response.Content, events[0].ContentSessionID)

	result, err := w.store.StoreObservations(ctx, session.MemorySessionID, session.Project, observations, nil, events[0].PromptNumber, response.TotalTokens)
	if err != nil {
		w.failAll(ctx, events, fmt.Sprintf("storing observations: %v", err))
		return
	}

	// 5f: events outnumbering observations reuse the last observation
	// id; this is a deliberate lossy link, not a bug — observation_id
	// on a completed row is informational only.
	var lastObservationID int64
	for i, event := range events {
		observationID := lastObservationID
		if i < len(result.ObservationIDs) {
			observationID = result.ObservationIDs[i]
			lastObservationID = observationID
		}
		if err := w.queue.MarkToolEventCompleted(ctx, event.ID, observationID); err != nil {
			w.logger.Error("event worker: mark completed failed", "id", event.ID, "error", err)
		}
	}
}

func (w *EventWorker) failAll(ctx context.Context, events []queue.RawToolEvent, message string) {
	for _, event := range events {
		if err := w.queue.MarkToolEventFailed(ctx, event.ID, message, w.cfg.MaxRetries); err != nil {
			w.logger.Error("event worker: mark failed failed", "id", event.ID, "error", err)
		}
	}
}

// llmFailureMessage renders an LLM error for storage in error_message.
// LLMUpstreamError, LLMTimeout, and LLMAuthMissing are all handled
// identically by the caller (markFailed) — this just produces a
// readable record of which one happened.
func llmFailureMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrAuthMissing):
		return "LLM auth missing: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "LLM call timed out: " + err.Error()
	default:
		return "LLM call failed: " + err.Error()
	}
}

// groupBySession partitions a claimed batch into per-session
// sub-batches, preserving each session's original (oldest-first)
// order, and preserving the order sessions first appear in.
func groupBySession(events []queue.RawToolEvent) [][]queue.RawToolEvent {
	order := make([]int64, 0)
	groups := make(map[int64][]queue.RawToolEvent)
	for _, event := range events {
		if _, ok := groups[event.SessionDBID]; !ok {
			order = append(order, event.SessionDBID)
		}
		groups[event.SessionDBID] = append(groups[event.SessionDBID], event)
	}

	result := make([][]queue.RawToolEvent, 0, len(order))
	for _, sessionDBID := range order {
		result = append(result, groups[sessionDBID])
	}
	return result
}
