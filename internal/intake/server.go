// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package intake implements the HTTP boundary hooks post raw tool
// events and end-of-turn summaries across. Every handler is designed
// to return in well under the hook's latency budget: a single local
// transactional write, nothing that waits on the network or an LLM.
package intake

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/claude-mem/daemon/internal/proctrack"
	"github.com/claude-mem/daemon/internal/queue"
	"github.com/claude-mem/daemon/internal/sessionstore"
)

// maxRequestBodySize bounds a single intake request. Tool responses
// are already truncated by the queue before storage; this just
// protects the HTTP layer from a pathological body before that
// truncation ever runs.
const maxRequestBodySize = 4 * 1024 * 1024

// Handler serves the three intake endpoints plus the optional stats
// endpoint. It is an http.Handler suitable for service.NewHTTPServer
// or any standard Go HTTP server/mux.
type Handler struct {
	mux     *http.ServeMux
	queue   *queue.Queue
	store   *sessionstore.Store
	tracker *proctrack.Tracker
	reaper  *proctrack.Reaper
	logger  *slog.Logger
}

// Config configures a Handler. Queue, Store, and Logger are required.
// Tracker and Reaper are optional; when absent, /api/stats reports
// zero values for process-tracker depth and orphan-scan totals.
type Config struct {
	Queue   *queue.Queue
	Store   *sessionstore.Store
	Tracker *proctrack.Tracker
	Reaper  *proctrack.Reaper
	Logger  *slog.Logger
}

// NewHandler constructs a Handler and registers its routes.
func NewHandler(cfg Config) *Handler {
	if cfg.Queue == nil {
		panic("intake: Handler: Queue is required")
	}
	if cfg.Store == nil {
		panic("intake: Handler: Store is required")
	}
	if cfg.Logger == nil {
		panic("intake: Handler: Logger is required")
	}

	h := &Handler{
		mux:     http.NewServeMux(),
		queue:   cfg.Queue,
		store:   cfg.Store,
		tracker: cfg.Tracker,
		reaper:  cfg.Reaper,
		logger:  cfg.Logger,
	}

	h.mux.HandleFunc("/api/sessions/init", h.handleSessionInit)
	h.mux.HandleFunc("/api/sessions/observations", h.handleObservations)
	h.mux.HandleFunc("/api/sessions/summary", h.handleSummary)
	h.mux.HandleFunc("/api/stats", h.handleStats)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type sessionInitRequest struct {
	ContentSessionID string `json:"contentSessionId"`
	Project          string `json:"project"`
	Prompt           string `json:"prompt"`
}

// handleSessionInit registers a content session, returning 200 on
// success. Idempotent per ContentSessionID.
func (h *Handler) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	var req sessionInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ContentSessionID == "" {
		http.Error(w, "contentSessionId is required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.InitSession(r.Context(), req.ContentSessionID, req.Project, req.Prompt); err != nil {
		h.logger.Error("intake: session init failed", "content_session_id", req.ContentSessionID, "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type observationsRequest struct {
	SessionDBID      int64  `json:"sessionDbId"`
	ContentSessionID string `json:"contentSessionId"`
	ToolName         string `json:"tool_name"`
	ToolInput        string `json:"tool_input"`
	ToolResponse     string `json:"tool_response"`
	Cwd              string `json:"cwd"`
	PromptNumber     int    `json:"prompt_number"`
	Project          string `json:"project"`
}

// handleObservations inserts one raw tool event and returns its id
// synchronously. The caller does not wait for summarization.
func (h *Handler) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	var req observationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionDBID == 0 || req.ContentSessionID == "" || req.ToolName == "" {
		http.Error(w, "sessionDbId, contentSessionId, and tool_name are required", http.StatusBadRequest)
		return
	}

	id, err := h.queue.InsertRawEvent(r.Context(), queue.RawToolEvent{
		SessionDBID:      req.SessionDBID,
		ContentSessionID: req.ContentSessionID,
		ToolName:         req.ToolName,
		ToolInput:        req.ToolInput,
		ToolResponse:     req.ToolResponse,
		Cwd:              req.Cwd,
		PromptNumber:     req.PromptNumber,
		Project:          req.Project,
	})
	if err != nil {
		h.logger.Error("intake: insert raw event failed", "session_db_id", req.SessionDBID, "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

type summaryRequest struct {
	SessionDBID          int64  `json:"sessionDbId"`
	ContentSessionID     string `json:"contentSessionId"`
	Project              string `json:"project"`
	UserPrompt           string `json:"user_prompt"`
	LastAssistantMessage string `json:"last_assistant_message"`
	MemorySessionID      *int64 `json:"memory_session_id,omitempty"`
}

// handleSummary inserts one end-of-turn summary request. Returns 409
// if a pending or summarizing request already exists for the session
// — the hook is expected to skip the retry rather than double-enqueue.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	var req summaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionDBID == 0 || req.ContentSessionID == "" {
		http.Error(w, "sessionDbId and contentSessionId are required", http.StatusBadRequest)
		return
	}

	id, err := h.queue.InsertRawSummaryRequest(r.Context(), queue.RawSummaryRequest{
		SessionDBID:          req.SessionDBID,
		ContentSessionID:     req.ContentSessionID,
		MemorySessionID:      req.MemorySessionID,
		Project:              req.Project,
		UserPrompt:           req.UserPrompt,
		LastAssistantMessage: req.LastAssistantMessage,
	})
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateSummaryPending) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("intake: insert raw summary request failed", "session_db_id", req.SessionDBID, "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

type statsResponse struct {
	ToolEvents       queue.Stats          `json:"tool_events"`
	SummaryRequests  queue.Stats          `json:"summary_requests"`
	TrackedProcesses int                  `json:"tracked_processes"`
	OrphanScanTotals proctrack.ScanResult `json:"orphan_scan_totals"`
}

// handleStats reports per-queue counts by status plus process-tracker
// depth and cumulative orphan-scan totals. Suggested but optional per
// the documented external interface.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	toolEventStats, err := h.queue.ToolEventStats(r.Context())
	if err != nil {
		h.logger.Error("intake: tool event stats failed", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	summaryStats, err := h.queue.SummaryRequestStats(r.Context())
	if err != nil {
		h.logger.Error("intake: summary request stats failed", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		ToolEvents:      toolEventStats,
		SummaryRequests: summaryStats,
	}
	if h.tracker != nil {
		resp.TrackedProcesses = h.tracker.Depth()
	}
	if h.reaper != nil {
		resp.OrphanScanTotals = h.reaper.Totals()
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeJSON decodes the request body into dst, writing a 400
// response and returning false on any failure (malformed JSON, empty
// body, oversized body).
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := decoder.Decode(dst); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
