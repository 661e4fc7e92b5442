// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude-mem/daemon/lib/llm"
)

func TestOpenRouterComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "openai/gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	defer server.Close()

	provider := llm.NewOpenRouter(server.Client(), "test-key")
	llm.SetOpenRouterEndpointForTest(provider, server.URL)

	response, err := provider.Complete(context.Background(), llm.Request{
		Model:       "openai/gpt-4o-mini",
		System:      "be terse",
		Prompt:      "summarize this",
		Temperature: 0.3,
		MaxTokens:   4096,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	if response.Content != "hello there" {
		t.Errorf("Content = %q, want %q", response.Content, "hello there")
	}
	if response.TotalTokens != 42 {
		t.Errorf("TotalTokens = %d, want 42", response.TotalTokens)
	}

	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v, want 2 entries (system, user)", gotBody["messages"])
	}
}

func TestOpenRouterCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	provider := llm.NewOpenRouter(server.Client(), "test-key")
	llm.SetOpenRouterEndpointForTest(provider, server.URL)

	_, err := provider.Complete(context.Background(), llm.Request{Model: "m", Prompt: "p"})
	if err == nil {
		t.Fatal("Complete: want error, got nil")
	}

	var providerErr *llm.ProviderError
	if !asProviderError(err, &providerErr) {
		t.Fatalf("error type = %T, want *llm.ProviderError", err)
	}
	if !providerErr.IsRateLimited() {
		t.Errorf("IsRateLimited() = false, want true for status %d", providerErr.StatusCode)
	}
}

func asProviderError(err error, target **llm.ProviderError) bool {
	if providerErr, ok := err.(*llm.ProviderError); ok {
		*target = providerErr
		return true
	}
	return false
}
