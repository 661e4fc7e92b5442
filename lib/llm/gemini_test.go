// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claude-mem/daemon/lib/llm"
)

func TestGeminiComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			t.Errorf("request URL %q missing api key query param", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "a summary"}}}},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 10, "candidatesTokenCount": 5},
		})
	}))
	defer server.Close()

	provider := llm.NewGemini(server.Client(), "test-key")
	llm.SetGeminiEndpointFormatForTest(provider, server.URL+"/models/%s:generateContent?key=%s")

	response, err := provider.Complete(context.Background(), llm.Request{
		Model:  "gemini-2.0-flash",
		System: "be terse",
		Prompt: "summarize this",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if response.Content != "a summary" {
		t.Errorf("Content = %q, want %q", response.Content, "a summary")
	}
	if response.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15 (prompt 10 + candidates 5)", response.TotalTokens)
	}
}
