// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude-mem/daemon/lib/llm"
)

func TestClientAuthMissing(t *testing.T) {
	client := llm.New(llm.ClientConfig{
		Provider: llm.ProviderOpenRouter,
		Timeout:  time.Second,
	})

	_, err := client.Complete(context.Background(), "", "prompt", llm.MaxTokensEventSummary)
	if !errors.Is(err, llm.ErrAuthMissing) {
		t.Fatalf("Complete error = %v, want ErrAuthMissing", err)
	}
}

func TestClientUnknownProviderFallsBackToOpenRouter(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"total_tokens":1}}`))
	}))
	defer server.Close()

	client := llm.New(llm.ClientConfig{
		Provider:         "not-a-real-provider",
		OpenRouterAPIKey: "test-key",
		OpenRouterModel:  "openai/gpt-4o-mini",
		HTTPClient:       server.Client(),
		Timeout:          time.Second,
	})
	llm.SetClientEndpointForTest(t, client, server.URL)

	response, err := client.Complete(context.Background(), "sys", "prompt", llm.MaxTokensEventSummary)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.Content != "ok" {
		t.Errorf("Content = %q, want %q", response.Content, "ok")
	}
	if gotPath == "" {
		t.Error("expected a request to reach the test server")
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"choices":[{"message":{"content":"too slow"}}]}`))
	}))
	defer server.Close()

	client := llm.New(llm.ClientConfig{
		Provider:         llm.ProviderOpenRouter,
		OpenRouterAPIKey: "test-key",
		OpenRouterModel:  "openai/gpt-4o-mini",
		HTTPClient:       server.Client(),
		Timeout:          time.Millisecond,
	})
	llm.SetClientEndpointForTest(t, client, server.URL)

	_, err := client.Complete(context.Background(), "", "prompt", llm.MaxTokensEventSummary)
	if err == nil {
		t.Fatal("Complete: want timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Complete error = %v, want wrapped context.DeadlineExceeded", err)
	}
}
