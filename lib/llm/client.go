// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider name constants as read from the settings file. Any value
// other than [ProviderGemini] selects OpenRouter — this includes the
// empty string and any typo, per the documented fallback behavior.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Default per-call token ceilings for the two summarization shapes this
// daemon produces.
const (
	MaxTokensEventSummary   = 4096
	MaxTokensSessionSummary = 2048
)

// completionTemperature is fixed rather than configurable: the prompts
// here ask for compact, literal extraction, not creative variation.
const completionTemperature = 0.3

// ClientConfig configures a [Client].
type ClientConfig struct {
	// Provider selects which backend to call: [ProviderOpenRouter] or
	// [ProviderGemini]. Unknown values fall back to OpenRouter.
	Provider string

	OpenRouterAPIKey string
	OpenRouterModel  string

	GeminiAPIKey string
	GeminiModel  string

	// HTTPClient is used for all provider requests. Defaults to
	// http.DefaultClient if nil.
	HTTPClient *http.Client

	// Timeout bounds every Complete call. Required.
	Timeout time.Duration
}

// Client wraps a single selected [Provider], enforcing a per-call
// timeout and a fixed temperature.
type Client struct {
	provider Provider
	model    string
	apiKey   string
	timeout  time.Duration
}

// New creates a Client from cfg, selecting the provider implementation
// named by cfg.Provider.
func New(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.Provider == ProviderGemini {
		return &Client{
			provider: NewGemini(httpClient, cfg.GeminiAPIKey),
			model:    cfg.GeminiModel,
			apiKey:   cfg.GeminiAPIKey,
			timeout:  cfg.Timeout,
		}
	}

	return &Client{
		provider: NewOpenRouter(httpClient, cfg.OpenRouterAPIKey),
		model:    cfg.OpenRouterModel,
		apiKey:   cfg.OpenRouterAPIKey,
		timeout:  cfg.Timeout,
	}
}

// Complete sends a single prompt with an optional system preamble and
// returns the generated content plus total token usage. maxTokens should
// be one of [MaxTokensEventSummary] or [MaxTokensSessionSummary].
//
// Returns [ErrAuthMissing] if the selected provider has no API key.
// A deadline exceeded on the enforced timeout is wrapped and still
// satisfies errors.Is(err, context.DeadlineExceeded). Non-2xx upstream
// responses are returned as a *[ProviderError].
func (client *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (*Response, error) {
	if client.apiKey == "" {
		return nil, ErrAuthMissing
	}

	callCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	response, err := client.provider.Complete(callCtx, Request{
		Model:       client.model,
		System:      system,
		Prompt:      prompt,
		Temperature: completionTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("llm: call exceeded %s: %w", client.timeout, callCtx.Err())
		}
		return nil, err
	}

	return response, nil
}
