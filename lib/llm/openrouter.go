// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"net/http"
)

// defaultOpenRouterEndpoint is OpenRouter's OpenAI-compatible chat
// completions endpoint.
const defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouter implements [Provider] for OpenRouter's chat completions API,
// which follows the OpenAI wire format. Any API implementing that format
// (OpenAI itself, Azure OpenAI, vLLM, Ollama) would work against the same
// wire types with a different endpoint and key.
type OpenRouter struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
}

// NewOpenRouter creates an OpenRouter provider. apiKey is sent as a
// bearer token on every request.
func NewOpenRouter(httpClient *http.Client, apiKey string) *OpenRouter {
	return &OpenRouter{
		httpClient: httpClient,
		apiKey:     apiKey,
		endpoint:   defaultOpenRouterEndpoint,
	}
}

// Complete sends a non-streaming chat completion request and returns the
// full response.
func (provider *OpenRouter) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request)

	headers := map[string]string{
		"Authorization": "Bearer " + provider.apiKey,
	}

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint, wireRequest, headers, "llm/openrouter")
	if err != nil {
		return nil, err
	}

	return decodeResponse[openrouterResponse](httpResponse, "llm/openrouter")
}

// buildRequest converts our Request to the OpenAI chat completions wire
// format.
func (provider *OpenRouter) buildRequest(request Request) openrouterRequest {
	wireRequest := openrouterRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
	}

	if request.System != "" {
		wireRequest.Messages = append(wireRequest.Messages, openrouterMessage{
			Role:    "system",
			Content: request.System,
		})
	}
	wireRequest.Messages = append(wireRequest.Messages, openrouterMessage{
		Role:    "user",
		Content: request.Prompt,
	})

	return wireRequest
}

// --- OpenRouter (OpenAI-compatible) wire types ---

type openrouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openrouterMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type openrouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openrouterResponse struct {
	Model   string             `json:"model"`
	Choices []openrouterChoice `json:"choices"`
	Usage   openrouterUsage    `json:"usage"`
}

type openrouterChoice struct {
	Index   int               `json:"index"`
	Message openrouterMessage `json:"message"`
}

type openrouterUsage struct {
	TotalTokens int64 `json:"total_tokens"`
}

func (wireResp *openrouterResponse) toResponse() *Response {
	response := &Response{
		TotalTokens: wireResp.Usage.TotalTokens,
	}
	if len(wireResp.Choices) > 0 {
		response.Content = wireResp.Choices[0].Message.Content
	}
	return response
}
