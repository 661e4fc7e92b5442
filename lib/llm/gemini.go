// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"net/http"
)

// defaultGeminiEndpointFormat is Google's generateContent endpoint. The
// model and API key are both part of the URL rather than request headers.
const defaultGeminiEndpointFormat = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

// Gemini implements [Provider] for Google's generateContent API.
type Gemini struct {
	httpClient     *http.Client
	apiKey         string
	endpointFormat string
}

// NewGemini creates a Gemini provider. apiKey is appended to the request
// URL as Google's API expects.
func NewGemini(httpClient *http.Client, apiKey string) *Gemini {
	return &Gemini{
		httpClient:     httpClient,
		apiKey:         apiKey,
		endpointFormat: defaultGeminiEndpointFormat,
	}
}

// Complete sends a non-streaming generateContent request and returns the
// full response.
func (provider *Gemini) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request)
	endpoint := fmt.Sprintf(provider.endpointFormat, request.Model, provider.apiKey)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		endpoint, wireRequest, nil, "llm/gemini")
	if err != nil {
		return nil, err
	}

	return decodeResponse[geminiResponse](httpResponse, "llm/gemini")
}

// buildRequest converts our Request to Gemini's generateContent wire
// format. Gemini has no distinct system role on the contents list; the
// system instruction is a sibling field.
func (provider *Gemini) buildRequest(request Request) geminiRequest {
	wireRequest := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: request.Prompt}},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     request.Temperature,
			MaxOutputTokens: request.MaxTokens,
		},
	}

	if request.System != "" {
		wireRequest.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: request.System}},
		}
	}

	return wireRequest
}

// --- Gemini wire types ---

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
}

func (wireResp *geminiResponse) toResponse() *Response {
	response := &Response{
		TotalTokens: wireResp.UsageMetadata.PromptTokenCount + wireResp.UsageMetadata.CandidatesTokenCount,
	}

	if len(wireResp.Candidates) > 0 {
		var text string
		for _, part := range wireResp.Candidates[0].Content.Parts {
			text += part.Text
		}
		response.Content = text
	}

	return response
}
