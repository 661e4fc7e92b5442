// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

// SetOpenRouterEndpointForTest overrides the endpoint an [OpenRouter]
// provider calls, so tests can point it at an httptest.Server instead of
// the real OpenRouter API.
func SetOpenRouterEndpointForTest(provider *OpenRouter, endpoint string) {
	provider.endpoint = endpoint
}

// SetGeminiEndpointFormatForTest overrides the endpoint format string a
// [Gemini] provider uses, so tests can point it at an httptest.Server.
func SetGeminiEndpointFormatForTest(provider *Gemini, format string) {
	provider.endpointFormat = format
}

// testingT is the subset of *testing.T this file needs, avoiding an
// import of the "testing" package from non-test code.
type testingT interface {
	Fatalf(format string, args ...any)
}

// SetClientEndpointForTest overrides the endpoint of the provider a
// [Client] was constructed with, so tests can point it at an
// httptest.Server. Fails the test if the client's provider does not
// support endpoint override.
func SetClientEndpointForTest(t testingT, client *Client, endpoint string) {
	switch provider := client.provider.(type) {
	case *OpenRouter:
		provider.endpoint = endpoint
	case *Gemini:
		provider.endpointFormat = endpoint + "/models/%s:generateContent?key=%s"
	default:
		t.Fatalf("SetClientEndpointForTest: unsupported provider type %T", provider)
	}
}
