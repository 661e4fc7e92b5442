// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic client for calling a Large
// Language Model to turn raw tool-call or turn data into free-form text.
//
// The primary abstraction is [Provider], a single blocking Complete call.
// This package deliberately does not support streaming or tool use: the
// callers here (summarizer workers) send one prompt and want one string
// of content back, nothing more.
//
// [Client] selects between providers by name when built by [New] and enforces a
// per-call timeout. Two providers are implemented:
//
//   - [OpenRouter]: OpenAI-compatible chat completions API
//   - [Gemini]: Google's generateContent API
package llm
