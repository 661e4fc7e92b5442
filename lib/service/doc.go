// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP server scaffolding used by the
// daemon's local intake endpoint.
//
// [HTTPServer] binds a TCP listener, signals readiness, serves in a
// background goroutine, and performs a graceful, timeout-bounded
// shutdown when its context is cancelled. Routing, decoding, and
// queue insertion are the caller's handler, not this package's concern.
package service
