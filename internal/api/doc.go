// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for OpenAI-compatible chat-completion
// APIs, including the SSE stream reducer that turns a streaming response
// body into incremental full-buffer updates.
//
// The client handles request construction, authentication, typed error
// mapping, client-side rate limiting, and retry with exponential backoff
// for non-streaming calls. Streaming calls are never retried; a failed
// stream surfaces a StreamError carrying any partial content so the caller
// can roll back speculative state.
package api
