// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// STREAMING: SSE parsing with per-frame error tolerance

// doneSentinel is the literal end-of-stream marker. It distinguishes "no
// more data" from ordinary payloads and is never treated as content.
const doneSentinel = "[DONE]"

// dataPrefix marks an SSE data line.
var dataPrefix = []byte("data:")

// =============================================================================
// STREAM EVENT TYPES
// =============================================================================

// StreamEvent is one output of the stream reducer.
//
// Update events (Done == false) carry the FULL accumulated buffer so far,
// not just the delta: consumers replace the displayed message content
// wholesale on each event. Exactly one completion event (Done == true) ends
// every successful stream, carrying the final buffer.
type StreamEvent struct {
	// Content is the full accumulated text so far.
	Content string

	// Delta is the increment carried by the frame that produced this
	// event. Empty for the completion event.
	Delta string

	// Done is true for the single completion event.
	Done bool
}

// StreamCallback receives reducer events in order.
type StreamCallback func(ev StreamEvent)

// streamFrame is the wire shape of one decoded delta frame.
type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the delta text of the first choice.
func (f *streamFrame) content() string {
	if len(f.Choices) > 0 {
		return f.Choices[0].Delta.Content
	}
	return ""
}

// finished reports whether the frame carries a finish reason.
func (f *streamFrame) finished() bool {
	return len(f.Choices) > 0 && f.Choices[0].FinishReason != ""
}

// StreamError represents a fatal stream failure, preserving any partial
// content received before the error so the caller can decide what to keep.
type StreamError struct {
	Partial string // Content accumulated before the error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAM REDUCER
// =============================================================================

// StreamReducer consumes a byte stream of server-sent events carrying
// partial-message deltas and produces a monotonically growing text buffer.
//
// Chunks may split a line arbitrarily; the buffered reader carries partial
// lines across chunk boundaries. A malformed JSON frame is logged and
// skipped, never fatal. A read failure on the underlying source aborts the
// stream with a StreamError.
type StreamReducer struct {
	reader *bufio.Reader

	// PERFORMANCE: strings.Builder avoids quadratic append cost
	buffer strings.Builder

	frameCount int
	completed  bool
}

// NewStreamReducer creates a reducer over an event-stream-formatted source.
func NewStreamReducer(r io.Reader) *StreamReducer {
	return &StreamReducer{reader: bufio.NewReader(r)}
}

// Content returns the accumulated text so far.
func (s *StreamReducer) Content() string {
	return s.buffer.String()
}

// FrameCount returns the number of content-bearing frames consumed.
func (s *StreamReducer) FrameCount() int {
	return s.frameCount
}

// Run reads the stream to completion, invoking the callback for every
// update and once for completion. It blocks until the sentinel terminator,
// source exhaustion, a fatal read error, or context cancellation.
//
// On success the callback has received zero or more update events followed
// by exactly one completion event. On failure no completion event is
// emitted and the returned error is a *StreamError wrapping the cause.
func (s *StreamReducer) Run(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return &StreamError{Partial: s.buffer.String(), Err: ctx.Err()}
		default:
		}

		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			if s.reduceLine(line, callback) {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				// Source exhausted without a sentinel: still a clean
				// termination carrying the last accumulated buffer.
				s.complete(callback)
				return nil
			}
			return &StreamError{Partial: s.buffer.String(), Err: err}
		}
	}
}

// reduceLine consumes one line (possibly the final unterminated one) and
// reports whether the stream is complete.
func (s *StreamReducer) reduceLine(line []byte, callback StreamCallback) bool {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return false // Event separator
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return false // Ignore event:, id:, retry:, and comment lines
	}

	data := bytes.TrimSpace(line[len(dataPrefix):])
	if string(data) == doneSentinel {
		s.complete(callback)
		return true
	}

	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		// Recoverable per-frame decode error: log and skip.
		log.Printf("stream: skipping malformed frame: %v", err)
		return false
	}

	if delta := frame.content(); delta != "" {
		s.buffer.WriteString(delta)
		s.frameCount++
		callback(StreamEvent{
			Content: s.buffer.String(),
			Delta:   delta,
		})
	}

	if frame.finished() {
		s.complete(callback)
		return true
	}
	return false
}

// complete emits the single completion event.
func (s *StreamReducer) complete(callback StreamCallback) {
	if s.completed {
		return
	}
	s.completed = true
	callback(StreamEvent{Content: s.buffer.String(), Done: true})
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion request, reducing the SSE
// response through the callback. It blocks until the stream completes or
// fails. There is no retry policy for streams; a failed request requires
// the user to resend.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, callback StreamCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	reqBody := c.newChatRequest(messages, true)
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	logRequest(req)
	start := time.Now()
	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return handleErrorResponse(resp.StatusCode, body)
	}

	return NewStreamReducer(resp.Body).Run(ctx, callback)
}

// ChatStreamAccumulate performs a streaming chat but returns only the final
// accumulated text. Useful for one-shot callers that want streaming
// transport without incremental display.
func (c *Client) ChatStreamAccumulate(ctx context.Context, messages []ChatMessage) (string, error) {
	var final string
	err := c.ChatStream(ctx, messages, func(ev StreamEvent) {
		final = ev.Content
	})
	if err != nil {
		var streamErr *StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			return streamErr.Partial, err
		}
		return final, err
	}
	return final, nil
}
