// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader yields a fixed payload in caller-chosen chunk sizes,
// simulating arbitrary network fragmentation including mid-line splits.
type chunkedReader struct {
	chunks [][]byte
}

func newChunkedReader(payload string, sizes ...int) *chunkedReader {
	var chunks [][]byte
	rest := []byte(payload)
	i := 0
	for len(rest) > 0 {
		size := len(rest)
		if len(sizes) > 0 {
			size = sizes[i%len(sizes)]
			i++
			if size > len(rest) {
				size = len(rest)
			}
		}
		chunks = append(chunks, rest[:size])
		rest = rest[size:]
	}
	return &chunkedReader{chunks: chunks}
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

// failingReader errors after yielding an optional prefix.
type failingReader struct {
	prefix []byte
	err    error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.prefix) > 0 {
		n := copy(p, r.prefix)
		r.prefix = r.prefix[n:]
		return n, nil
	}
	return 0, r.err
}

func collect(t *testing.T, src io.Reader) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := NewStreamReducer(src).Run(context.Background(), func(ev StreamEvent) {
		events = append(events, ev)
	})
	return events, err
}

const helloPayload = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
	"data: [DONE]\n"

func TestStreamReducerHelloExample(t *testing.T) {
	events, err := collect(t, strings.NewReader(helloPayload))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, StreamEvent{Content: "Hel", Delta: "Hel"}, events[0])
	assert.Equal(t, StreamEvent{Content: "Hello", Delta: "lo"}, events[1])
	assert.Equal(t, StreamEvent{Content: "Hello", Done: true}, events[2])
}

func TestStreamReducerChunkSplitInvariance(t *testing.T) {
	// The final accumulated text must not depend on chunk boundaries,
	// including splits in the middle of a line or a UTF-8 sequence.
	whole, err := collect(t, strings.NewReader(helloPayload))
	require.NoError(t, err)
	want := whole[len(whole)-1].Content

	for _, sizes := range [][]int{{1}, {2}, {3}, {5}, {7}, {16}, {1, 9}, {4, 1, 1}} {
		events, err := collect(t, newChunkedReader(helloPayload, sizes...))
		require.NoError(t, err, "sizes %v", sizes)
		require.NotEmpty(t, events, "sizes %v", sizes)
		last := events[len(events)-1]
		assert.True(t, last.Done, "sizes %v", sizes)
		assert.Equal(t, want, last.Content, "sizes %v", sizes)
	}
}

func TestStreamReducerSkipsMalformedFrames(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n" +
		"data: [DONE]\n"

	events, err := collect(t, strings.NewReader(payload))
	require.NoError(t, err)

	// The malformed frame must not truncate or corrupt subsequent deltas.
	require.Len(t, events, 3)
	assert.Equal(t, "A", events[0].Content)
	assert.Equal(t, "AB", events[1].Content)
	assert.Equal(t, StreamEvent{Content: "AB", Done: true}, events[2])
}

func TestStreamReducerSentinelIsNotContent(t *testing.T) {
	events, err := collect(t, strings.NewReader("data: [DONE]\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.Equal(t, "", events[0].Content)
}

func TestStreamReducerEOFWithoutSentinel(t *testing.T) {
	// Source exhaustion terminates the stream with the accumulated buffer,
	// including a final line with no trailing newline.
	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"
	events, err := collect(t, strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "tail", events[0].Content)
	assert.Equal(t, StreamEvent{Content: "tail", Done: true}, events[1])
}

func TestStreamReducerReadErrorBeforeAnyFrame(t *testing.T) {
	readErr := errors.New("connection reset")
	events, err := collect(t, &failingReader{err: readErr})

	// Zero update events and one propagated error.
	assert.Empty(t, events)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, "", streamErr.Partial)
}

func TestStreamReducerReadErrorPreservesPartial(t *testing.T) {
	readErr := errors.New("connection reset")
	prefix := "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n"
	events, err := collect(t, &failingReader{prefix: []byte(prefix), err: readErr})

	require.Len(t, events, 1)
	assert.Equal(t, "par", events[0].Content)
	assert.False(t, events[0].Done)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "par", streamErr.Partial)
}

func TestStreamReducerIgnoresNonDataFields(t *testing.T) {
	payload := ": keep-alive comment\n" +
		"event: message\n" +
		"id: 42\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		"data: [DONE]\n"
	events, err := collect(t, strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Content)
}

func TestStreamReducerFinishReasonCompletes(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"fin\"},\"finish_reason\":\"stop\"}]}\n"
	events, err := collect(t, strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "fin", events[0].Content)
	assert.True(t, events[1].Done)
	assert.Equal(t, "fin", events[1].Content)
}

func TestStreamReducerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamReducer(strings.NewReader(helloPayload)).Run(ctx, func(StreamEvent) {})
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamReducerEmptyDeltaProducesNoUpdate(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n" +
		"data: [DONE]\n"
	events, err := collect(t, strings.NewReader(payload))
	require.NoError(t, err)
	// The role-only frame carries no content and emits nothing.
	require.Len(t, events, 2)
	assert.Equal(t, "x", events[0].Content)
}
