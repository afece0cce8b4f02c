// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleydev/parley/internal/api"
	"github.com/parleydev/parley/internal/model"
)

// fakeStreamer replays a scripted sequence of events, or fails.
type fakeStreamer struct {
	events []api.StreamEvent
	err    error

	gotMessages []api.ChatMessage
}

func (f *fakeStreamer) ChatStream(ctx context.Context, messages []api.ChatMessage, callback api.StreamCallback) error {
	f.gotMessages = messages
	for _, ev := range f.events {
		callback(ev)
	}
	return f.err
}

// recordingSink counts persist/scroll calls and snapshots message counts.
type recordingSink struct {
	mu         sync.Mutex
	persists   int
	scrolls    int
	persistErr error
	lastLen    int
}

func (s *recordingSink) Persist(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persists++
	s.lastLen = conv.Len()
	return s.persistErr
}

func (s *recordingSink) ScrollToEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls++
}

func helloStreamer() *fakeStreamer {
	return &fakeStreamer{events: []api.StreamEvent{
		{Content: "Hel", Delta: "Hel"},
		{Content: "Hello", Delta: "lo"},
		{Content: "Hello", Done: true},
	}}
}

// generatingStreamer emits n growing updates before completing, so a
// concurrent reader has a long mutation window to overlap with.
type generatingStreamer struct {
	n int
}

func (g *generatingStreamer) ChatStream(ctx context.Context, messages []api.ChatMessage, callback api.StreamCallback) error {
	var buf strings.Builder
	for i := 0; i < g.n; i++ {
		buf.WriteString("x")
		callback(api.StreamEvent{Content: buf.String(), Delta: "x"})
	}
	callback(api.StreamEvent{Content: buf.String(), Done: true})
	return nil
}

func TestControllerSnapshotSafeDuringStreaming(t *testing.T) {
	const updates = 5000
	ctrl := NewController(&generatingStreamer{n: updates}, &recordingSink{})

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Send(context.Background(), "go")
	}()

	// Read message state the way a renderer does, while the stream
	// goroutine keeps replacing placeholder content. Every read goes
	// through a locked deep copy, so this is race-free and each copy is
	// internally consistent.
	for streaming := true; streaming; {
		select {
		case err := <-done:
			require.NoError(t, err)
			streaming = false
		default:
			snap := ctrl.Snapshot()
			for _, msg := range snap.Messages {
				_ = msg.Content
				_ = msg.IsStreaming
			}
			if snap.Len() > 0 {
				// Mutating the copy must not leak into the live state.
				snap.Messages[0].Content = "mutated"
			}
		}
	}

	final := ctrl.Snapshot()
	require.Equal(t, 2, final.Len())
	assert.Equal(t, "go", final.Messages[0].Content)
	assert.Equal(t, strings.Repeat("x", updates), final.Messages[1].Content)
	assert.False(t, final.Messages[1].IsStreaming)
}

func TestControllerUpdateMessageTargetsLiveMessage(t *testing.T) {
	ctrl := NewController(helloStreamer(), &recordingSink{})
	require.NoError(t, ctrl.Send(context.Background(), "hi"))

	reply := ctrl.Conversation().LastAssistantMessage()
	require.NotNil(t, reply)

	ok := ctrl.UpdateMessage(reply.ID, func(m *model.Message) {
		m.Playback = model.PlaybackDone
		m.AudioPath = "/tmp/a.mp3"
	})
	assert.True(t, ok)

	snap := ctrl.Snapshot().LastAssistantMessage()
	assert.Equal(t, model.PlaybackDone, snap.Playback)
	assert.Equal(t, "/tmp/a.mp3", snap.AudioPath)

	assert.False(t, ctrl.UpdateMessage("no-such-id", func(*model.Message) {}))
}

func TestControllerSendStreamsIntoPlaceholder(t *testing.T) {
	streamer := helloStreamer()
	sink := &recordingSink{}
	ctrl := NewController(streamer, sink)

	err := ctrl.Send(context.Background(), "  say hello\n")
	require.NoError(t, err)

	conv := ctrl.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "say hello", conv.Messages[0].Content)

	reply := conv.Messages[1]
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello", reply.Content)
	assert.False(t, reply.IsStreaming)
	assert.Nil(t, conv.InProgress())

	// Persist + scroll fire for the user append and for every event.
	assert.GreaterOrEqual(t, sink.persists, 4)
	assert.GreaterOrEqual(t, sink.scrolls, 4)
	assert.False(t, ctrl.Loading())
}

func TestControllerHistoryExcludesPlaceholder(t *testing.T) {
	streamer := helloStreamer()
	ctrl := NewController(streamer, &recordingSink{})
	ctrl.Conversation().SystemPrompt = "be terse"

	require.NoError(t, ctrl.Send(context.Background(), "hi"))

	require.Len(t, streamer.gotMessages, 2)
	assert.Equal(t, "system", streamer.gotMessages[0].Role)
	assert.Equal(t, "be terse", streamer.gotMessages[0].Content)
	assert.Equal(t, "user", streamer.gotMessages[1].Role)
}

func TestControllerRollsBackEmptyPlaceholderOnError(t *testing.T) {
	boom := errors.New("connection refused")
	streamer := &fakeStreamer{err: boom}
	sink := &recordingSink{}
	ctrl := NewController(streamer, sink)

	err := ctrl.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)

	// The speculative placeholder is gone; the user message remains.
	conv := ctrl.Conversation()
	require.Equal(t, 1, conv.Len())
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.False(t, ctrl.Loading())
}

func TestControllerKeepsPartialContentOnError(t *testing.T) {
	boom := &api.StreamError{Partial: "par", Err: errors.New("reset")}
	streamer := &fakeStreamer{
		events: []api.StreamEvent{{Content: "par", Delta: "par"}},
		err:    boom,
	}
	ctrl := NewController(streamer, &recordingSink{})

	err := ctrl.Send(context.Background(), "hi")
	require.Error(t, err)

	conv := ctrl.Conversation()
	require.Equal(t, 2, conv.Len())
	reply := conv.Messages[1]
	assert.Equal(t, "par", reply.Content)
	assert.False(t, reply.IsStreaming)
}

func TestControllerRejectsEmptyInput(t *testing.T) {
	ctrl := NewController(helloStreamer(), &recordingSink{})
	assert.ErrorIs(t, ctrl.Send(context.Background(), "   \n"), ErrEmptyInput)
	assert.True(t, ctrl.Conversation().IsEmpty())
}

func TestControllerSingleActiveStream(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &blockingStreamer{started: started, release: release}
	ctrl := NewController(blocking, &recordingSink{})

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Send(context.Background(), "first")
	}()
	<-started

	assert.ErrorIs(t, ctrl.Send(context.Background(), "second"), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, ctrl.Loading())
}

// blockingStreamer parks mid-stream until released.
type blockingStreamer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingStreamer) ChatStream(ctx context.Context, messages []api.ChatMessage, callback api.StreamCallback) error {
	close(b.started)
	<-b.release
	callback(api.StreamEvent{Content: "ok", Done: true})
	return nil
}

func TestControllerCompletionPolicy(t *testing.T) {
	ctrl := NewController(helloStreamer(), &recordingSink{})

	var spoken *model.Message
	ctrl.SetCompletionPolicy(func(ctx context.Context, msg *model.Message) {
		spoken = msg
	})

	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	require.NotNil(t, spoken)
	assert.Equal(t, "Hello", spoken.Content)
}

func TestControllerCompletionPolicySkippedOnError(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("down")}
	ctrl := NewController(streamer, &recordingSink{})

	called := false
	ctrl.SetCompletionPolicy(func(ctx context.Context, msg *model.Message) { called = true })

	require.Error(t, ctrl.Send(context.Background(), "hi"))
	assert.False(t, called)
}

func TestControllerReset(t *testing.T) {
	ctrl := NewController(helloStreamer(), &recordingSink{})
	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	require.NoError(t, ctrl.Reset())
	assert.True(t, ctrl.Conversation().IsEmpty())
}
