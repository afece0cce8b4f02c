// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/parleydev/parley/internal/api"
	"github.com/parleydev/parley/internal/model"
	"github.com/parleydev/parley/internal/util"
)

// Error variables for controller misuse.
var (
	// ErrBusy indicates a send was attempted while a stream is active.
	// Only one stream may be active at a time.
	ErrBusy = errors.New("a response is already streaming")

	// ErrEmptyInput indicates the submitted input was empty after
	// normalization.
	ErrEmptyInput = errors.New("empty input")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Sink receives the side effects of each stream update: persist the current
// message list to durable local storage, and request the view scroll to its
// end. Implementations must tolerate being called once per delta.
type Sink interface {
	Persist(conv *model.Conversation) error
	ScrollToEnd()
}

// Streamer produces a streaming chat completion. *api.Client satisfies it.
type Streamer interface {
	ChatStream(ctx context.Context, messages []api.ChatMessage, callback api.StreamCallback) error
}

// CompletionPolicy runs after a stream completes successfully. The richer
// client variant uses it to auto-trigger speech synthesis on the final
// text; the simpler variant leaves it nil. It is a caller-level policy, not
// part of the reducer's contract.
type CompletionPolicy func(ctx context.Context, msg *model.Message)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns a conversation and drives streaming sends against it.
type Controller struct {
	mu sync.Mutex

	conv    *model.Conversation
	loading bool

	streamer     Streamer
	sink         Sink
	onCompletion CompletionPolicy
}

// NewController creates a controller over a fresh conversation.
func NewController(streamer Streamer, sink Sink) *Controller {
	return &Controller{
		conv:     model.NewConversation(),
		streamer: streamer,
		sink:     sink,
	}
}

// NewControllerWithConversation resumes an existing conversation.
func NewControllerWithConversation(streamer Streamer, sink Sink, conv *model.Conversation) *Controller {
	if conv == nil {
		conv = model.NewConversation()
	}
	return &Controller{
		conv:     conv,
		streamer: streamer,
		sink:     sink,
	}
}

// SetCompletionPolicy installs the post-completion hook.
func (c *Controller) SetCompletionPolicy(policy CompletionPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompletion = policy
}

// Conversation returns the owned conversation. Callers must not mutate it
// while a stream is active; concurrent readers use Snapshot instead.
func (c *Controller) Conversation() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Snapshot returns a deep copy of the conversation taken under the lock.
// Views render the copy, so the stream goroutine can keep mutating the
// original without the reader ever observing a half-written message.
func (c *Controller) Snapshot() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Clone()
}

// UpdateMessage runs fn on the identified live message under the lock.
// Background work (speech playback) uses it to mutate message state while
// views snapshot concurrently. Returns false when the ID is no longer in
// the conversation.
func (c *Controller) UpdateMessage(id string, fn func(*model.Message)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.conv.Messages {
		if msg.ID == id {
			fn(msg)
			return true
		}
	}
	return false
}

// Loading reports whether a stream is currently active.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Reset clears the conversation wholesale and persists the empty state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}
	c.conv.Clear()
	return c.sink.Persist(c.conv)
}

// =============================================================================
// SEND
// =============================================================================

// Send submits user input and streams the assistant's reply into the
// conversation. It blocks until the stream completes or fails.
//
// The user message and an assistant placeholder are appended before the
// request starts; every stream update replaces the placeholder content
// wholesale with the full accumulated buffer, then persists and scrolls via
// the sink. On a fatal stream error the speculative placeholder is rolled
// back if it received no content, and the error is surfaced for the caller
// to display; there is no retry.
func (c *Controller) Send(ctx context.Context, input string) error {
	content := util.NormalizeInput(input)
	if content == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.loading = true

	c.conv.AddUserMessage(content)
	c.persistLocked()
	c.sink.ScrollToEnd()

	placeholder := c.conv.AddAssistantMessage()
	history := c.historyLocked()
	c.mu.Unlock()

	start := time.Now()
	var firstDelta time.Duration

	err := c.streamer.ChatStream(ctx, history, func(ev api.StreamEvent) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if ev.Done {
			placeholder.FinishStreaming(ev.Content)
			placeholder.TTFT = firstDelta
			placeholder.TotalDuration = time.Since(start)
		} else {
			if firstDelta == 0 {
				firstDelta = time.Since(start)
			}
			placeholder.SetContent(ev.Content)
			placeholder.TokenCount++
		}
		c.persistLocked()
		c.sink.ScrollToEnd()
	})

	c.mu.Lock()
	c.loading = false

	if err != nil {
		// Roll back the speculative placeholder unless partial content
		// already reached it; partial replies are kept and finalized so
		// the user does not lose received text.
		if placeholder.IsEmpty() {
			c.conv.RemoveLast()
		} else if placeholder.IsStreaming {
			placeholder.FinishStreaming(placeholder.Content)
		}
		c.persistLocked()
		c.mu.Unlock()
		return err
	}

	policy := c.onCompletion
	c.mu.Unlock()

	if policy != nil {
		policy(ctx, placeholder)
	}
	return nil
}

// historyLocked builds the wire message history, excluding the trailing
// streaming placeholder. Caller must hold the mutex.
func (c *Controller) historyLocked() []api.ChatMessage {
	history := make([]api.ChatMessage, 0, c.conv.Len())
	if c.conv.SystemPrompt != "" {
		history = append(history, api.NewSystemMessage(c.conv.SystemPrompt))
	}
	for _, msg := range c.conv.Messages {
		if msg.IsStreaming {
			continue
		}
		history = append(history, api.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	return history
}

// persistLocked persists the conversation, logging rather than failing the
// stream on storage errors. Caller must hold the mutex.
func (c *Controller) persistLocked() {
	if err := c.sink.Persist(c.conv); err != nil {
		log.Printf("chat: persist failed: %v", err)
	}
}
