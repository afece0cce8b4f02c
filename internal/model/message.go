// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// PLAYBACK STATE
// =============================================================================

// PlaybackState tracks the speech-synthesis lifecycle of a message.
type PlaybackState string

const (
	PlaybackNone         PlaybackState = ""             // No audio requested
	PlaybackSynthesizing PlaybackState = "synthesizing" // Audio being generated
	PlaybackPlaying      PlaybackState = "playing"      // Audio currently playing
	PlaybackDone         PlaybackState = "done"         // Audio played to completion
	PlaybackFailed       PlaybackState = "failed"       // Synthesis or playback failed
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Streaming state (not persisted). While true, Content is replaced
	// wholesale by each accumulated stream update.
	IsStreaming bool `json:"-"`

	// Speech synthesis (assistant messages only)
	Playback  PlaybackState `json:"playback,omitempty"`
	AudioPath string        `json:"audio_path,omitempty"`

	// Generation metrics (assistant messages)
	TokenCount    int           `json:"token_count,omitempty"`
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new empty assistant message in streaming
// state. Its content grows via SetContent until FinishStreaming is called.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          uuid.New().String(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// SetContent replaces the message content wholesale. Stream updates carry
// the full accumulated buffer, not a delta, so replacement is the correct
// operation during streaming.
func (m *Message) SetContent(content string) {
	m.Content = content
}

// FinishStreaming marks the message as complete with its final content.
func (m *Message) FinishStreaming(content string) {
	m.Content = content
	m.IsStreaming = false
}

// IsEmpty reports whether the message has no content.
func (m *Message) IsEmpty() bool {
	return m.Content == ""
}
