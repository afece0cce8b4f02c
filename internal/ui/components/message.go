// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/parleydev/parley/internal/model"
	"github.com/parleydev/parley/internal/ui/styles"
	"github.com/parleydev/parley/internal/util"
)

// =============================================================================
// MESSAGE VIEW
// =============================================================================

// MessageView renders a single conversation message for the transcript.
type MessageView struct {
	Message       *model.Message
	Width         int
	ShowTimestamp bool

	theme    *styles.Theme
	markdown *MarkdownRenderer
}

// NewMessageView creates a message view. The markdown renderer is shared
// across messages by the caller; it may be nil for plain rendering.
func NewMessageView(msg *model.Message, theme *styles.Theme, markdown *MarkdownRenderer) *MessageView {
	return &MessageView{
		Message:       msg,
		Width:         80,
		ShowTimestamp: true,
		theme:         theme,
		markdown:      markdown,
	}
}

// SetWidth sets the render width.
func (v *MessageView) SetWidth(width int) {
	v.Width = width
}

// View renders the message.
func (v *MessageView) View() string {
	switch v.Message.Role {
	case model.RoleUser:
		return v.renderUser()
	case model.RoleAssistant:
		return v.renderAssistant()
	case model.RoleSystem:
		return v.renderSystem()
	default:
		return v.renderSystem()
	}
}

func (v *MessageView) renderUser() string {
	header := v.theme.UserLabel.Render(v.Message.Role.DisplayName())
	if ts := v.timestamp(); ts != "" {
		header += " " + ts
	}
	body := v.theme.UserText.
		Width(v.contentWidth()).
		Render(v.Message.Content)
	return header + "\n" + body
}

func (v *MessageView) renderAssistant() string {
	header := v.theme.AssistantLabel.Render(v.Message.Role.DisplayName())
	if ts := v.timestamp(); ts != "" {
		header += " " + ts
	}
	if badge := v.playbackBadge(); badge != "" {
		header += " " + badge
	}

	content := v.Message.Content
	if content == "" && v.Message.IsStreaming {
		content = "..."
	}

	var body string
	if v.Message.IsStreaming || v.markdown == nil {
		// Raw text while streaming: re-rendering markdown on every update
		// makes half-open fences flicker.
		body = v.theme.AssistantText.
			Width(v.contentWidth()).
			Render(content)
	} else {
		v.markdown.SetWidth(v.contentWidth() - 2)
		body = v.theme.AssistantText.Render(v.markdown.Render(content))
	}
	return header + "\n" + body
}

func (v *MessageView) renderSystem() string {
	line := v.Message.Role.DisplayName() + ": " + util.FirstLine(v.Message.Content)
	return v.theme.SystemText.Render(util.TruncateWidth(line, v.contentWidth()))
}

func (v *MessageView) contentWidth() int {
	w := v.Width - 2
	if w < 20 {
		w = 20
	}
	return w
}

func (v *MessageView) timestamp() string {
	if !v.ShowTimestamp {
		return ""
	}
	return v.theme.Timestamp.Render(v.Message.Timestamp.Format("15:04"))
}

// playbackBadge shows the speech state for spoken messages.
func (v *MessageView) playbackBadge() string {
	switch v.Message.Playback {
	case model.PlaybackSynthesizing:
		return v.theme.PlaybackActive.Render("[synthesizing]")
	case model.PlaybackPlaying:
		return v.theme.PlaybackActive.Render("[speaking]")
	case model.PlaybackDone:
		return v.theme.PlaybackDone.Render("[spoken]")
	case model.PlaybackFailed:
		return v.theme.PlaybackFailed.Render("[speech failed]")
	default:
		return ""
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// RenderTranscript renders a whole conversation for the viewport.
func RenderTranscript(conv *model.Conversation, width int, theme *styles.Theme, markdown *MarkdownRenderer, showTimestamps bool) string {
	var sections []string
	for _, msg := range conv.Messages {
		view := NewMessageView(msg, theme, markdown)
		view.SetWidth(width)
		view.ShowTimestamp = showTimestamps
		sections = append(sections, view.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(sections, "\n\n"))
}
