// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/parleydev/parley/internal/ui/components"
	"github.com/parleydev/parley/internal/util"
)

// headerHeight + input line + status bar + error line.
const chromeHeight = 4

// resize lays the view out for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)
	m.statusbar.Width = width
	m.input.Width = width - 4
	m.help.Width = width

	viewportHeight := height - chromeHeight
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.markdown = components.NewMarkdownRenderer(m.theme.GlamourStyle(), width-6)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
		m.markdown.SetWidth(width - 6)
	}
}

// refreshTranscript re-renders the conversation into the viewport.
func (m *Model) refreshTranscript(scrollToEnd bool) {
	if !m.ready || m.searching {
		return
	}
	conv := m.conversation()
	m.snapshot = conv
	m.statusbar.MessageCount = conv.Len()
	m.statusbar.Streaming = m.streaming

	content := components.RenderTranscript(
		conv, m.viewport.Width, m.theme, m.markdown, m.cfg.UI.ShowTimestamps,
	)
	m.viewport.SetContent(content)
	if scrollToEnd {
		m.viewport.GotoBottom()
	}
}

// enterSearch switches the input line to history-search mode.
func (m *Model) enterSearch() {
	m.searching = true
	m.input.Prompt = "/ "
	m.input.Placeholder = "Search history..."
	m.input.Reset()
}

// exitSearch restores the normal input line and the transcript.
func (m *Model) exitSearch() {
	m.searching = false
	m.input.Prompt = "> "
	m.input.Placeholder = "Type a message..."
	m.input.Reset()
	m.refreshTranscript(true)
}

// showSearchResults renders history matches into the viewport in place of
// the transcript until search mode exits.
func (m *Model) showSearchResults(msg SearchResultsMsg) {
	if !m.ready {
		return
	}
	var b strings.Builder
	b.WriteString(m.theme.Header.Render(fmt.Sprintf("matches for %q", msg.Query)))
	b.WriteString("\n\n")

	if len(msg.Results) == 0 {
		b.WriteString(m.theme.SystemText.Render("no matches"))
	}
	for _, r := range msg.Results {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		b.WriteString(m.theme.Timestamp.Render(util.ShortID(r.ConversationID) + "  "))
		b.WriteString(m.theme.UserText.Render(util.TruncateRunes(title, 50)))
		b.WriteString("\n    ")
		b.WriteString(m.theme.SystemText.Render(util.TruncateRunes(r.Snippet, 120)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.theme.SystemText.Render("Esc closes search; resume with: parley --resume <id>"))

	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder

	title := m.theme.Title.Render("parley")
	conv := m.snapshot
	if conv == nil {
		conv = m.conversation()
	}
	if conv.Title != "" {
		title += m.theme.Header.Render(" " + conv.Title)
	}
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.spinner.Active() {
		b.WriteString(m.spinner.View())
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(m.theme.ErrorText.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(m.help.View(m.keys))
		b.WriteString("\n")
	}

	b.WriteString(m.statusbar.View())

	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}
