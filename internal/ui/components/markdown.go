// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// MarkdownRenderer renders assistant markdown for terminal display.
// Renderers are cached per (style, width) because glamour construction is
// expensive relative to rendering.
type MarkdownRenderer struct {
	mu        sync.Mutex
	style     string
	width     int
	renderer  *glamour.TermRenderer
	renderErr error
}

// NewMarkdownRenderer creates a renderer for a glamour style name
// ("dark", "light", "notty") and wrap width.
func NewMarkdownRenderer(style string, width int) *MarkdownRenderer {
	m := &MarkdownRenderer{style: style}
	m.SetWidth(width)
	return m
}

// SetWidth rebuilds the renderer for a new wrap width. Cheap to call with
// an unchanged width.
func (m *MarkdownRenderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer != nil && width == m.width {
		return
	}
	m.width = width
	m.renderer, m.renderErr = glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
}

// Render converts markdown to styled terminal text. On renderer failure the
// raw markdown is returned so content is never lost.
func (m *MarkdownRenderer) Render(markdown string) string {
	m.mu.Lock()
	renderer, err := m.renderer, m.renderErr
	m.mu.Unlock()

	if err != nil || renderer == nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	// Glamour pads with leading/trailing blank lines; the caller controls
	// spacing between messages.
	return strings.Trim(out, "\n")
}
