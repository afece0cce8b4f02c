// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/parleydev/parley/internal/ui/styles"
	"github.com/parleydev/parley/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom status line: model, message count, speech
// state, and key hints.
type StatusBar struct {
	Width        int
	Model        string
	MessageCount int
	Streaming    bool
	SpeechOn     bool

	theme *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{Width: 80, theme: theme}
}

// View renders the status line truncated to the bar width.
func (s *StatusBar) View() string {
	var parts []string
	if s.Model != "" {
		parts = append(parts, s.theme.StatusKey.Render("model")+" "+s.theme.StatusValue.Render(s.Model))
	}
	parts = append(parts, s.theme.StatusValue.Render(fmt.Sprintf("%d msgs", s.MessageCount)))
	if s.Streaming {
		parts = append(parts, s.theme.StatusKey.Render("streaming"))
	}
	if s.SpeechOn {
		parts = append(parts, s.theme.StatusValue.Render("speech on"))
	}
	parts = append(parts, s.theme.StatusValue.Render("? help"))

	line := strings.Join(parts, "  |  ")
	line = util.TruncateWidth(line, s.Width-2)
	return s.theme.StatusBar.Width(s.Width).Render(line)
}
