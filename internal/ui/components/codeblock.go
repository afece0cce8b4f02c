// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/parleydev/parley/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock renders a fenced code block with syntax highlighting. Used for
// standalone code output (the `ask` command's code mode); inside chat
// transcripts glamour handles fences itself.
type CodeBlock struct {
	Language string
	Code     string
	MaxWidth int
	Theme    string // Chroma style name, e.g. "monokai"
}

// NewCodeBlock creates a code block with defaults.
func NewCodeBlock(language, code string) CodeBlock {
	return CodeBlock{
		Language: language,
		Code:     code,
		MaxWidth: 80,
		Theme:    "monokai",
	}
}

// Render renders the code block with a language badge and border.
func (c CodeBlock) Render() string {
	code := strings.TrimRight(c.Code, "\n")

	language := c.Language
	if language == "" {
		language = detectLanguage(code)
	}
	highlighted := Highlight(code, language, c.Theme)

	var header string
	if language != "" {
		header = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Bold(true).
			Render(language) + "\n"
	}

	maxWidth := c.MaxWidth - 4
	if maxWidth < 20 {
		maxWidth = 20
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + highlighted)
}

// =============================================================================
// HIGHLIGHTING
// =============================================================================

// Highlight applies chroma terminal highlighting to source code. The input
// is returned unchanged when the language is unknown or formatting fails.
func Highlight(code, language, theme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(theme)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return code
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var sb strings.Builder
	if err := formatter.Format(&sb, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(sb.String(), "\n")
}

// detectLanguage guesses a language from code content for unfenced blocks.
func detectLanguage(code string) string {
	lexer := lexers.Analyse(code)
	if lexer == nil {
		return ""
	}
	cfg := lexer.Config()
	if cfg == nil || len(cfg.Aliases) == 0 {
		return ""
	}
	return cfg.Aliases[0]
}

// =============================================================================
// FENCE EXTRACTION
// =============================================================================

// Fence is one fenced code block extracted from markdown.
type Fence struct {
	Language string
	Code     string
}

// ExtractFences returns every fenced code block in a markdown document, in
// order. Used by the copy-code command and code-only output mode.
func ExtractFences(markdown string) []Fence {
	var fences []Fence
	var current []string
	var language string
	inFence := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				fences = append(fences, Fence{
					Language: language,
					Code:     strings.Join(current, "\n"),
				})
				current = nil
				inFence = false
			} else {
				language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				inFence = true
			}
			continue
		}
		if inFence {
			current = append(current, line)
		}
	}
	return fences
}
