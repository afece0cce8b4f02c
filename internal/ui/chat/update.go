// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	chatctl "github.com/parleydev/parley/internal/chat"
)

// errDisplayDuration is how long a transient error line stays visible.
const errDisplayDuration = 5 * time.Second

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshTranscript(false)

	case tea.KeyMsg:
		model, cmd := m.handleKey(msg)
		return model, cmd

	case StreamTickMsg:
		if _, ok := m.coalescer.Drain(); ok {
			m.refreshTranscript(m.sink.scroll.Swap(false))
			m.spinner.Stop()
		}
		if m.streaming {
			cmds = append(cmds, streamTickCmd())
		}

	case StreamFinishedMsg:
		m.streaming = false
		m.spinner.Stop()
		m.cancelStream = nil
		m.coalescer.ForceDrain()
		m.refreshTranscript(true)
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
			cmds = append(cmds, clearErrorCmd())
		}
		if msg.Err == nil && m.index != nil {
			conv := m.conversation()
			index := m.index
			cmds = append(cmds, func() tea.Msg {
				_ = index.IndexConversation(conv)
				return nil
			})
		}

	case SpeechStateMsg:
		m.speaking = false
		m.refreshTranscript(false)

	case SpeechTickMsg:
		m.refreshTranscript(false)
		if m.speaking {
			cmds = append(cmds, speechTickCmd())
		}

	case SearchResultsMsg:
		if m.searching {
			if msg.Err != nil {
				m.err = msg.Err
				cmds = append(cmds, clearErrorCmd())
			} else {
				m.showSearchResults(msg)
			}
		}

	case ErrorMsg:
		m.err = msg.Err
		cmds = append(cmds, clearErrorCmd())

	case ClearErrorMsg:
		m.err = nil

	case ScrollToEndMsg:
		m.viewport.GotoBottom()
	}

	if cmd := m.spinner.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey dispatches keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancelStream != nil {
			m.cancelStream()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.searching {
			m.exitSearch()
			return m, nil
		}
		if m.cancelStream != nil {
			m.cancelStream()
			m.cancelStream = nil
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		// "?" in an empty input toggles help; otherwise it is text.
		if m.input.Value() == "" {
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			return m, nil
		}

	case key.Matches(msg, m.keys.Search):
		// "/" in an empty input starts a history search; otherwise it is
		// text.
		if m.input.Value() == "" && !m.streaming && m.index != nil {
			m.enterSearch()
			return m, nil
		}

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Speak):
		if m.speaker != nil {
			if last := m.conversation().LastAssistantMessage(); last != nil {
				m.speaking = true
				return m, tea.Batch(m.speakCmd(last), speechTickCmd())
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		if err := m.controller.Reset(); err != nil {
			m.err = err
			return m, clearErrorCmd()
		}
		m.refreshTranscript(true)
		return m, nil
	}

	// Everything else goes to the focused input or the viewport.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the current input as a user message, or runs the query while
// search mode is active.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if m.searching {
		if text == "" {
			m.exitSearch()
			return m, nil
		}
		m.input.Reset()
		return m, m.searchCmd(text)
	}
	if text == "" {
		return m, nil
	}
	if m.streaming {
		m.err = chatctl.ErrBusy
		return m, clearErrorCmd()
	}

	m.input.Reset()
	m.coalescer.Reset()
	m.streaming = true
	m.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel

	cmds := []tea.Cmd{
		m.sendCmd(ctx, text),
		m.spinner.Start(),
		streamTickCmd(),
	}
	return m, tea.Batch(cmds...)
}

// clearErrorCmd dismisses the error line after a delay.
func clearErrorCmd() tea.Cmd {
	return tea.Tick(errDisplayDuration, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

// speechTickCmd schedules the next badge repaint while speaking.
func speechTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return SpeechTickMsg{Time: t}
	})
}
