// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	chatctl "github.com/parleydev/parley/internal/chat"
	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/history"
	"github.com/parleydev/parley/internal/model"
	"github.com/parleydev/parley/internal/speech"
	"github.com/parleydev/parley/internal/ui/components"
	"github.com/parleydev/parley/internal/ui/styles"
)

// =============================================================================
// SINK
// =============================================================================

// uiSink receives controller side effects. It runs on the streaming
// goroutine, under the controller lock, so it must never call back into the
// controller: persistence goes straight to the store and render requests go
// through the coalescer and an atomic scroll flag.
type uiSink struct {
	store     *history.Store
	coalescer *SnapshotCoalescer
	scroll    atomic.Bool
}

func (s *uiSink) Persist(conv *model.Conversation) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(conv)
}

func (s *uiSink) ScrollToEnd() {
	s.scroll.Store(true)
	s.coalescer.Put("")
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	controller *chatctl.Controller
	sink       *uiSink
	speaker    *speech.Speaker
	index      *history.Index
	cfg        *config.Config

	theme     *styles.Theme
	keys      KeyMap
	help      help.Model
	viewport  viewport.Model
	input     textinput.Model
	spinner   components.Spinner
	statusbar *components.StatusBar
	markdown  *components.MarkdownRenderer
	coalescer *SnapshotCoalescer

	// snapshot is the deep copy of the conversation the view renders.
	// The live conversation is mutated on the stream goroutine; only
	// snapshots taken under the controller lock cross into the view.
	snapshot *model.Conversation

	width  int
	height int
	ready  bool

	streaming    bool
	cancelStream context.CancelFunc

	speaking  bool
	searching bool
	showHelp  bool
	err       error
}

// Options configures the chat view.
type Options struct {
	// Streamer produces streaming completions; *api.Client satisfies it.
	Streamer chatctl.Streamer

	// Conversation resumes an existing conversation; nil starts fresh.
	Conversation *model.Conversation

	Store   *history.Store
	Index   *history.Index  // Optional search index, updated on completion
	Speaker *speech.Speaker // Optional; nil disables speech keys
	Config  *config.Config

	// AutoSpeak speaks each completed reply via the completion policy.
	AutoSpeak bool
}

// New creates the chat view model and its controller.
func New(opts Options) Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.TextStyle = theme.InputText
	input.CharLimit = 0
	input.Focus()

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	sink := &uiSink{store: opts.Store, coalescer: NewSnapshotCoalescer()}
	controller := chatctl.NewControllerWithConversation(opts.Streamer, sink, opts.Conversation)
	if opts.AutoSpeak && opts.Speaker != nil {
		speaker := opts.Speaker
		controller.SetCompletionPolicy(func(ctx context.Context, msg *model.Message) {
			if msg.IsEmpty() {
				return
			}
			// Playback state lands on the live message through the
			// controller lock; the dirty mark makes the running stream
			// tick repaint the badge.
			_ = speaker.SpeakText(ctx, msg.Content, applyPlayback(controller, msg.ID, func() {
				sink.coalescer.Put("")
			}))
		})
	}

	m := Model{
		controller: controller,
		sink:       sink,
		speaker:    opts.Speaker,
		index:      opts.Index,
		cfg:        cfg,
		theme:      theme,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		input:      input,
		spinner:    components.NewSpinner(theme),
		statusbar:  components.NewStatusBar(theme),
		coalescer:  sink.coalescer,
		width:      80,
		height:     24,
	}
	m.statusbar.Model = cfg.API.Model
	m.statusbar.SpeechOn = opts.AutoSpeak
	m.snapshot = controller.Snapshot()
	return m
}

// applyPlayback routes a speech state change onto the live message under
// the controller lock, then runs notify (if any) to request a repaint.
func applyPlayback(controller *chatctl.Controller, msgID string, notify func()) speech.StateFunc {
	return func(state model.PlaybackState, path string) {
		controller.UpdateMessage(msgID, func(target *model.Message) {
			target.Playback = state
			if path != "" {
				target.AudioPath = path
			}
		})
		if notify != nil {
			notify()
		}
	}
}

// Controller exposes the underlying chat controller, mainly for tests.
func (m Model) Controller() *chatctl.Controller {
	return m.controller
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// conversation returns a deep copy taken under the controller lock, safe
// to read while the stream goroutine mutates the original.
func (m *Model) conversation() *model.Conversation {
	if m.controller == nil {
		return model.NewConversation()
	}
	return m.controller.Snapshot()
}

// sendCmd runs the blocking controller send on its own goroutine.
func (m *Model) sendCmd(ctx context.Context, text string) tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		err := controller.Send(ctx, text)
		return StreamFinishedMsg{Err: err}
	}
}

// searchCmd queries the history index off the update loop.
func (m *Model) searchCmd(query string) tea.Cmd {
	index := m.index
	return func() tea.Msg {
		results, err := index.Search(query, 20)
		return SearchResultsMsg{Query: query, Results: results, Err: err}
	}
}

// speakCmd speaks a snapshot of a message, landing playback state on the
// live original through the controller lock.
func (m *Model) speakCmd(msg *model.Message) tea.Cmd {
	speaker := m.speaker
	controller := m.controller
	return func() tea.Msg {
		if speaker == nil || msg == nil || msg.IsEmpty() || msg.IsStreaming {
			return SpeechStateMsg{}
		}
		_ = speaker.SpeakText(context.Background(), msg.Content, applyPlayback(controller, msg.ID, nil))
		return SpeechStateMsg{}
	}
}
