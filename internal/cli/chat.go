// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	chatctl "github.com/parleydev/parley/internal/chat"
	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/history"
	"github.com/parleydev/parley/internal/model"
	"github.com/parleydev/parley/internal/speech"
)

const chatUsage = `parley chat - plain line-based chat (no TUI)

Usage:
  parley chat [flags]

Flags:
  -m, --model NAME    Use a specific model
  --resume ID         Resume a stored conversation
  --system PROMPT     System prompt for the session
  --speak             Speak assistant replies aloud

Session commands:
  /new      Start a new conversation
  /speak    Speak the last reply
  /quit     Exit (also Ctrl-D)
`

// =============================================================================
// REPL SINK
// =============================================================================

// replSink persists each update and echoes streamed reply growth straight
// to stdout. It runs under the controller lock, so it never calls back
// into the controller.
type replSink struct {
	store *history.Store

	currentID string
	printed   int
}

func (s *replSink) Persist(conv *model.Conversation) error {
	s.echoProgress(conv)
	if s.store == nil {
		return nil
	}
	return s.store.Save(conv)
}

func (s *replSink) ScrollToEnd() {}

// echoProgress prints the part of the in-progress reply not yet shown.
// Updates carry the full accumulated content, so growth is a suffix.
func (s *replSink) echoProgress(conv *model.Conversation) {
	msg := conv.LastAssistantMessage()
	if msg == nil {
		return
	}
	if msg.ID != s.currentID {
		// Only begin echoing when a new reply starts streaming; a resumed
		// conversation's old replies were already shown.
		if !msg.IsStreaming {
			return
		}
		s.currentID = msg.ID
		s.printed = 0
	}
	if len(msg.Content) > s.printed {
		fmt.Print(msg.Content[s.printed:])
		s.printed = len(msg.Content)
	}
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// HandleChat runs the line-based chat REPL.
func HandleChat(rawArgs []string) {
	args := NewArgParser(rawArgs)
	cfg := LoadConfig()

	client, err := BuildClient(cfg, args)
	if err != nil {
		Fatal(err)
	}
	store, err := OpenStore(cfg)
	if err != nil {
		Fatal(err)
	}
	index := OpenSearchIndex(cfg, store)
	if index != nil {
		defer index.Close()
	}

	var conv *model.Conversation
	if id := args.Flag("resume"); id != "" {
		conv, err = store.Load(id)
		if err != nil {
			Fatal(err)
		}
	}

	sink := &replSink{store: store}
	controller := chatctl.NewControllerWithConversation(client, sink, conv)
	if system := args.Flag("system"); system != "" {
		controller.Conversation().SystemPrompt = system
	}

	speaker := BuildSpeaker(cfg)
	autoSpeak := args.BoolFlag("speak") || (cfg.Speech.Enabled && cfg.Speech.AutoSpeak)
	if autoSpeak && speaker != nil {
		controller.SetCompletionPolicy(func(ctx context.Context, msg *model.Message) {
			if err := speaker.Speak(ctx, msg); err != nil {
				fmt.Fprintf(os.Stderr, "speech: %v\n", err)
			}
		})
	}

	runREPL(controller, speaker, index)
}

// BuildSpeaker wires the synthesizer and player from config. Returns nil
// when speech cannot work here (disabled, no key, no player installed).
func BuildSpeaker(cfg *config.Config) *speech.Speaker {
	if !cfg.Speech.Enabled {
		return nil
	}
	key, err := APIKey(cfg)
	if err != nil {
		return nil
	}
	synth, err := speech.NewSynthesizer(key, cfg.API.BaseURL)
	if err != nil {
		return nil
	}
	synth.WithVoice(cfg.Speech.Voice).
		WithModel(cfg.Speech.Model).
		WithFormat(cfg.Speech.Format)

	var player *speech.Player
	if cfg.Speech.Player != "" {
		player = speech.NewPlayerWithCommand(cfg.Speech.Player)
	} else {
		player = speech.NewPlayer()
	}
	if !player.Available() {
		return nil
	}
	return speech.NewSpeaker(synth, player)
}

// =============================================================================
// REPL LOOP
// =============================================================================

func runREPL(controller *chatctl.Controller, speaker *speech.Speaker, index *history.Index) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := replHistoryPath()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer saveREPLHistory(line, historyPath)

	fmt.Println("parley chat - /quit to exit, /new for a fresh conversation")

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return
			}
			Fatal(err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if handled, quit := handleSessionCommand(input, controller, speaker); handled {
			if quit {
				return
			}
			continue
		}

		if err := controller.Send(context.Background(), input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Println()
		if index != nil {
			_ = index.IndexConversation(controller.Conversation())
		}
	}
}

// handleSessionCommand processes /-commands. Returns (handled, quit).
func handleSessionCommand(input string, controller *chatctl.Controller, speaker *speech.Speaker) (bool, bool) {
	switch input {
	case "/quit", "/exit":
		return true, true
	case "/new":
		if err := controller.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return true, false
	case "/speak":
		if speaker == nil {
			fmt.Fprintln(os.Stderr, "speech is not available")
			return true, false
		}
		last := controller.Conversation().LastAssistantMessage()
		if last == nil {
			fmt.Fprintln(os.Stderr, "nothing to speak yet")
			return true, false
		}
		if err := speaker.Speak(context.Background(), last); err != nil {
			fmt.Fprintf(os.Stderr, "speech: %v\n", err)
		}
		return true, false
	}
	if strings.HasPrefix(input, "/") {
		fmt.Fprintf(os.Stderr, "unknown command %s\n", input)
		return true, false
	}
	return false, false
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".parley", "repl_history")
}

func saveREPLHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
