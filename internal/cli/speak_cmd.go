// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/speech"
)

const speakUsage = `parley speak - synthesize text to speech and play it

Usage:
  parley speak [flags] <text>
  echo "text" | parley speak

Flags:
  --last            Speak the last assistant reply instead of text
  --voice NAME      Voice to use (default from config)
  --out FILE        Write audio to a file instead of playing it
  --no-play         Synthesize and cache without playing

Examples:
  parley speak "Hello there"
  parley speak --last
  parley speak --voice nova --out hello.mp3 "Hello there"
`

// HandleSpeak synthesizes text and plays or saves it.
func HandleSpeak(rawArgs []string) error {
	args := NewArgParser(rawArgs)
	cfg := LoadConfig()

	text := strings.TrimSpace(strings.Join(args.Positional(), " "))
	if text == "" && args.BoolFlag("last") {
		last, err := lastAssistantReply(cfg)
		if err != nil {
			return err
		}
		text = speech.Speakable(last)
	}
	if text == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		fmt.Print(speakUsage)
		return fmt.Errorf("no text to speak")
	}
	key, err := APIKey(cfg)
	if err != nil {
		return err
	}

	synth, err := speech.NewSynthesizer(key, cfg.API.BaseURL)
	if err != nil {
		return err
	}
	synth.WithVoice(args.FlagOrDefault("voice", cfg.Speech.Voice)).
		WithModel(cfg.Speech.Model).
		WithFormat(cfg.Speech.Format)

	path, err := synth.Synthesize(context.Background(), text)
	if err != nil {
		return err
	}

	if out := args.Flag("out"); out != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	}

	if args.BoolFlag("no-play") {
		fmt.Println(path)
		return nil
	}

	var player *speech.Player
	if cfg.Speech.Player != "" {
		player = speech.NewPlayerWithCommand(cfg.Speech.Player)
	} else {
		player = speech.NewPlayer()
	}
	return player.Play(context.Background(), path)
}

// lastAssistantReply finds the newest stored conversation's last assistant
// message.
func lastAssistantReply(cfg *config.Config) (string, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return "", err
	}
	metas, err := store.List()
	if err != nil {
		return "", err
	}
	if len(metas) == 0 {
		return "", fmt.Errorf("no stored conversations")
	}
	conv, err := store.Load(metas[0].ID)
	if err != nil {
		return "", err
	}
	last := conv.LastAssistantMessage()
	if last == nil || last.Content == "" {
		return "", fmt.Errorf("no assistant reply to speak")
	}
	return last.Content, nil
}
