// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"log"
	"strings"

	"github.com/parleydev/parley/internal/model"
)

// =============================================================================
// SPEAKER
// =============================================================================

// TextSynthesizer converts text to an audio file and returns its path.
type TextSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// AudioPlayer plays an audio file to completion.
type AudioPlayer interface {
	Play(ctx context.Context, path string) error
}

// Speaker speaks assistant messages aloud, tracking playback state on the
// message as it moves through synthesis and playback.
type Speaker struct {
	synth  TextSynthesizer
	player AudioPlayer
}

// NewSpeaker wires a synthesizer to a player.
func NewSpeaker(synth TextSynthesizer, player AudioPlayer) *Speaker {
	return &Speaker{synth: synth, player: player}
}

// StateFunc applies a playback state change for the utterance being
// spoken. The path is non-empty once synthesis produced an audio file.
type StateFunc func(state model.PlaybackState, audioPath string)

// Speak synthesizes and plays a message, blocking until playback completes.
// The message's Playback field reflects progress throughout. The message
// must not be read concurrently; callers that render while speaking use
// SpeakText and route the state changes through their own lock.
func (s *Speaker) Speak(ctx context.Context, msg *model.Message) error {
	if msg.IsEmpty() || msg.IsStreaming {
		return ErrEmptyText
	}
	return s.SpeakText(ctx, msg.Content, func(state model.PlaybackState, path string) {
		msg.Playback = state
		if path != "" {
			msg.AudioPath = path
		}
	})
}

// SpeakText synthesizes and plays content, reporting progress through
// apply instead of mutating a message directly.
func (s *Speaker) SpeakText(ctx context.Context, content string, apply StateFunc) error {
	apply(model.PlaybackSynthesizing, "")
	path, err := s.synth.Synthesize(ctx, speakableText(content))
	if err != nil {
		apply(model.PlaybackFailed, "")
		return err
	}

	apply(model.PlaybackPlaying, path)
	if err := s.player.Play(ctx, path); err != nil {
		apply(model.PlaybackFailed, path)
		return err
	}
	apply(model.PlaybackDone, path)
	return nil
}

// SpeakInBackground speaks a message without blocking the caller. Errors
// are logged; the message's Playback field carries the outcome.
func (s *Speaker) SpeakInBackground(ctx context.Context, msg *model.Message) {
	go func() {
		if err := s.Speak(ctx, msg); err != nil {
			log.Printf("speech: %v", err)
		}
	}()
}

// =============================================================================
// TEXT PREPARATION
// =============================================================================

// Speakable strips markdown constructs that read poorly aloud, for callers
// that synthesize text without going through a Speaker.
func Speakable(markdown string) string {
	return speakableText(markdown)
}

// speakableText strips markdown constructs that read poorly aloud. Fenced
// code blocks are replaced with a short cue rather than read verbatim.
func speakableText(markdown string) string {
	var out strings.Builder
	inFence := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				out.WriteString("Code example omitted.\n")
			}
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		out.WriteString(stripInlineMarkdown(line))
		out.WriteString("\n")
	}
	return strings.TrimSpace(out.String())
}

// stripInlineMarkdown removes emphasis markers, inline code ticks, heading
// hashes, and link syntax, keeping the readable text.
func stripInlineMarkdown(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	for strings.HasPrefix(trimmed, "#") {
		trimmed = strings.TrimPrefix(trimmed, "#")
	}
	trimmed = strings.TrimLeft(trimmed, " ")

	replacer := strings.NewReplacer(
		"**", "",
		"__", "",
		"`", "",
		"*", "",
	)
	trimmed = replacer.Replace(trimmed)

	// [text](url) -> text
	for {
		open := strings.Index(trimmed, "[")
		if open < 0 {
			break
		}
		mid := strings.Index(trimmed[open:], "](")
		if mid < 0 {
			break
		}
		end := strings.Index(trimmed[open+mid:], ")")
		if end < 0 {
			break
		}
		text := trimmed[open+1 : open+mid]
		trimmed = trimmed[:open] + text + trimmed[open+mid+end+1:]
	}
	return trimmed
}
