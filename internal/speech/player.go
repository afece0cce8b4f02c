// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// ErrNoPlayer indicates no supported audio player is installed.
var ErrNoPlayer = errors.New("no audio player found (install mpv, ffplay, or a platform player)")

// playerCandidate describes one known command-line audio player.
type playerCandidate struct {
	binary string
	args   func(path string) []string
}

// candidatesFor lists players in preference order for an OS.
func candidatesFor(goos string) []playerCandidate {
	common := []playerCandidate{
		{"mpv", func(p string) []string { return []string{"--no-terminal", "--no-video", p} }},
		{"ffplay", func(p string) []string { return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", p} }},
	}
	switch goos {
	case "darwin":
		return append([]playerCandidate{
			{"afplay", func(p string) []string { return []string{p} }},
		}, common...)
	case "linux":
		// aplay only handles WAV; keep it last.
		return append(common, playerCandidate{
			"aplay", func(p string) []string { return []string{"-q", p} },
		})
	default:
		return common
	}
}

// =============================================================================
// PLAYER
// =============================================================================

// Player plays audio files through an external command-line player.
// Playback is serialized: a second Play waits for the first to finish.
type Player struct {
	mu sync.Mutex

	detectOnce sync.Once
	candidate  *playerCandidate
	detectErr  error

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// NewPlayer creates a player. Detection of the underlying binary is
// deferred until first use.
func NewPlayer() *Player {
	return &Player{lookPath: exec.LookPath}
}

// NewPlayerWithCommand forces a specific player binary, bypassing detection.
// Used when config names a player explicitly.
func NewPlayerWithCommand(binary string) *Player {
	p := NewPlayer()
	if binary != "" {
		p.detectOnce.Do(func() {
			p.candidate = &playerCandidate{
				binary: binary,
				args:   func(path string) []string { return []string{path} },
			}
		})
	}
	return p
}

// Available reports whether a supported player is installed.
func (p *Player) Available() bool {
	p.detect()
	return p.detectErr == nil
}

// Command returns the detected player binary name, or "" if none.
func (p *Player) Command() string {
	p.detect()
	if p.candidate == nil {
		return ""
	}
	return p.candidate.binary
}

func (p *Player) detect() {
	p.detectOnce.Do(func() {
		for _, c := range candidatesFor(runtime.GOOS) {
			if _, err := p.lookPath(c.binary); err == nil {
				c := c
				p.candidate = &c
				return
			}
		}
		p.detectErr = ErrNoPlayer
	})
}

// Play plays an audio file and blocks until playback finishes or the
// context is cancelled.
func (p *Player) Play(ctx context.Context, path string) error {
	p.detect()
	if p.detectErr != nil {
		return p.detectErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.candidate.binary, p.candidate.args(path)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed (%s): %w", p.candidate.binary, err)
	}
	return nil
}
