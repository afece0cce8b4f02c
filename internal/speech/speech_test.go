// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/parleydev/parley/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SYNTHESIZER
// =============================================================================

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc) *Synthesizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	synth, err := NewSynthesizer("sk-test", server.URL)
	require.NoError(t, err)
	return synth.WithCacheDir(filepath.Join(t.TempDir(), "audio"))
}

func TestSynthesizeWritesCacheFile(t *testing.T) {
	var gotReq speechRequest
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte("fake-mp3-bytes"))
	})

	path, err := synth.Synthesize(context.Background(), "Hello world")
	require.NoError(t, err)
	assert.Equal(t, ".mp3", filepath.Ext(path))
	assert.Equal(t, "Hello world", gotReq.Input)
	assert.Equal(t, DefaultVoice, gotReq.Voice)
	assert.Equal(t, DefaultSpeechModel, gotReq.Model)
}

func TestSynthesizeCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("audio"))
	})

	first, err := synth.Synthesize(context.Background(), "same text")
	require.NoError(t, err)
	second, err := synth.Synthesize(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSynthesizeDistinctVoicesDistinctCache(t *testing.T) {
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	})

	alloy, err := synth.Synthesize(context.Background(), "text")
	require.NoError(t, err)

	nova, err := synth.WithVoice("nova").Synthesize(context.Background(), "text")
	require.NoError(t, err)
	assert.NotEqual(t, alloy, nova)
}

func TestSynthesizeEmptyText(t *testing.T) {
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := synth.Synthesize(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSynthesizeServerError(t *testing.T) {
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad voice"}`, http.StatusBadRequest)
	})
	_, err := synth.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSynthFailed)
}

func TestSynthesizeEmptyBody(t *testing.T) {
	synth := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := synth.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSynthFailed)
}

func TestNewSynthesizerRequiresKey(t *testing.T) {
	_, err := NewSynthesizer("", "https://example.com/v1")
	assert.Error(t, err)
}

// =============================================================================
// PLAYER
// =============================================================================

func TestPlayerDetectionOrder(t *testing.T) {
	p := NewPlayer()
	p.lookPath = func(name string) (string, error) {
		if name == "ffplay" {
			return "/usr/bin/ffplay", nil
		}
		return "", errors.New("not found")
	}
	assert.True(t, p.Available())
	assert.Equal(t, "ffplay", p.Command())
}

func TestPlayerNoneAvailable(t *testing.T) {
	p := NewPlayer()
	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, p.Available())
	assert.ErrorIs(t, p.Play(context.Background(), "x.mp3"), ErrNoPlayer)
}

func TestPlayerForcedCommand(t *testing.T) {
	p := NewPlayerWithCommand("mycustomplayer")
	assert.Equal(t, "mycustomplayer", p.Command())
}

// =============================================================================
// SPEAKER
// =============================================================================

type fakeSynth struct {
	path string
	err  error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	return f.path, f.err
}

type fakePlayer struct {
	played []string
	err    error
}

func (f *fakePlayer) Play(ctx context.Context, path string) error {
	f.played = append(f.played, path)
	return f.err
}

func finishedMessage(content string) *model.Message {
	msg := model.NewAssistantMessage()
	msg.FinishStreaming(content)
	return msg
}

func TestSpeakerSuccess(t *testing.T) {
	player := &fakePlayer{}
	speaker := NewSpeaker(&fakeSynth{path: "/tmp/a.mp3"}, player)
	msg := finishedMessage("Hello there.")

	require.NoError(t, speaker.Speak(context.Background(), msg))
	assert.Equal(t, model.PlaybackDone, msg.Playback)
	assert.Equal(t, "/tmp/a.mp3", msg.AudioPath)
	assert.Equal(t, []string{"/tmp/a.mp3"}, player.played)
}

func TestSpeakerSynthFailure(t *testing.T) {
	speaker := NewSpeaker(&fakeSynth{err: ErrSynthFailed}, &fakePlayer{})
	msg := finishedMessage("Hello.")

	assert.ErrorIs(t, speaker.Speak(context.Background(), msg), ErrSynthFailed)
	assert.Equal(t, model.PlaybackFailed, msg.Playback)
	assert.Empty(t, msg.AudioPath)
}

func TestSpeakerPlaybackFailure(t *testing.T) {
	playErr := errors.New("device busy")
	speaker := NewSpeaker(&fakeSynth{path: "/tmp/a.mp3"}, &fakePlayer{err: playErr})
	msg := finishedMessage("Hello.")

	assert.ErrorIs(t, speaker.Speak(context.Background(), msg), playErr)
	assert.Equal(t, model.PlaybackFailed, msg.Playback)
}

func TestSpeakerRejectsStreamingMessage(t *testing.T) {
	speaker := NewSpeaker(&fakeSynth{path: "/tmp/a.mp3"}, &fakePlayer{})
	msg := model.NewAssistantMessage()
	msg.SetContent("still going")

	assert.ErrorIs(t, speaker.Speak(context.Background(), msg), ErrEmptyText)
	assert.Equal(t, model.PlaybackNone, msg.Playback)
}

func TestSpeakTextReportsTransitions(t *testing.T) {
	speaker := NewSpeaker(&fakeSynth{path: "/tmp/a.mp3"}, &fakePlayer{})

	var states []model.PlaybackState
	var gotPath string
	err := speaker.SpeakText(context.Background(), "Hello.", func(state model.PlaybackState, path string) {
		states = append(states, state)
		if path != "" {
			gotPath = path
		}
	})

	require.NoError(t, err)
	assert.Equal(t, []model.PlaybackState{
		model.PlaybackSynthesizing,
		model.PlaybackPlaying,
		model.PlaybackDone,
	}, states)
	assert.Equal(t, "/tmp/a.mp3", gotPath)
}

func TestSpeakTextReportsFailure(t *testing.T) {
	speaker := NewSpeaker(&fakeSynth{err: ErrSynthFailed}, &fakePlayer{})

	var last model.PlaybackState
	err := speaker.SpeakText(context.Background(), "Hello.", func(state model.PlaybackState, _ string) {
		last = state
	})

	assert.ErrorIs(t, err, ErrSynthFailed)
	assert.Equal(t, model.PlaybackFailed, last)
}

// =============================================================================
// TEXT PREPARATION
// =============================================================================

func TestSpeakableTextStripsCodeFences(t *testing.T) {
	input := "Here is an example:\n```go\nfunc main() {}\n```\nThat was it."
	got := speakableText(input)
	assert.Contains(t, got, "Here is an example:")
	assert.Contains(t, got, "Code example omitted.")
	assert.Contains(t, got, "That was it.")
	assert.NotContains(t, got, "func main")
}

func TestSpeakableTextStripsInlineMarkdown(t *testing.T) {
	assert.Equal(t, "Heading", speakableText("## Heading"))
	assert.Equal(t, "bold and code", speakableText("**bold** and `code`"))
	assert.Equal(t, "see the docs here", speakableText("see the docs [here](https://example.com)"))
}
