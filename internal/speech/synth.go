// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/parleydev/parley/internal/util"
)

// Synthesis limits and defaults.
const (
	// DefaultVoice is used when no voice is configured.
	DefaultVoice = "alloy"

	// DefaultSpeechModel is the default TTS model.
	DefaultSpeechModel = "tts-1"

	// DefaultFormat is the default audio container.
	DefaultFormat = "mp3"

	// MaxInputRunes bounds the text sent per synthesis request; the
	// OpenAI endpoint rejects inputs over 4096 characters.
	MaxInputRunes = 4096

	// synthTimeout bounds a single synthesis request.
	synthTimeout = 120 * time.Second

	// maxAudioSize limits downloaded audio bodies.
	maxAudioSize = 50 * 1024 * 1024 // 50MB
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
var sharedSynthClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: synthTimeout,
}

var (
	// ErrEmptyText indicates there is nothing to synthesize.
	ErrEmptyText = errors.New("no text to synthesize")

	// ErrSynthFailed indicates the TTS endpoint rejected the request.
	ErrSynthFailed = errors.New("speech synthesis failed")
)

// =============================================================================
// SYNTHESIZER
// =============================================================================

// Synthesizer converts text to audio files via an OpenAI-compatible
// /audio/speech endpoint.
type Synthesizer struct {
	apiKey   string
	baseURL  string
	model    string
	voice    string
	format   string
	cacheDir string

	httpClient *http.Client
}

// speechRequest is the /audio/speech request body.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// NewSynthesizer creates a synthesizer with default settings.
func NewSynthesizer(apiKey, baseURL string) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("API key not configured")
	}
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      DefaultSpeechModel,
		voice:      DefaultVoice,
		format:     DefaultFormat,
		cacheDir:   cacheDir,
		httpClient: sharedSynthClient,
	}, nil
}

func defaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley", "cache", "audio"), nil
}

// WithVoice sets the voice.
func (s *Synthesizer) WithVoice(voice string) *Synthesizer {
	if voice != "" {
		s.voice = voice
	}
	return s
}

// WithModel sets the TTS model.
func (s *Synthesizer) WithModel(model string) *Synthesizer {
	if model != "" {
		s.model = model
	}
	return s
}

// WithFormat sets the audio format.
func (s *Synthesizer) WithFormat(format string) *Synthesizer {
	if format != "" {
		s.format = format
	}
	return s
}

// WithCacheDir sets the audio cache directory.
func (s *Synthesizer) WithCacheDir(dir string) *Synthesizer {
	if dir != "" {
		s.cacheDir = dir
	}
	return s
}

// =============================================================================
// SYNTHESIS
// =============================================================================

// Synthesize converts text to an audio file and returns its path. Results
// are cached by content hash; a cache hit skips the network entirely.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	text = util.NormalizeInput(text)
	if text == "" {
		return "", ErrEmptyText
	}
	text = util.TruncateRunes(text, MaxInputRunes)

	path := s.cachePath(text)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	audio, err := s.fetch(ctx, text)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audio cache: %w", err)
	}
	if err := util.AtomicWriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("failed to cache audio: %w", err)
	}
	return path, nil
}

// cachePath derives a stable file name from the synthesis parameters, so
// changing the voice or model never serves stale audio.
func (s *Synthesizer) cachePath(text string) string {
	h := sha256.Sum256([]byte(s.model + "\x00" + s.voice + "\x00" + text))
	name := hex.EncodeToString(h[:16]) + "." + s.format
	return filepath.Join(s.cacheDir, name)
}

func (s *Synthesizer) fetch(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, err
	}

	url := s.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	log.Printf("speech: POST %s voice=%s model=%s chars=%d", url, s.voice, s.model, len(text))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrSynthFailed, resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthFailed)
	}
	return audio, nil
}
