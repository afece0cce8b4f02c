// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/parleydev/parley/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API configuration
	API APIConfig `toml:"api" json:"api"`

	// Speech synthesis configuration
	Speech SpeechConfig `toml:"speech" json:"speech"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// History configuration
	History HistoryConfig `toml:"history" json:"history"`
}

// APIConfig configures the chat-completion endpoint.
type APIConfig struct {
	// BaseURL is the API base URL; any OpenAI-compatible endpoint works.
	BaseURL string `toml:"base_url" json:"base_url"`
	// Key is the API key. May be stored encrypted with an "ENC:" prefix;
	// see the secrets package.
	Key string `toml:"key" json:"key"`
	// Model is the default chat model.
	Model string `toml:"model" json:"model"`
	// Temperature is the sampling temperature (0 = provider default).
	Temperature float64 `toml:"temperature" json:"temperature"`
	// MaxTokens caps completion length (0 = provider default).
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// RequestsPerMinute is the client-side rate limit (0 = unlimited).
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// SpeechConfig configures text-to-speech of assistant replies.
type SpeechConfig struct {
	// Enabled turns on the speak command and TUI speak key.
	Enabled bool `toml:"enabled" json:"enabled"`
	// AutoSpeak speaks every assistant reply as it completes.
	AutoSpeak bool `toml:"auto_speak" json:"auto_speak"`
	// Voice is the synthesis voice name.
	Voice string `toml:"voice" json:"voice"`
	// Model is the synthesis model.
	Model string `toml:"model" json:"model"`
	// Format is the audio container format requested from the API.
	Format string `toml:"format" json:"format"`
	// Player overrides the audio player binary (empty = autodetect).
	Player string `toml:"player" json:"player"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// WordWrap is the rendering width for markdown (0 = terminal width).
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// ShowTimestamps renders message timestamps in the transcript.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	// SyntaxTheme is the chroma style for code blocks.
	SyntaxTheme string `toml:"syntax_theme" json:"syntax_theme"`
}

// HistoryConfig configures local conversation persistence.
type HistoryConfig struct {
	// Dir overrides the history directory (empty = ~/.parley/history).
	Dir string `toml:"dir" json:"dir"`
	// MaxConversations bounds stored conversations (0 = unlimited).
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// SearchIndex enables the SQLite full-text index.
	SearchIndex bool `toml:"search_index" json:"search_index"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 60,
		},
		Speech: SpeechConfig{
			Voice:  "alloy",
			Model:  "tts-1",
			Format: "mp3",
		},
		UI: UIConfig{
			WordWrap:    80,
			SyntaxTheme: "monokai",
		},
		History: HistoryConfig{
			MaxConversations: 100,
			SearchIndex:      true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the parley configuration directory (~/.parley).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// ConfigPathTOML returns the TOML config file path.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the JSON config file path.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from disk, preferring TOML over JSON, applies
// environment overrides, and validates the result. Missing files are not
// an error; defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := loadTOML(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := loadJSON(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath reads configuration from an explicit file, dispatching on
// extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = loadTOML(cfg, path)
	case ".json":
		err = loadJSON(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults backfills zero-valued fields that must not be empty.
func (c *Config) fillDefaults() {
	def := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.Model == "" {
		c.API.Model = def.API.Model
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = def.Speech.Voice
	}
	if c.Speech.Model == "" {
		c.Speech.Model = def.Speech.Model
	}
	if c.Speech.Format == "" {
		c.Speech.Format = def.Speech.Format
	}
	if c.UI.SyntaxTheme == "" {
		c.UI.SyntaxTheme = def.UI.SyntaxTheme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PARLEY_* environment variables on top of the
// loaded configuration. Environment always wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PARLEY_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("PARLEY_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		c.API.Model = v
	}
	if v := os.Getenv("PARLEY_HISTORY_DIR"); v != "" {
		c.History.Dir = v
	}
	if v := os.Getenv("PARLEY_SPEECH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Speech.Enabled = b
		}
	}
	if v := os.Getenv("PARLEY_AUTO_SPEAK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Speech.AutoSpeak = b
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return ValidationError{Field: "api.base_url", Message: "must be an http(s) URL"}
		}
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		return ValidationError{Field: "api.temperature", Message: "must be between 0 and 2"}
	}
	if c.API.MaxTokens < 0 {
		return ValidationError{Field: "api.max_tokens", Message: "must be non-negative"}
	}
	if c.API.RequestsPerMinute < 0 {
		return ValidationError{Field: "api.requests_per_minute", Message: "must be non-negative"}
	}
	if c.History.MaxConversations < 0 {
		return ValidationError{Field: "history.max_conversations", Message: "must be non-negative"}
	}
	switch c.Speech.Format {
	case "", "mp3", "opus", "aac", "flac", "wav", "pcm":
	default:
		return ValidationError{Field: "speech.format", Message: "unsupported audio format"}
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the TOML path atomically.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML. The file is written with 0600
// permissions because it may contain the API key.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// GET / SET BY KEY
// =============================================================================

// Get returns a dotted-key view of a configuration value, for the
// `parley config get` command.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api.base_url":
		return c.API.BaseURL, nil
	case "api.model":
		return c.API.Model, nil
	case "api.temperature":
		return strconv.FormatFloat(c.API.Temperature, 'f', -1, 64), nil
	case "api.max_tokens":
		return strconv.Itoa(c.API.MaxTokens), nil
	case "speech.enabled":
		return strconv.FormatBool(c.Speech.Enabled), nil
	case "speech.auto_speak":
		return strconv.FormatBool(c.Speech.AutoSpeak), nil
	case "speech.voice":
		return c.Speech.Voice, nil
	case "ui.word_wrap":
		return strconv.Itoa(c.UI.WordWrap), nil
	case "ui.syntax_theme":
		return c.UI.SyntaxTheme, nil
	case "history.max_conversations":
		return strconv.Itoa(c.History.MaxConversations), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set assigns a dotted-key configuration value from its string form.
func (c *Config) Set(key, value string) error {
	switch key {
	case "api.base_url":
		c.API.BaseURL = value
	case "api.key":
		c.API.Key = value
	case "api.model":
		c.API.Model = value
	case "api.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature: %q", value)
		}
		c.API.Temperature = f
	case "api.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_tokens: %q", value)
		}
		c.API.MaxTokens = n
	case "speech.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %q", value)
		}
		c.Speech.Enabled = b
	case "speech.auto_speak":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %q", value)
		}
		c.Speech.AutoSpeak = b
	case "speech.voice":
		c.Speech.Voice = value
	case "ui.word_wrap":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid word_wrap: %q", value)
		}
		c.UI.WordWrap = n
	case "ui.syntax_theme":
		c.UI.SyntaxTheme = value
	case "history.max_conversations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_conversations: %q", value)
		}
		c.History.MaxConversations = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return c.Validate()
}

// Keys lists the settable configuration keys.
func Keys() []string {
	return []string{
		"api.base_url",
		"api.key",
		"api.model",
		"api.temperature",
		"api.max_tokens",
		"speech.enabled",
		"speech.auto_speak",
		"speech.voice",
		"ui.word_wrap",
		"ui.syntax_theme",
		"history.max_conversations",
	}
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalMu  sync.RWMutex
	globalCfg *Config
)

// Global returns the process-wide configuration, loading it on first use.
func Global() *Config {
	globalMu.RLock()
	if globalCfg != nil {
		defer globalMu.RUnlock()
		return globalCfg
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCfg == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalCfg = cfg
	}
	return globalCfg
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalCfg = cfg
}
