// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parleydev/parley/internal/api"
	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/history"
	"github.com/parleydev/parley/internal/secrets"
)

// LoadConfig loads the configuration, falling back to defaults with a
// warning rather than refusing to start.
func LoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	config.SetGlobal(cfg)
	return cfg
}

// APIKey resolves the configured API key, decrypting it when sealed.
func APIKey(cfg *config.Config) (string, error) {
	key := cfg.API.Key
	if key == "" {
		return "", api.ErrNotConfigured
	}
	if !secrets.IsEncrypted(key) {
		return key, nil
	}
	keyPath, err := secrets.DefaultKeyPath()
	if err != nil {
		return "", err
	}
	return secrets.NewKeychain(keyPath).Open(key)
}

// BuildClient constructs an API client from config plus command flags.
// Flags recognized: --model/-m, --temperature, --max-tokens.
func BuildClient(cfg *config.Config, args *ArgParser) (*api.Client, error) {
	key, err := APIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: set api.key in config or PARLEY_API_KEY", err)
	}

	client := api.NewClient(key).
		WithBaseURL(cfg.API.BaseURL).
		WithModel(args.FlagOrDefault("model", args.FlagOrDefault("m", cfg.API.Model))).
		WithTemperature(cfg.API.Temperature).
		WithMaxTokens(cfg.API.MaxTokens)

	if cfg.API.RequestsPerMinute > 0 {
		client = client.WithRateLimit(cfg.API.RequestsPerMinute)
	}
	if t := args.Flag("temperature"); t != "" {
		var temp float64
		if _, err := fmt.Sscanf(t, "%g", &temp); err == nil {
			client = client.WithTemperature(temp)
		}
	}
	if n := args.FlagIntOrDefault("max-tokens", 0); n > 0 {
		client = client.WithMaxTokens(n)
	}
	return client, nil
}

// OpenStore opens the conversation store at the configured directory.
func OpenStore(cfg *config.Config) (*history.Store, error) {
	var store *history.Store
	var err error
	if cfg.History.Dir != "" {
		store, err = history.NewStoreWithDir(cfg.History.Dir)
	} else {
		store, err = history.NewStore()
	}
	if err != nil {
		return nil, err
	}
	// Assign unconditionally: an explicit max_conversations = 0 means
	// unlimited, not the constructor default.
	store.MaxConversations = cfg.History.MaxConversations
	return store, nil
}

// OpenSearchIndex opens the history search index if enabled; returns nil
// when the index is disabled.
func OpenSearchIndex(cfg *config.Config, store *history.Store) *history.Index {
	if !cfg.History.SearchIndex {
		return nil
	}
	path := filepath.Join(store.BaseDir, "search.db")
	idx, err := history.OpenIndex(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: search index unavailable: %v\n", err)
		return nil
	}
	return idx
}

// Fatal prints an error and exits non-zero.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
