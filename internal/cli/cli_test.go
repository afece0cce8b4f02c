// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleydev/parley/internal/config"
)

func TestArgParserFlagForms(t *testing.T) {
	args := NewArgParser([]string{"show", "--limit", "50", "--since=2026-01-01", "--json", "-m", "gpt-4o"})

	assert.Equal(t, "show", args.Subcommand())
	assert.Equal(t, "50", args.Flag("limit"))
	assert.Equal(t, "2026-01-01", args.Flag("since"))
	assert.True(t, args.BoolFlag("json"))
	assert.Equal(t, "gpt-4o", args.Flag("m"))
}

func TestArgParserExplicitBool(t *testing.T) {
	args := NewArgParser([]string{"--json=false", "--confirm=true"})
	assert.False(t, args.BoolFlag("json"))
	assert.True(t, args.BoolFlag("confirm"))
}

func TestArgParserPositionals(t *testing.T) {
	args := NewArgParser([]string{"search", "error", "handling", "--limit", "5"})
	assert.Equal(t, "search", args.Subcommand())
	assert.Equal(t, []string{"error", "handling"}, args.PositionalAfterSubcommand())
}

func TestArgParserDefaults(t *testing.T) {
	args := NewArgParser(nil)
	assert.Equal(t, "", args.Subcommand())
	assert.Equal(t, "fallback", args.FlagOrDefault("missing", "fallback"))
	assert.Equal(t, 7, args.FlagIntOrDefault("missing", 7))
	assert.False(t, args.BoolFlag("missing"))
}

func TestArgParserFlagAliases(t *testing.T) {
	args := NewArgParser([]string{"--file", "main.go"})
	assert.Equal(t, "main.go", args.Flag("f", "file"))
}

func TestArgParserBadIntFallsBack(t *testing.T) {
	args := NewArgParser([]string{"--limit", "many"})
	assert.Equal(t, 20, args.FlagIntOrDefault("limit", 20))
}

func TestOpenStoreHonorsZeroMaxConversations(t *testing.T) {
	cfg := config.Default()
	cfg.History.Dir = t.TempDir()
	cfg.History.MaxConversations = 0

	store, err := OpenStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, store.MaxConversations)
}

func TestOpenStoreAppliesConfiguredLimit(t *testing.T) {
	cfg := config.Default()
	cfg.History.Dir = t.TempDir()
	cfg.History.MaxConversations = 7

	store, err := OpenStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, store.MaxConversations)
}
