// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	err := AtomicWriteFile(path, []byte(`{"ok":true}`), 0644)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	// Overwrite must replace the old content wholesale.
	err = AtomicWriteFile(path, []byte("v2"), 0644)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 10))
	assert.Equal(t, "hel...", TruncateRunes("hello world", 6))
	assert.Equal(t, "", TruncateRunes("hello", 0))
	// Multi-byte characters must not be split.
	assert.Equal(t, "日本", TruncateRunes("日本語テキスト", 2))
}

func TestTruncateWidth(t *testing.T) {
	assert.Equal(t, "abc", TruncateWidth("abc", 5))
	// CJK characters occupy two columns each.
	got := TruncateWidth("日本語テキスト", 6)
	assert.LessOrEqual(t, StringWidth(got), 6)
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, "hello", NormalizeInput("  hello\n"))
	// Decomposed e + combining acute collapses to the composed form.
	assert.Equal(t, "\u00e9", NormalizeInput("e\u0301"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "4f2a9c1b", ShortID("4f2a9c1b-77aa-4d70-9b5e-000000000000"))
	// Hand-edited history files can carry IDs of any length.
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "", ShortID(""))
	assert.Equal(t, "12345678", ShortID("12345678"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", FirstLine("one\ntwo"))
	assert.Equal(t, "one", FirstLine("one\r\ntwo"))
	assert.Equal(t, "solo", FirstLine("solo"))
}
