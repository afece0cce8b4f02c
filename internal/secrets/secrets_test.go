// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeychain(t *testing.T) *Keychain {
	t.Helper()
	return NewKeychain(filepath.Join(t.TempDir(), "secret.key"))
}

func TestSealRoundTrip(t *testing.T) {
	kc := newTestKeychain(t)

	sealed, err := kc.Seal("sk-very-secret")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.NotContains(t, sealed, "very-secret")

	opened, err := kc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", opened)
}

func TestSealIsIdempotent(t *testing.T) {
	kc := newTestKeychain(t)

	sealed, err := kc.Seal("sk-key")
	require.NoError(t, err)
	again, err := kc.Seal(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)
}

func TestSealEmptyPassesThrough(t *testing.T) {
	kc := newTestKeychain(t)
	sealed, err := kc.Seal("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)
}

func TestOpenPlaintextPassesThrough(t *testing.T) {
	kc := newTestKeychain(t)
	opened, err := kc.Open("sk-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "sk-plaintext", opened)
}

func TestSealProducesDistinctCiphertexts(t *testing.T) {
	kc := newTestKeychain(t)
	a, err := kc.Seal("same value")
	require.NoError(t, err)
	b, err := kc.Seal("same value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsMalformed(t *testing.T) {
	kc := newTestKeychain(t)

	_, err := kc.Open("ENC:not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = kc.Open("ENC:AAAA")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestOpenRejectsTampered(t *testing.T) {
	kc := newTestKeychain(t)
	sealed, err := kc.Seal("sk-key")
	require.NoError(t, err)

	// Flip a character near the end of the base64 payload.
	tampered := sealed[:len(sealed)-2] + flip(sealed[len(sealed)-2:len(sealed)-1]) + sealed[len(sealed)-1:]
	_, err = kc.Open(tampered)
	assert.Error(t, err)
}

func flip(s string) string {
	if s == "A" {
		return "B"
	}
	return "A"
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	kc := newTestKeychain(t)
	sealed, err := kc.Seal("sk-key")
	require.NoError(t, err)

	other := newTestKeychain(t)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	kc := NewKeychain(filepath.Join(dir, "secret.key"))
	_, err := kc.Seal("sk-key")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "secret.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSealedValueHasPrefixOnly(t *testing.T) {
	kc := newTestKeychain(t)
	sealed, err := kc.Seal("sk-key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, EncryptedPrefix))
	assert.Equal(t, 1, strings.Count(sealed, ":"))
}
