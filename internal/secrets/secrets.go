// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secrets encrypts API keys at rest.
//
// Values are sealed with AES-256-GCM under a key derived via
// PBKDF2-SHA-256 from random key material stored next to the config
// file with 0600 permissions. Encrypted values carry the "ENC:" prefix
// so plaintext and sealed keys can coexist in the same config field.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parleydev/parley/internal/util"
	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// EncryptedPrefix marks a sealed value (format: ENC:base64(salt|nonce|ciphertext)).
const EncryptedPrefix = "ENC:"

const (
	// keySize is the AES-256 key length.
	keySize = 32

	// saltSize is the per-value PBKDF2 salt length.
	saltSize = 16

	// keyFileSize is the random key material stored on disk.
	keyFileSize = 64

	// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000
)

var (
	// ErrInvalidCiphertext indicates the sealed value is malformed.
	ErrInvalidCiphertext = errors.New("invalid encrypted value")

	// ErrDecryptionFailed indicates the wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// zeroBytes clears key material.
// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// KEYCHAIN
// =============================================================================

// Keychain seals and opens secret values using on-disk key material.
type Keychain struct {
	keyPath string
}

// NewKeychain uses key material at path, creating it on first use.
func NewKeychain(path string) *Keychain {
	return &Keychain{keyPath: path}
}

// DefaultKeyPath returns the standard key material location.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley", "secret.key"), nil
}

// loadKeyMaterial reads the key file, generating it if absent.
func (k *Keychain) loadKeyMaterial() ([]byte, error) {
	material, err := os.ReadFile(k.keyPath)
	if err == nil {
		if len(material) < keyFileSize {
			return nil, fmt.Errorf("key file %s is truncated", k.keyPath)
		}
		return material, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	material = make([]byte, keyFileSize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.keyPath), 0700); err != nil {
		return nil, err
	}
	if err := util.AtomicWriteFile(k.keyPath, material, 0600); err != nil {
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	return material, nil
}

// deriveCipher builds the AEAD for a given salt.
func (k *Keychain) deriveCipher(salt []byte) (cipher.AEAD, error) {
	material, err := k.loadKeyMaterial()
	if err != nil {
		return nil, err
	}
	defer zeroBytes(material)

	key := pbkdf2.Key(material, salt, pbkdf2Iterations, keySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// SEAL / OPEN
// =============================================================================

// IsEncrypted reports whether a value carries the encrypted prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Seal encrypts a plaintext value. Sealing an already-sealed value is a
// no-op so callers can seal unconditionally.
func (k *Keychain) Seal(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	aead, err := k.deriveCipher(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, nonce, []byte(value), nil)
	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a sealed value. Plaintext values pass through unchanged,
// so config loading can call Open on every key field.
func (k *Keychain) Open(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(blob) < saltSize {
		return "", ErrInvalidCiphertext
	}
	salt, rest := blob[:saltSize], blob[saltSize:]

	aead, err := k.deriveCipher(salt)
	if err != nil {
		return "", err
	}
	if len(rest) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
