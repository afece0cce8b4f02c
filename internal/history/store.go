// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parleydev/parley/internal/model"
	"github.com/parleydev/parley/internal/util"
)

// ErrNotFound indicates the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// previewMaxRunes is the rune budget for listing previews.
const previewMaxRunes = 80

// =============================================================================
// METADATA
// =============================================================================

// Meta contains conversation metadata for listings.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"` // First user message, truncated
}

// =============================================================================
// STORE
// =============================================================================

// Store persists conversations to a directory of JSON documents.
type Store struct {
	// BaseDir is the directory holding conversation files.
	// Default: ~/.parley/history/
	BaseDir string

	// MaxConversations bounds stored conversations (0 = unlimited).
	// Oldest conversations are removed when the bound is exceeded.
	MaxConversations int
}

// NewStore creates a store in the default location.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDir(filepath.Join(home, ".parley", "history"))
}

// NewStoreWithDir creates a store with a custom directory.
func NewStoreWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		BaseDir:          baseDir,
		MaxConversations: 100,
	}, nil
}

// filePath returns the storage path for a conversation ID.
func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists a conversation. Called after every message mutation during
// streaming, so it must stay cheap and atomic.
func (s *Store) Save(conv *model.Conversation) error {
	if conv.ID == "" {
		return errors.New("conversation has no ID")
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation: %w", err)
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return nil
}

// enforceLimit removes the oldest conversations beyond the bound.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	// List is sorted newest first; everything past the bound goes.
	for _, meta := range metas[s.MaxConversations:] {
		os.Remove(s.filePath(meta.ID))
	}
}

// =============================================================================
// LOAD / LIST
// =============================================================================

// Load reads a conversation by ID.
func (s *Store) Load(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List returns metadata for all stored conversations, newest first.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	metas := make([]Meta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupt files rather than failing the listing
		}
		metas = append(metas, metaFor(conv))
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

func metaFor(conv *model.Conversation) Meta {
	meta := Meta{
		ID:           conv.ID,
		Title:        conv.Title,
		Model:        conv.Model,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: conv.Len(),
	}
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser && msg.Content != "" {
			meta.Preview = util.TruncateRunes(util.FirstLine(msg.Content), previewMaxRunes)
			break
		}
	}
	return meta
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Clear removes all stored conversations.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			if err := os.Remove(filepath.Join(s.BaseDir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
