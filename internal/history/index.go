// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parleydev/parley/internal/model"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrIndexClosed = errors.New("search index closed")
	ErrEmptyQuery  = errors.New("empty search query")
)

// =============================================================================
// SCHEMA
// =============================================================================

// indexSchema defines the search database. The messages table mirrors stored
// conversation content; messages_fts provides full-text search over it.
const indexSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content=messages,
	content_rowid=id
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// schemaVersion bumps when the schema changes incompatibly.
const schemaVersion = "1"

// =============================================================================
// SEARCH INDEX
// =============================================================================

// SearchResult is a single full-text hit.
type SearchResult struct {
	ConversationID string
	Title          string
	MessageID      string
	Role           model.Role
	Snippet        string
	CreatedAt      time.Time
}

// Index provides full-text search over stored conversations. It is derived
// from the JSON store and safe to delete; Rebuild restores it.
type Index struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenIndex opens (creating if needed) the search database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	// SQLite handles one writer at a time; serialize through a single conn.
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) initSchema() error {
	if _, err := idx.db.Exec(indexSchema); err != nil {
		return fmt.Errorf("failed to initialize index schema: %w", err)
	}
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		schemaVersion,
	)
	return err
}

// Close releases the database handle.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return nil
	}
	err := idx.db.Close()
	idx.db = nil
	return err
}

// =============================================================================
// INDEXING
// =============================================================================

// IndexConversation replaces the indexed content for a conversation.
// In-progress messages are skipped; they are indexed once finalized.
func (idx *Index) IndexConversation(conv *model.Conversation) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return ErrIndexClosed
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteConversationTx(tx, conv.ID); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO conversations (id, title, model, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Model, conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (conversation_id, message_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, msg := range conv.Messages {
		if msg.IsStreaming || msg.Content == "" {
			continue
		}
		if _, err := stmt.Exec(conv.ID, msg.ID, string(msg.Role), msg.Content, msg.Timestamp.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveConversation drops a conversation from the index.
func (idx *Index) RemoveConversation(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return ErrIndexClosed
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := deleteConversationTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteConversationTx(tx *sql.Tx, id string) error {
	// Delete through the messages table so the FTS triggers fire.
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// Rebuild reindexes every conversation in the store from scratch.
func (idx *Index) Rebuild(store *Store) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	for _, meta := range metas {
		conv, err := store.Load(meta.ID)
		if err != nil {
			continue // Corrupt files are skipped by List too
		}
		if err := idx.IndexConversation(conv); err != nil {
			return fmt.Errorf("failed to index conversation %s: %w", meta.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SEARCH
// =============================================================================

// Search runs a full-text query over message content. Results are ordered by
// relevance; limit bounds the result count (0 uses a default of 20).
func (idx *Index) Search(query string, limit int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.db == nil {
		return nil, ErrIndexClosed
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := idx.db.Query(`
		SELECT
			m.conversation_id, c.title, m.message_id, m.role,
			snippet(messages_fts, 0, '', '', '...', 16),
			m.created_at
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		ftsQuery, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var role string
		var createdAt int64
		if err := rows.Scan(&r.ConversationID, &r.Title, &r.MessageID, &role, &r.Snippet, &createdAt); err != nil {
			return nil, err
		}
		r.Role = model.Role(role)
		r.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, r)
	}
	return results, rows.Err()
}

// buildFTSQuery quotes each term so user input cannot inject FTS5 operators.
func buildFTSQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, ``)
		if term == "" {
			continue
		}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " ")
}
