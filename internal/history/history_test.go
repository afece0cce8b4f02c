// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parleydev/parley/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStoreWithDir(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestConversation(t *testing.T, user, assistant string) *model.Conversation {
	t.Helper()
	conv := model.NewConversationWithModel("gpt-4o-mini")
	conv.AddUserMessage(user)
	msg := conv.AddAssistantMessage()
	msg.FinishStreaming(assistant)
	return conv
}

// =============================================================================
// STORE
// =============================================================================

func TestStoreSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	conv := newTestConversation(t, "What is Go?", "Go is a programming language.")

	require.NoError(t, store.Save(conv))

	loaded, err := store.Load(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, loaded.ID)
	assert.Equal(t, conv.Title, loaded.Title)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "What is Go?", loaded.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, loaded.Messages[1].Role)
}

func TestStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveRequiresID(t *testing.T) {
	store := newTestStore(t)
	conv := model.NewConversation()
	conv.ID = ""
	assert.Error(t, store.Save(conv))
}

func TestStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	older := newTestConversation(t, "first question", "first answer")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(older))

	newer := newTestConversation(t, "second question", "second answer")
	require.NoError(t, store.Save(newer))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, newer.ID, metas[0].ID)
	assert.Equal(t, older.ID, metas[1].ID)
	assert.Equal(t, "second question", metas[0].Preview)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestStoreListSkipsCorruptFiles(t *testing.T) {
	store := newTestStore(t)
	conv := newTestConversation(t, "hello", "hi")
	require.NoError(t, store.Save(conv))

	corrupt := filepath.Join(store.BaseDir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, conv.ID, metas[0].ID)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	conv := newTestConversation(t, "hello", "hi")
	require.NoError(t, store.Save(conv))

	require.NoError(t, store.Delete(conv.ID))
	_, err := store.Load(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(conv.ID), ErrNotFound)
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(newTestConversation(t, "a", "b")))
	require.NoError(t, store.Save(newTestConversation(t, "c", "d")))

	require.NoError(t, store.Clear())
	metas, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestStoreEnforcesLimit(t *testing.T) {
	store := newTestStore(t)
	store.MaxConversations = 2

	first := newTestConversation(t, "one", "1")
	first.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Save(first))

	second := newTestConversation(t, "two", "2")
	second.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(second))

	third := newTestConversation(t, "three", "3")
	require.NoError(t, store.Save(third))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	_, err = store.Load(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreZeroLimitKeepsEverything(t *testing.T) {
	store := newTestStore(t)
	store.MaxConversations = 0

	var ids []string
	for i := 0; i < 5; i++ {
		conv := newTestConversation(t, "question", "answer")
		require.NoError(t, store.Save(conv))
		ids = append(ids, conv.ID)
	}

	metas, err := store.List()
	require.NoError(t, err)
	assert.Len(t, metas, 5)
	for _, id := range ids {
		_, err := store.Load(id)
		assert.NoError(t, err)
	}
}

// =============================================================================
// SEARCH INDEX
// =============================================================================

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexSearch(t *testing.T) {
	idx := newTestIndex(t)

	conv := newTestConversation(t, "Explain goroutines", "Goroutines are lightweight threads managed by the Go runtime.")
	require.NoError(t, idx.IndexConversation(conv))

	other := newTestConversation(t, "Best pizza toppings", "Margherita keeps it simple.")
	require.NoError(t, idx.IndexConversation(other))

	results, err := idx.Search("goroutines", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, conv.ID, r.ConversationID)
		assert.Equal(t, conv.Title, r.Title)
		assert.NotEmpty(t, r.Snippet)
	}

	results, err = idx.Search("pizza", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, other.ID, results[0].ConversationID)
}

func TestIndexSearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search("   ", 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIndexQuotesOperators(t *testing.T) {
	idx := newTestIndex(t)
	conv := newTestConversation(t, "what is NEAR in sql", "NEAR is an FTS operator.")
	require.NoError(t, idx.IndexConversation(conv))

	// Operator keywords in user queries are treated as plain terms.
	results, err := idx.Search(`NEAR "quoted"`, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestIndexReplacesOnReindex(t *testing.T) {
	idx := newTestIndex(t)
	conv := newTestConversation(t, "tell me about ferrets", "Ferrets are mustelids.")
	require.NoError(t, idx.IndexConversation(conv))

	// Re-index with changed content; old content must not match anymore.
	conv.Messages[1].Content = "They are playful pets."
	require.NoError(t, idx.IndexConversation(conv))

	results, err := idx.Search("mustelids", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search("playful", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIndexSkipsStreamingMessages(t *testing.T) {
	idx := newTestIndex(t)
	conv := model.NewConversation()
	conv.AddUserMessage("question about volcanoes")
	placeholder := conv.AddAssistantMessage()
	placeholder.SetContent("partial lava answer")

	require.NoError(t, idx.IndexConversation(conv))

	results, err := idx.Search("lava", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search("volcanoes", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIndexRemoveConversation(t *testing.T) {
	idx := newTestIndex(t)
	conv := newTestConversation(t, "about wombats", "Wombats dig burrows.")
	require.NoError(t, idx.IndexConversation(conv))

	require.NoError(t, idx.RemoveConversation(conv.ID))
	results, err := idx.Search("wombats", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexRebuildFromStore(t *testing.T) {
	store := newTestStore(t)
	conv := newTestConversation(t, "beaver facts", "Beavers are among the largest rodents.")
	require.NoError(t, store.Save(conv))

	idx := newTestIndex(t)
	require.NoError(t, idx.Rebuild(store))

	results, err := idx.Search("rodents", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, conv.ID, results[0].ConversationID)
}

func TestIndexClosed(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search("anything", 0)
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.IndexConversation(model.NewConversation()), ErrIndexClosed)
}
