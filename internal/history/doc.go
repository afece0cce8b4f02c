// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history provides durable local persistence of conversations.
//
// Conversations are stored as JSON documents, one file per conversation,
// written atomically so a crash never leaves a partially written history.
// An optional SQLite full-text index over message content backs the search
// commands; the index is derived data and can be rebuilt from the JSON
// files at any time.
package history
