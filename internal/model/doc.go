// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is an ordered, append-only sequence of Messages. The only
// in-place mutation permitted is appending streamed content to the most
// recent assistant message while it is marked streaming; at most one message
// is streaming at any time, and it is always the last element.
package model
