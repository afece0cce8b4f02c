// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the conversation controller: the single owner of
// the message list and loading flag.
//
// UI state is never ambient. The controller is passed explicitly to the
// views driving it, and its persistence and display side effects are
// expressed through an injected Sink so the streaming pipeline is testable
// without a real storage or display backend.
package chat
