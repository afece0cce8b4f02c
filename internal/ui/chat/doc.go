// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive chat view.
//
// The view is a Bubble Tea model: a scrollable transcript viewport over a
// single-line input, with a status bar underneath. Stream updates arrive
// from the chat controller's goroutine through a snapshot coalescer so the
// transcript repaints at a capped frame rate instead of once per token.
package chat
