// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the parley command-line interface: command
// parsing, terminal detection, and the non-TUI command handlers.
package cli
