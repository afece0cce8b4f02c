// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the parley application:
// atomic file writes, rune- and width-aware string handling, and input
// normalization.
package util
