// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/parleydev/parley/internal/history"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartedMsg signals the request was sent and a response is pending.
type StreamStartedMsg struct {
	StartTime time.Time
}

// StreamTickMsg drives the render loop while a stream is active. Each tick
// drains the snapshot coalescer and repaints if the transcript changed.
type StreamTickMsg struct {
	Time time.Time
}

// StreamFinishedMsg signals the stream ended, successfully or not. Err is
// nil on success; on error the controller has already rolled back or kept
// the partial content.
type StreamFinishedMsg struct {
	Err error
}

// =============================================================================
// SPEECH MESSAGES
// =============================================================================

// SpeechStateMsg signals a speak command finished, successfully or not.
type SpeechStateMsg struct{}

// SpeechTickMsg drives transcript repaints while an utterance is being
// synthesized or played, so the playback badge tracks the live state.
type SpeechTickMsg struct {
	Time time.Time
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// ScrollToEndMsg requests the viewport jump to the newest message.
type ScrollToEndMsg struct{}

// SearchResultsMsg carries the outcome of a history search.
type SearchResultsMsg struct {
	Query   string
	Results []history.SearchResult
	Err     error
}

// ErrorMsg displays a transient error line.
type ErrorMsg struct {
	Err error
}

// ClearErrorMsg dismisses the error line.
type ClearErrorMsg struct{}
