// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// SNAPSHOT COALESCER
// =============================================================================

// SnapshotCoalescer batches stream updates for rendering. Stream updates
// carry the full accumulated response, so coalescing is trivial: only the
// newest snapshot matters, and intermediate ones can be dropped freely.
// The render loop drains at most one snapshot per frame, capping repaint
// frequency regardless of token rate.
//
// Thread-safety: updates arrive from the streaming goroutine while the
// render loop drains from the Bubble Tea loop.
type SnapshotCoalescer struct {
	mu        sync.Mutex
	latest    string
	dirty     bool
	lastDrain time.Time

	// minInterval is the minimum time between drains (frame budget).
	minInterval time.Duration
}

// defaultMaxFPS caps transcript repaints during streaming.
const defaultMaxFPS = 30

// NewSnapshotCoalescer creates a coalescer with the default frame cap.
func NewSnapshotCoalescer() *SnapshotCoalescer {
	return NewSnapshotCoalescerWithFPS(defaultMaxFPS)
}

// NewSnapshotCoalescerWithFPS creates a coalescer with a custom frame cap.
func NewSnapshotCoalescerWithFPS(maxFPS int) *SnapshotCoalescer {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &SnapshotCoalescer{
		minInterval: time.Second / time.Duration(maxFPS),
	}
}

// Put records the newest full-transcript snapshot, replacing any pending one.
func (c *SnapshotCoalescer) Put(snapshot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = snapshot
	c.dirty = true
}

// Drain returns the pending snapshot if the frame budget allows, and
// (snapshot, true) only when there is something new to paint.
func (c *SnapshotCoalescer) Drain() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || time.Since(c.lastDrain) < c.minInterval {
		return "", false
	}
	c.dirty = false
	c.lastDrain = time.Now()
	return c.latest, true
}

// ForceDrain returns any pending snapshot regardless of the frame budget.
// Called when the stream finishes so the final state always paints.
func (c *SnapshotCoalescer) ForceDrain() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return "", false
	}
	c.dirty = false
	c.lastDrain = time.Now()
	return c.latest, true
}

// Reset discards pending state for a new stream.
func (c *SnapshotCoalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = ""
	c.dirty = false
	c.lastDrain = time.Time{}
}

// Pending reports whether an unpainted snapshot exists.
func (c *SnapshotCoalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// streamTickCmd schedules the next render-loop tick at ~30fps.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
