// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescerKeepsOnlyLatestSnapshot(t *testing.T) {
	c := NewSnapshotCoalescer()
	c.Put("Hel")
	c.Put("Hello")
	c.Put("Hello, wor")

	got, ok := c.Drain()
	require.True(t, ok)
	assert.Equal(t, "Hello, wor", got)

	// Nothing new: no repaint.
	_, ok = c.Drain()
	assert.False(t, ok)
}

func TestCoalescerFrameBudget(t *testing.T) {
	c := NewSnapshotCoalescerWithFPS(30)
	c.Put("a")
	_, ok := c.Drain()
	require.True(t, ok)

	// Immediately after a drain the budget is spent.
	c.Put("ab")
	_, ok = c.Drain()
	assert.False(t, ok)

	time.Sleep(40 * time.Millisecond)
	got, ok := c.Drain()
	require.True(t, ok)
	assert.Equal(t, "ab", got)
}

func TestCoalescerForceDrainIgnoresBudget(t *testing.T) {
	c := NewSnapshotCoalescerWithFPS(30)
	c.Put("a")
	_, ok := c.Drain()
	require.True(t, ok)

	c.Put("final")
	got, ok := c.ForceDrain()
	require.True(t, ok)
	assert.Equal(t, "final", got)

	_, ok = c.ForceDrain()
	assert.False(t, ok)
}

func TestCoalescerReset(t *testing.T) {
	c := NewSnapshotCoalescer()
	c.Put("pending")
	c.Reset()
	assert.False(t, c.Pending())
	_, ok := c.ForceDrain()
	assert.False(t, ok)
}

func TestCoalescerInvalidFPSFallsBack(t *testing.T) {
	c := NewSnapshotCoalescerWithFPS(0)
	assert.Equal(t, time.Second/defaultMaxFPS, c.minInterval)

	c = NewSnapshotCoalescerWithFPS(1000)
	assert.Equal(t, time.Second/defaultMaxFPS, c.minInterval)
}
