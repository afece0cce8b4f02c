// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package speech turns assistant replies into audio.
//
// Synthesis goes through an OpenAI-compatible /audio/speech endpoint;
// the returned audio is cached on disk keyed by a content hash, so
// re-speaking a reply never re-synthesizes it. Playback shells out to
// whatever command-line player the host has (mpv, ffplay, afplay,
// aplay) and is serialized so replies never talk over each other.
package speech
