// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessiontext projects a Thread's messages into the single
// normalized string the embedding generator consumes, and hashes that
// string into the content-addressed cache key used by the job queue.
//
// The projection is pure and deterministic: two threads whose messages
// differ only by user-visible timestamps must hash identically, so that a
// timestamp-only re-save never re-triggers embedding work.
package sessiontext

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/AleutianAI/agent-memory/internal/chatthread"
)

// isoTimestamp matches an ISO-8601 date/time such as "2026-07-30 14:03:05"
// or "2026-07-30T14:03:05". It deliberately ignores fractional seconds and
// timezone offsets — those vary in format across producers and are not
// needed to satisfy the hash-stability invariant.
var isoTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[\sT]\d{2}:\d{2}:\d{2}`)

// whitespaceRun collapses any run of whitespace (including newlines) to a
// single space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize strips timestamps, collapses whitespace, and trims the result.
// It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = isoTimestamp.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// messageText projects a single message to its contribution to the session
// text, per the role-specific rules in spec.md §4.D.
func messageText(m chatthread.Message) string {
	switch m.Role {
	case chatthread.RoleUser:
		return joinTextParts(m.Content)
	case chatthread.RoleAgent:
		return joinTextAndThinkingParts(m.Content)
	case chatthread.RoleResume:
		return ""
	default:
		return ""
	}
}

func joinTextParts(parts []chatthread.ContentPart) string {
	var pieces []string
	for _, p := range parts {
		if p.Kind == chatthread.PartText && p.Text != "" {
			pieces = append(pieces, p.Text)
		}
	}
	return strings.Join(pieces, " ")
}

func joinTextAndThinkingParts(parts []chatthread.ContentPart) string {
	var pieces []string
	for _, p := range parts {
		switch p.Kind {
		case chatthread.PartText, chatthread.PartThinking:
			if p.Text != "" {
				pieces = append(pieces, p.Text)
			}
		}
	}
	return strings.Join(pieces, " ")
}

// Extract projects a thread's messages to the single normalized session
// text used as the embedding generator's input and as the content-hash
// preimage. Per-message strings are newline-joined, skipping empty ones,
// before normalization is applied.
func Extract(messages []chatthread.Message) string {
	var lines []string
	for _, m := range messages {
		if t := messageText(m); t != "" {
			lines = append(lines, t)
		}
	}
	return Normalize(strings.Join(lines, "\n"))
}

// ContentHash returns the hex-encoded SHA-256 digest of a UTF-8 string; it
// is the content-addressed cache key used by MessageEmbedding and by the
// job queue's deduplication (session_id ⊕ "-" ⊕ content_hash).
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
