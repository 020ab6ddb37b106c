// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessiontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/agent-memory/internal/chatthread"
)

func textPart(s string) chatthread.ContentPart {
	return chatthread.ContentPart{Kind: chatthread.PartText, Text: s}
}

func thinkingPart(s string) chatthread.ContentPart {
	return chatthread.ContentPart{Kind: chatthread.PartThinking, Text: s}
}

func TestNormalize_StripsTimestampsAndCollapsesWhitespace(t *testing.T) {
	in := "Started at 2026-07-30 14:03:05 and again at 2026-07-30T14:03:06 done   \n\n  ok"
	out := Normalize(in)
	assert.NotContains(t, out, "2026-07-30")
	assert.NotContains(t, out, "  ")
	assert.Equal(t, out, Normalize(out), "normalize must be idempotent")
}

func TestExtract_UserMessage_OnlyTextParts(t *testing.T) {
	messages := []chatthread.Message{
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{
			textPart("Hello world"),
			{Kind: chatthread.PartImage, Text: "ignored"},
		}},
	}
	assert.Equal(t, "Hello world", Extract(messages))
}

func TestExtract_AgentMessage_TextAndThinkingNotToolUse(t *testing.T) {
	messages := []chatthread.Message{
		{Role: chatthread.RoleAgent, Content: []chatthread.ContentPart{
			thinkingPart("considering options"),
			textPart("Hi there"),
			{Kind: chatthread.PartToolUse, Name: "search", Input: map[string]any{"q": "x"}},
		}},
	}
	got := Extract(messages)
	assert.Contains(t, got, "considering options")
	assert.Contains(t, got, "Hi there")
	assert.NotContains(t, got, "search")
}

func TestExtract_ResumeMessageIsEmpty(t *testing.T) {
	messages := []chatthread.Message{
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("hello")}},
		{Role: chatthread.RoleResume},
	}
	assert.Equal(t, "hello", Extract(messages))
}

func TestExtract_SkipsEmptyLines(t *testing.T) {
	messages := []chatthread.Message{
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("first")}},
		{Role: chatthread.RoleResume},
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("second")}},
	}
	assert.Equal(t, "first second", Extract(messages))
}

func TestContentHash_StableAcrossTimestampOnlyDiff(t *testing.T) {
	a := []chatthread.Message{
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("Ping at 2026-07-30 10:00:00")}},
	}
	b := []chatthread.Message{
		{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("Ping at 2026-07-30 10:00:01")}},
	}
	hashA := ContentHash(Extract(a))
	hashB := ContentHash(Extract(b))
	require.Equal(t, hashA, hashB)
}

func TestContentHash_DiffersOnRealContentChange(t *testing.T) {
	a := Extract([]chatthread.Message{{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("hello")}}})
	b := Extract([]chatthread.Message{{Role: chatthread.RoleUser, Content: []chatthread.ContentPart{textPart("hello world")}}})
	assert.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_IsHexSHA256(t *testing.T) {
	h := ContentHash("hello")
	assert.Len(t, h, 64)
}
