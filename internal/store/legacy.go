// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/agent-memory/internal/chatthread"
)

// versionProbe reads just the top-level "version" field, if any, without
// committing to either the current or legacy JSON shape.
type versionProbe struct {
	Version string `json:"version"`
}

// isCurrentVersion reports whether v is the exact current schema version or
// any "0.3.x" predecessor that deserializes directly (spec.md §4.C).
func isCurrentVersion(v string) bool {
	if v == chatthread.CurrentSchemaVersion {
		return true
	}
	return strings.HasPrefix(v, "0.3.")
}

// decodeThreadJSON turns a thread row's decompressed JSON bytes into a
// Thread, routing payloads with no recognized version field through the
// legacy upgrader.
func decodeThreadJSON(data []byte) (chatthread.Thread, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return chatthread.Thread{}, fmt.Errorf("store: probe thread version: %w", err)
	}

	if isCurrentVersion(probe.Version) {
		var th chatthread.Thread
		if err := json.Unmarshal(data, &th); err != nil {
			return chatthread.Thread{}, fmt.Errorf("store: decode current-version thread: %w", err)
		}
		if th.AgentID == "" {
			th.AgentID = chatthread.NativeAgentID
		}
		if th.AgentType == "" {
			th.AgentType = chatthread.AgentTypeBuiltin
		}
		return th, nil
	}

	var legacy legacyThread
	if err := json.Unmarshal(data, &legacy); err != nil {
		return chatthread.Thread{}, fmt.Errorf("store: decode legacy thread: %w", err)
	}
	return upgradeLegacyThread(legacy), nil
}

// --- legacy wire shapes -----------------------------------------------------

type legacySegment struct {
	Type      string `json:"type"` // "text", "thinking", "redacted_thinking"
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

type legacyToolUse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Input           map[string]any `json:"input,omitempty"`
	RawInput        string         `json:"raw_input,omitempty"`
	IsInputComplete bool           `json:"is_input_complete,omitempty"`
}

type legacyToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type legacyUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type legacyMessage struct {
	ID          string             `json:"id,omitempty"`
	Role        string             `json:"role"` // "system", "user", "assistant"
	Context     string             `json:"context,omitempty"`
	Segments    []legacySegment    `json:"segments,omitempty"`
	ToolUses    []legacyToolUse    `json:"tool_uses,omitempty"`
	ToolResults []legacyToolResult `json:"tool_results,omitempty"`
	Usage       *legacyUsage       `json:"usage,omitempty"`
}

type legacyThread struct {
	Title     string          `json:"title"`
	Messages  []legacyMessage `json:"messages"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// upgradeLegacyThread converts a pre-0.3 thread into the current Thread
// shape, per spec.md §4.C's "Versioned upgrade" rules.
func upgradeLegacyThread(legacy legacyThread) chatthread.Thread {
	th := chatthread.Thread{
		Version:           chatthread.CurrentSchemaVersion,
		Title:             legacy.Title,
		UpdatedAt:         legacy.UpdatedAt,
		RequestTokenUsage: map[string]chatthread.TokenUsage{},
		AgentID:           chatthread.NativeAgentID,
		AgentType:         chatthread.AgentTypeBuiltin,
	}

	var lastUserID string
	for _, lm := range legacy.Messages {
		switch lm.Role {
		case "system":
			continue // System messages are dropped; see DESIGN.md open question.

		case "user":
			lastUserID = lm.ID
			th.Messages = append(th.Messages, upgradeLegacyUserMessage(lm))

		case "assistant":
			th.Messages = append(th.Messages, upgradeLegacyAgentMessage(lm))
			if lm.Usage != nil && lastUserID != "" {
				usage := chatthread.TokenUsage{InputTokens: lm.Usage.InputTokens, OutputTokens: lm.Usage.OutputTokens}
				th.RequestTokenUsage[lastUserID] = usage
				th.CumulativeTokenUsage.InputTokens += usage.InputTokens
				th.CumulativeTokenUsage.OutputTokens += usage.OutputTokens
			}
		}
	}
	return th
}

func upgradeLegacyUserMessage(lm legacyMessage) chatthread.Message {
	var parts []chatthread.ContentPart
	for _, seg := range lm.Segments {
		switch seg.Type {
		case "text", "thinking":
			if seg.Text != "" {
				parts = append(parts, chatthread.ContentPart{Kind: chatthread.PartText, Text: seg.Text})
			}
		}
	}
	if len(parts) == 0 && lm.Context != "" {
		parts = append(parts, chatthread.ContentPart{Kind: chatthread.PartText, Text: lm.Context})
	}
	return chatthread.Message{Role: chatthread.RoleUser, ID: lm.ID, Content: parts}
}

func upgradeLegacyAgentMessage(lm legacyMessage) chatthread.Message {
	var parts []chatthread.ContentPart
	for _, seg := range lm.Segments {
		switch seg.Type {
		case "text":
			parts = append(parts, chatthread.ContentPart{Kind: chatthread.PartText, Text: seg.Text})
		case "thinking":
			parts = append(parts, chatthread.ContentPart{Kind: chatthread.PartThinking, Text: seg.Text, Signature: seg.Signature})
		case "redacted_thinking":
			parts = append(parts, chatthread.ContentPart{Kind: chatthread.PartRedactedThinking, Data: seg.Data})
		}
	}

	toolNameByID := make(map[string]string, len(lm.ToolUses))
	for _, tu := range lm.ToolUses {
		toolNameByID[tu.ID] = tu.Name
		parts = append(parts, chatthread.ContentPart{
			Kind:            chatthread.PartToolUse,
			ID:              tu.ID,
			Name:            tu.Name,
			Input:           tu.Input,
			RawInput:        tu.RawInput,
			IsInputComplete: tu.IsInputComplete,
		})
	}

	var toolResults map[string]chatthread.ToolResult
	if len(lm.ToolResults) > 0 {
		toolResults = make(map[string]chatthread.ToolResult, len(lm.ToolResults))
		for _, tr := range lm.ToolResults {
			name, known := toolNameByID[tr.ToolUseID]
			if !known {
				name = "unknown"
			}
			toolResults[tr.ToolUseID] = chatthread.ToolResult{
				ToolUseID: tr.ToolUseID,
				ToolName:  name,
				Content:   tr.Content,
				IsError:   tr.IsError,
			}
		}
	}

	return chatthread.Message{Role: chatthread.RoleAgent, ID: lm.ID, Content: parts, ToolResults: toolResults}
}
