// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatthread holds the conversation-thread domain types shared by
// the thread store, the session-text extractor, and the embedding job
// queue. It has no persistence or embedding dependency of its own.
package chatthread

import "time"

// CurrentSchemaVersion is the version string stamped on every thread this
// module writes. Threads read back with this version (or any "0.3.x") are
// loaded directly; anything else is routed through the legacy upgrader.
const CurrentSchemaVersion = "0.4.0"

// AgentTypeBuiltin is the agent_type recorded for threads upgraded from the
// legacy format, and the default for native agents.
const AgentTypeBuiltin = "builtin"

// NativeAgentID is the agent_id assigned to upgraded legacy threads.
const NativeAgentID = "native"

// Role distinguishes the three message shapes a Thread can hold.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleResume Role = "resume"
)

// ContentPartKind distinguishes the typed parts inside Message.Content.
type ContentPartKind string

const (
	PartText             ContentPartKind = "text"
	PartImage            ContentPartKind = "image"
	PartThinking         ContentPartKind = "thinking"
	PartRedactedThinking ContentPartKind = "redacted_thinking"
	PartToolUse          ContentPartKind = "tool_use"
)

// ContentPart is one element of a Message's content sequence. Which fields
// are meaningful depends on Kind:
//
//   - PartText: Text.
//   - PartImage: no text/tool fields are populated by this module; image
//     bytes are an external-collaborator concern (out of scope, spec §1).
//   - PartThinking: Text (the reasoning) and Signature.
//   - PartRedactedThinking: Data (opaque, already redacted upstream).
//   - PartToolUse: ID, Name, Input, RawInput, IsInputComplete.
type ContentPart struct {
	Kind ContentPartKind `json:"kind"`

	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`

	ID              string         `json:"id,omitempty"`
	Name            string         `json:"name,omitempty"`
	Input           map[string]any `json:"input,omitempty"`
	RawInput        string         `json:"raw_input,omitempty"`
	IsInputComplete bool           `json:"is_input_complete,omitempty"`
}

// ToolResult is the recorded outcome of one ToolUse, keyed by its tool_use
// id on the owning Message.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is a single entry in a Thread's append-only message sequence.
// Role determines which fields are populated:
//
//   - RoleUser: ID, Content (text/image parts only).
//   - RoleAgent: Content (text/thinking/redacted-thinking/tool-use parts)
//     and ToolResults (keyed by the ToolUse id they answer).
//   - RoleResume: no fields populated; a marker the session-text extractor
//     projects to the empty string.
type Message struct {
	Role Role `json:"role"`

	ID      string        `json:"id,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// ToolResults maps a ToolUse.ID from this same message's Content to its
	// result. A ToolResult whose ToolUseID is absent from Content resolves
	// to a synthetic ToolName of "unknown" by the legacy upgrader.
	ToolResults map[string]ToolResult `json:"tool_results,omitempty"`
}

// TokenUsage is per-request token accounting, attributed to the id of the
// user message that triggered it.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Thread is the durable, user-owned entity the thread store persists.
// Messages are append-only within a single Save call; the whole Thread is
// replaced on each save (spec §3).
type Thread struct {
	Version   string    `json:"version"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`

	DetailedSummary        *string `json:"detailed_summary,omitempty"`
	InitialProjectSnapshot *string `json:"initial_project_snapshot,omitempty"`

	CumulativeTokenUsage TokenUsage            `json:"cumulative_token_usage"`
	RequestTokenUsage    map[string]TokenUsage `json:"request_token_usage,omitempty"`

	Model          *string `json:"model,omitempty"`
	CompletionMode *string `json:"completion_mode,omitempty"`
	Profile        *string `json:"profile,omitempty"`

	AgentID   string `json:"agent_id,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
}
