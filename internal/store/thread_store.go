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
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/AleutianAI/agent-memory/internal/chatthread"
	"github.com/AleutianAI/agent-memory/internal/sessiontext"
)

// SaveResult reports what the Save call decided about embedding work, so
// callers (and tests) can assert on S1-S3 scenario behavior without poking
// at the database directly.
type SaveResult struct {
	NeedsEmbedding bool
	ContentHash    string
	JobID          string
}

// zstdEncoder (SpeedDefault, klauspost's equivalent of zstd level 3) is
// shared across Save calls; zstd encoders are safe for concurrent use once
// constructed and reused to avoid paying dictionary setup cost per save.
var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

// SaveThread persists a thread under sessionID, atomically updating the
// threads row, the chat_sessions row, and (if content changed) inserting an
// embedding_jobs row, per spec.md §4.C.
func (s *Store) SaveThread(ctx context.Context, sessionID string, th chatthread.Thread) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if th.Version == "" {
		th.Version = chatthread.CurrentSchemaVersion
	}
	if th.AgentID == "" {
		th.AgentID = chatthread.NativeAgentID
	}
	if th.AgentType == "" {
		th.AgentType = chatthread.AgentTypeBuiltin
	}

	payload, err := json.Marshal(th)
	if err != nil {
		return SaveResult{}, fmt.Errorf("store: marshal thread %s: %w", sessionID, err)
	}
	compressed := zstdEncoder.EncodeAll(payload, nil)

	now := time.Now().UTC()
	text := sessiontext.Extract(th.Messages)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("store: begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, summary, updated_at, data_type, data)
		VALUES (?, ?, ?, 'zstd', ?)
		ON CONFLICT(id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at,
			data_type = excluded.data_type, data = excluded.data
	`, sessionID, th.Title, now, compressed)
	if err != nil {
		return SaveResult{}, fmt.Errorf("store: upsert thread %s: %w", sessionID, err)
	}

	priorPending, priorHash, existed, err := s.priorEmbeddingState(ctx, tx, sessionID)
	if err != nil {
		return SaveResult{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, agent_id, agent_type, created_at, updated_at, message_count, pending_embedding, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			agent_type = excluded.agent_type,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count
	`, sessionID, th.AgentID, th.AgentType, now, now, len(th.Messages), th.Version)
	if err != nil {
		return SaveResult{}, fmt.Errorf("store: upsert chat_sessions %s: %w", sessionID, err)
	}

	result := SaveResult{}
	if text != "" {
		hash := sessiontext.ContentHash(text)
		result.ContentHash = hash
		needs := decideNeedsEmbedding(priorPending, existed, priorHash, hash)
		result.NeedsEmbedding = needs

		if needs {
			if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET pending_embedding = 1 WHERE session_id = ?`, sessionID); err != nil {
				return SaveResult{}, fmt.Errorf("store: mark pending_embedding %s: %w", sessionID, err)
			}
			jobID := sessionID + "-" + hash
			result.JobID = jobID
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO embedding_jobs (job_id, session_id, content_hash, status, retry_count, created_at, updated_at)
				VALUES (?, ?, ?, 'pending', 0, ?, ?)
			`, jobID, sessionID, hash, now, now)
			if err != nil {
				return SaveResult{}, fmt.Errorf("store: enqueue job %s: %w", jobID, err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET pending_embedding = 0 WHERE session_id = ?`, sessionID); err != nil {
				return SaveResult{}, fmt.Errorf("store: clear pending_embedding %s: %w", sessionID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("store: commit save %s: %w", sessionID, err)
	}
	return result, nil
}

// priorEmbeddingState reads the chat_sessions.pending_embedding flag and the
// stored session_embeddings.content_hash as they stood before this save, so
// decideNeedsEmbedding can apply spec.md §4.C step 3's rules.
func (s *Store) priorEmbeddingState(ctx context.Context, tx *sql.Tx, sessionID string) (pending bool, hash string, sessionExisted bool, err error) {
	var pendingInt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT pending_embedding FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&pendingInt)
	switch {
	case err == sql.ErrNoRows:
		// No prior chat_sessions row: treat as "no prior embedding state",
		// needs_embedding is decided purely by "no SessionEmbedding row".
		err = nil
	case err != nil:
		return false, "", false, fmt.Errorf("store: read prior chat_sessions %s: %w", sessionID, err)
	default:
		sessionExisted = true
		pending = pendingInt.Int64 == 1
	}

	var h sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM session_embeddings WHERE session_id = ?`, sessionID).Scan(&h)
	switch {
	case err == sql.ErrNoRows:
		return pending, "", sessionExisted, nil
	case err != nil:
		return false, "", false, fmt.Errorf("store: read prior session_embeddings %s: %w", sessionID, err)
	default:
		return pending, h.String, sessionExisted, nil
	}
}

// decideNeedsEmbedding applies spec.md §4.C step 3's decision table.
func decideNeedsEmbedding(priorPending, sessionExisted bool, priorHash, newHash string) bool {
	if !sessionExisted {
		return true
	}
	if priorPending {
		return true
	}
	if priorHash == "" {
		return true // no SessionEmbedding row yet
	}
	if priorHash != newHash {
		return true // content drift
	}
	return false
}

// LoadThread reads back a thread by id, decompressing and upgrading as
// needed. It returns ErrNotFound if no such thread exists.
func (s *Store) LoadThread(ctx context.Context, sessionID string) (chatthread.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadThreadLocked(ctx, sessionID)
}

func (s *Store) loadThreadLocked(ctx context.Context, sessionID string) (chatthread.Thread, error) {
	var dataType string
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data_type, data FROM threads WHERE id = ?`, sessionID).Scan(&dataType, &data)
	if err == sql.ErrNoRows {
		return chatthread.Thread{}, ErrNotFound
	}
	if err != nil {
		return chatthread.Thread{}, fmt.Errorf("store: load thread %s: %w", sessionID, err)
	}

	raw := data
	if dataType == "zstd" {
		raw, err = decompressZstd(data)
		if err != nil {
			return chatthread.Thread{}, fmt.Errorf("store: decompress thread %s: %w", sessionID, err)
		}
	}

	th, err := decodeThreadJSON(raw)
	if err != nil {
		return chatthread.Thread{}, fmt.Errorf("store: decode thread %s: %w", sessionID, err)
	}
	return th, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// DeleteThread removes a thread and, via ON DELETE CASCADE, its
// chat_sessions row.
func (s *Store) DeleteThread(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete thread %s: %w", sessionID, err)
	}
	return nil
}

// SessionAgent returns the (agent_id, agent_type) recorded for sessionID, as
// needed by the aggregator to route a completed session embedding to the
// right AgentGlobalEmbedding row.
func (s *Store) SessionAgent(ctx context.Context, sessionID string) (agentID, agentType string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.QueryRowContext(ctx, `SELECT agent_id, agent_type FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&agentID, &agentType)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("store: session agent %s: %w", sessionID, err)
	}
	return agentID, agentType, nil
}

// ClearPendingEmbedding flips chat_sessions.pending_embedding to 0, called
// by the job queue after a session embedding is successfully written.
func (s *Store) ClearPendingEmbedding(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET pending_embedding = 0 WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("store: clear pending_embedding %s: %w", sessionID, err)
	}
	return nil
}

// PendingEmbedding reports the current pending_embedding flag for a
// session, primarily for tests asserting S1/S2/S3 scenario outcomes.
func (s *Store) PendingEmbedding(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT pending_embedding FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&v)
	if err != nil {
		return false, fmt.Errorf("store: read pending_embedding %s: %w", sessionID, err)
	}
	return v == 1, nil
}
