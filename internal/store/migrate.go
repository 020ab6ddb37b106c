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
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AleutianAI/agent-memory/internal/chatthread"
)

const chatSessionsDomain = "chat_sessions"
const chatSessionsSchemaVersion = 1

// migrateChatSessions backfills default chat_sessions rows for any thread
// that predates the chat_sessions table, then stamps schema_versions so the
// backfill only ever runs once (spec.md §4.C "Schema migration"). It runs
// inside one transaction, mirroring the "one savepoint" requirement.
func (s *Store) migrateChatSessions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_versions WHERE domain = ?`, chatSessionsDomain).Scan(&existing)
	if err == nil {
		return nil // already migrated
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("store: check schema_versions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM threads`)
	if err != nil {
		return fmt.Errorf("store: list threads for migration: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("store: scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_sessions (session_id, agent_id, agent_type, created_at, updated_at, message_count, pending_embedding, schema_version)
			VALUES (?, ?, ?, ?, ?, 0, 1, ?)
			ON CONFLICT(session_id) DO NOTHING
		`, id, chatthread.NativeAgentID, chatthread.AgentTypeBuiltin, now, now, chatthread.CurrentSchemaVersion)
		if err != nil {
			return fmt.Errorf("store: backfill chat_sessions for %s: %w", id, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_versions (domain, version, applied_at) VALUES (?, ?, ?)
	`, chatSessionsDomain, chatSessionsSchemaVersion, now)
	if err != nil {
		return fmt.Errorf("store: stamp schema_versions: %w", err)
	}

	return tx.Commit()
}
