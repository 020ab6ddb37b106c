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
	"sort"
	"time"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// StoreSessionEmbedding upserts the session's embedding by session_id,
// updating updated_at. contentHash is optional (empty string is stored as
// NULL) to support callers that write a vector before content hashing
// applies.
func (s *Store) StoreSessionEmbedding(ctx context.Context, sessionID string, e embedding.Embedding, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash sql.NullString
	if contentHash != "" {
		hash = sql.NullString{String: contentHash, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_embeddings (session_id, vector, model, model_version, dimension, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			vector = excluded.vector, model = excluded.model, model_version = excluded.model_version,
			dimension = excluded.dimension, content_hash = excluded.content_hash, updated_at = excluded.updated_at
	`, sessionID, e.Serialize(), string(e.Model), e.Version, e.Dimension(), hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: store session embedding %s: %w", sessionID, err)
	}
	return nil
}

// GetSessionEmbedding returns the stored embedding for sessionID, or
// (nil, nil) on miss. An unrecognized persisted model name degrades to
// embedding.DefaultModel rather than failing the read.
func (s *Store) GetSessionEmbedding(ctx context.Context, sessionID string) (*embedding.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vec []byte
	var model, version string
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, model, model_version FROM session_embeddings WHERE session_id = ?
	`, sessionID).Scan(&vec, &model, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session embedding %s: %w", sessionID, err)
	}
	e, err := embedding.Deserialize(vec, resolveModel(model), version)
	if err != nil {
		return nil, fmt.Errorf("store: deserialize session embedding %s: %w", sessionID, err)
	}
	return &e, nil
}

// SessionEmbeddingHash returns the content_hash recorded alongside a
// session's stored embedding, or ("", false) if no row exists.
func (s *Store) SessionEmbeddingHash(ctx context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT content_hash FROM session_embeddings WHERE session_id = ?`, sessionID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: session embedding hash %s: %w", sessionID, err)
	}
	return hash.String, true, nil
}

// StoreMessageEmbedding upserts the content-addressed message-embedding
// cache entry keyed by contentHash. Entries are immutable in practice (the
// same hash always yields the same text) but the write is an upsert for
// idempotence.
func (s *Store) StoreMessageEmbedding(ctx context.Context, contentHash string, e embedding.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_embeddings (content_hash, vector, model, model_version, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			vector = excluded.vector, model = excluded.model, model_version = excluded.model_version, dimension = excluded.dimension
	`, contentHash, e.Serialize(), string(e.Model), e.Version, e.Dimension(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: store message embedding %s: %w", contentHash, err)
	}
	return nil
}

// GetMessageEmbedding returns the cached embedding for contentHash, or
// (nil, nil) on miss.
func (s *Store) GetMessageEmbedding(ctx context.Context, contentHash string) (*embedding.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vec []byte
	var model, version string
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, model, model_version FROM message_embeddings WHERE content_hash = ?
	`, contentHash).Scan(&vec, &model, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get message embedding %s: %w", contentHash, err)
	}
	e, err := embedding.Deserialize(vec, resolveModel(model), version)
	if err != nil {
		return nil, fmt.Errorf("store: deserialize message embedding %s: %w", contentHash, err)
	}
	return &e, nil
}

// StoreAgentEmbedding upserts the per-agent global embedding by agent_id.
func (s *Store) StoreAgentEmbedding(ctx context.Context, agentID, agentType string, e embedding.Embedding, sessionCount int, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_global_embeddings (agent_id, agent_type, vector, model, model_version, dimension, session_count, aggregation_method, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			agent_type = excluded.agent_type, vector = excluded.vector, model = excluded.model,
			model_version = excluded.model_version, dimension = excluded.dimension,
			session_count = excluded.session_count, aggregation_method = excluded.aggregation_method,
			updated_at = excluded.updated_at
	`, agentID, agentType, e.Serialize(), string(e.Model), e.Version, e.Dimension(), sessionCount, method, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: store agent embedding %s: %w", agentID, err)
	}
	return nil
}

// GetAgentEmbedding returns the agent's global embedding and its current
// session_count, or (nil, 0, nil) on miss.
func (s *Store) GetAgentEmbedding(ctx context.Context, agentID string) (*embedding.Embedding, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vec []byte
	var model, version string
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, model, model_version, session_count FROM agent_global_embeddings WHERE agent_id = ?
	`, agentID).Scan(&vec, &model, &version, &count)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("store: get agent embedding %s: %w", agentID, err)
	}
	e, err := embedding.Deserialize(vec, resolveModel(model), version)
	if err != nil {
		return nil, 0, fmt.Errorf("store: deserialize agent embedding %s: %w", agentID, err)
	}
	return &e, count, nil
}

// SimilarSession is one ranked row returned by SearchSimilarSessions.
type SimilarSession struct {
	SessionID string
	Score     float32
}

// SearchSimilarSessions performs a linear scan over every session embedding
// matching query's (model, version, dimension), computing cosine similarity
// and returning the top `limit` rows with score >= threshold, sorted
// descending, ties broken by insertion order (spec.md §4.B). Rows that fail
// to deserialize are skipped, never fatal — a corrupt row must not break
// retrieval for everyone else.
func (s *Store) SearchSimilarSessions(ctx context.Context, query embedding.Embedding, limit int, threshold float32) ([]SimilarSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, vector, model_version
		FROM session_embeddings
		WHERE model = ? AND dimension = ?
		ORDER BY updated_at ASC, session_id ASC
	`, string(query.Model), query.Dimension())
	if err != nil {
		return nil, fmt.Errorf("store: search similar sessions: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id    string
		score float32
		order int
	}
	var candidates []scored
	order := 0
	for rows.Next() {
		var sessionID, version string
		var vec []byte
		if err := rows.Scan(&sessionID, &vec, &version); err != nil {
			return nil, fmt.Errorf("store: scan similar session row: %w", err)
		}
		if version != query.Version {
			continue // model_version must match too, per spec.md §4.B
		}
		e, err := embedding.Deserialize(vec, query.Model, version)
		if err != nil {
			s.logger.Warn("skipping corrupt session embedding", "session_id", sessionID, "error", err)
			continue
		}
		sim, err := embedding.Cosine(query, e)
		if err != nil {
			s.logger.Warn("skipping incomparable session embedding", "session_id", sessionID, "error", err)
			continue
		}
		if sim >= threshold {
			candidates = append(candidates, scored{id: sessionID, score: sim, order: order})
		}
		order++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate similar sessions: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]SimilarSession, len(candidates))
	for i, c := range candidates {
		out[i] = SimilarSession{SessionID: c.id, Score: c.score}
	}
	return out, nil
}
