// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the durable persistence layer for the agent-memory
// core: the thread store (§4.C), the vector store (§4.B), and the
// embedding-job rows the job queue drives (§4.F). All three share one
// *sql.DB and one guarding mutex so that a thread save, its chat_sessions
// upsert, and its embedding-job insert commit atomically under a single
// transaction (spec.md §5's "single savepoint").
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGo

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// ErrNotFound is returned by point lookups the caller expected to succeed
// (thread load during job processing). Ordinary "no row" misses on
// get_session_embedding/get_message_embedding/get_agent_embedding instead
// return (nil, nil), per spec.md §7.
var ErrNotFound = errors.New("store: not found")

// Store wraps one *sql.DB with a guarding mutex. database/sql already pools
// connections internally, but spec.md §5 asks for an explicit single-writer
// discipline the tests can assert on deterministically, so every exported
// method takes mu before touching the database — matching the teacher's
// guarded-singleton idiom (ToolEmbeddingCache.mu) rather than leaning on
// SQLite's own locking.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger

	// stateless disables all disk side effects; Open returns a Store backed
	// by an in-memory database and every constructor skips directory
	// creation (spec.md §6 STATELESS flag).
	stateless bool
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (creating if necessary) the SQLite database at path, runs
// idempotent schema creation, and performs the chat_sessions migration
// (spec.md §4.C "Schema migration") if it has not yet run. path == ":memory:"
// is accepted for tests and for STATELESS mode.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default(), stateless: path == ":memory:"}
	for _, opt := range opts {
		opt(s)
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	} else {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite write-serialization; mu above adds the explicit spec'd guard on top
	s.db = db

	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrateChatSessions(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenStateless returns a Store backed by an in-memory database and marked
// stateless, for callers honoring spec.md §6's STATELESS environment flag.
func OpenStateless(ctx context.Context, opts ...Option) (*Store, error) {
	return Open(ctx, ":memory:", opts...)
}

// Stateless reports whether this Store was opened in stateless mode.
func (s *Store) Stateless() bool {
	return s.stateless
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	summary TEXT,
	updated_at TIMESTAMP NOT NULL,
	data_type TEXT NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_versions (
	domain TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	applied_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	pending_embedding INTEGER NOT NULL DEFAULT 1,
	schema_version TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES threads(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS session_embeddings (
	session_id TEXT PRIMARY KEY,
	vector BLOB NOT NULL,
	model TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	content_hash TEXT,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS message_embeddings (
	content_hash TEXT PRIMARY KEY,
	vector BLOB NOT NULL,
	model TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_global_embeddings (
	agent_id TEXT PRIMARY KEY,
	agent_type TEXT NOT NULL,
	vector BLOB NOT NULL,
	model TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	session_count INTEGER NOT NULL DEFAULT 0,
	aggregation_method TEXT NOT NULL DEFAULT 'mean',
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_jobs (
	job_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_embedding_jobs_status_created
	ON embedding_jobs(status, created_at, job_id);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_agent ON chat_sessions(agent_id);
`

func (s *Store) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// resolveModel parses a persisted model name, degrading unknown names to
// embedding.DefaultModel (spec.md §4.B).
func resolveModel(name string) embedding.Model {
	return embedding.ParseModel(name)
}
