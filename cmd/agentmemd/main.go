// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command agentmemd wires together the persistence layer, the built-in
// agent registry, and the background embedding worker, then runs the
// worker until it receives a termination signal. It has no network-facing
// API of its own; tool-call and chat surfaces are out of scope (spec.md §1
// Non-goals) and are expected to drive internal/store, internal/websearch,
// and internal/assets directly as a library.
//
// Usage:
//
//	go run ./cmd/agentmemd -data-dir ~/.agentmemd
//	go run ./cmd/agentmemd -stateless
//	AGENTMEM_OPENAI_API_KEY=sk-... go run ./cmd/agentmemd -data-dir ~/.agentmemd -embedding-model text-embedding-3-small
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/agent-memory/internal/aggregator"
	"github.com/AleutianAI/agent-memory/internal/assets"
	"github.com/AleutianAI/agent-memory/internal/embedding"
	"github.com/AleutianAI/agent-memory/internal/embedgen"
	"github.com/AleutianAI/agent-memory/internal/jobqueue"
	"github.com/AleutianAI/agent-memory/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("agentmemd: fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir    = flag.String("data-dir", filepath.Join(os.Getenv("HOME"), ".agentmemd"), "directory holding threads/threads.db and the agent registry")
		stateless  = flag.Bool("stateless", os.Getenv("STATELESS") == "1", "disable all disk side effects (spec.md §6 STATELESS)")
		localURL   = flag.String("ollama-url", "", "local embedding endpoint (defaults to http://localhost:11434/api/embed)")
		modelFlag  = flag.String("embedding-model", string(embedding.DefaultModel), "embedding model id")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	model := embedding.Model(*modelFlag)

	var db *store.Store
	var err error
	if *stateless {
		db, err = store.OpenStateless(ctx, store.WithLogger(logger))
	} else {
		if mkErr := os.MkdirAll(filepath.Join(*dataDir, "threads"), 0o755); mkErr != nil {
			return fmt.Errorf("agentmemd: create data dir: %w", mkErr)
		}
		db, err = store.Open(ctx, filepath.Join(*dataDir, "threads", "threads.db"), store.WithLogger(logger))
	}
	if err != nil {
		return fmt.Errorf("agentmemd: open store: %w", err)
	}
	defer db.Close()

	var registryOpts []assets.Option
	if !*stateless {
		badgerDB, err := openIndexCacheDB(filepath.Join(*dataDir, "index-cache"))
		if err != nil {
			return fmt.Errorf("agentmemd: open index cache: %w", err)
		}
		defer badgerDB.Close()
		registryOpts = append(registryOpts, assets.WithIndexCache(assets.NewBadgerIndexCache(badgerDB, logger)))
	}

	registry := assets.NewRegistry(*dataDir, *stateless, logger, registryOpts...)
	if _, err := registry.Sync(ctx); err != nil {
		return fmt.Errorf("agentmemd: sync built-in agents: %w", err)
	}

	var generator embedgen.Generator
	if apiKey := os.Getenv("AGENTMEM_OPENAI_API_KEY"); apiKey != "" {
		generator = embedgen.NewOpenAIGenerator(apiKey)
	} else {
		generator = embedgen.NewLocalGenerator(*localURL, *modelFlag, logger)
	}

	agg := aggregator.New(db)
	worker := jobqueue.New(db, db, db, agg, generator, model, logger)

	logger.Info("agentmemd: starting", slog.String("data_dir", *dataDir), slog.Bool("stateless", *stateless), slog.String("model", string(model)))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("agentmemd: worker stopped: %w", err)
	}
	logger.Info("agentmemd: shut down")
	return nil
}

// openIndexCacheDB opens (creating if absent) the BadgerDB instance backing
// the agent registry's manifest warm-start cache. Badger's own logger is
// noisy at default verbosity, so it is silenced in favor of the slog lines
// BadgerIndexCache already emits around cache misses and save failures.
func openIndexCacheDB(path string) (*badger.DB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create index cache dir: %w", err)
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}
