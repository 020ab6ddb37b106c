// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// indexCacheKey is the BadgerDB key the manifest warm-start entry is stored
// under. Versioned so a future encoding change cannot collide with this one.
const indexCacheKey = "agents:index:v1"

// BadgerIndexCache is an optional warm-start cache for the agent manifest,
// avoiding an index.json read (and its JSON decode) on every process start
// when a BadgerDB instance is already open for other state. It is purely an
// accelerator: Registry falls back to reading index.json whenever the cache
// is nil, missing, or fails to decode.
type BadgerIndexCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerIndexCache wraps an already-open BadgerDB handle. The caller
// owns db's lifecycle; the cache never opens or closes it.
func NewBadgerIndexCache(db *badger.DB, logger *slog.Logger) *BadgerIndexCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerIndexCache{db: db, logger: logger}
}

// LoadManifest returns the cached manifest, or (nil, nil) on a cache miss.
func (c *BadgerIndexCache) LoadManifest(ctx context.Context) (*Manifest, error) {
	if c == nil || c.db == nil {
		return nil, nil
	}

	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexCacheKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assets: index cache read: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		c.logger.Warn("assets: index cache decode failed, falling back to index.json", slog.String("error", err.Error()))
		return nil, nil
	}
	return &m, nil
}

// SaveManifest writes m into the warm-start cache. Failure is non-fatal to
// callers: the durable copy is index.json, written by the caller separately.
func (c *BadgerIndexCache) SaveManifest(ctx context.Context, m *Manifest) error {
	if c == nil || c.db == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("assets: index cache encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(indexCacheKey), raw)
	})
}
