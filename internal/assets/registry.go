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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const manifestFileName = "index.json"

// Registry owns the built-in agent tree on disk and its manifest. A zero
// value is not usable; construct with NewRegistry.
type Registry struct {
	dataDir   string
	stateless bool
	logger    *slog.Logger
	cache     *BadgerIndexCache
}

// Option configures a Registry.
type Option func(*Registry)

// WithIndexCache attaches an optional BadgerDB-backed warm-start cache for
// the manifest. Nil-safe: a nil cache (the default) disables warm-start and
// the manifest is always read from index.json.
func WithIndexCache(cache *BadgerIndexCache) Option {
	return func(r *Registry) { r.cache = cache }
}

// NewRegistry constructs a Registry rooted at dataDir. When stateless is
// true, Sync and every other disk-touching method becomes a no-op
// returning a zero-value result, per spec.md §6's STATELESS flag.
func NewRegistry(dataDir string, stateless bool, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{dataDir: dataDir, stateless: stateless, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) agentsDir() string     { return filepath.Join(r.dataDir, "agents") }
func (r *Registry) builtinDir() string    { return filepath.Join(r.agentsDir(), "builtin") }
func (r *Registry) manifestPath() string  { return filepath.Join(r.agentsDir(), manifestFileName) }
func (r *Registry) agentPath(id string) string {
	return filepath.Join(r.builtinDir(), id)
}

// Sync performs spec.md §4.I's three-branch reconciliation: copy missing
// agents onto disk, detect user modification by checksum, and overwrite
// stale-but-unmodified directories. It returns the manifest reflecting the
// post-sync state. In stateless mode it is a no-op returning an empty
// manifest.
func (r *Registry) Sync(ctx context.Context) (*Manifest, error) {
	if r.stateless {
		return newManifest(), nil
	}

	manifest, err := r.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := builtinIDs()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := r.syncOne(ctx, manifest, id); err != nil {
			return nil, fmt.Errorf("assets: sync %s: %w", id, err)
		}
	}

	if err := r.saveManifest(ctx, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (r *Registry) syncOne(ctx context.Context, manifest *Manifest, id string) error {
	entry, tracked := manifest.Agents[id]
	onDisk := r.agentPath(id)
	missing := !dirExists(filepath.Join(onDisk, "agent.toml"))

	srcRoot := filepath.ToSlash(filepath.Join(builtinRoot, id))
	srcChecksum, err := checksumFS(builtinFS, srcRoot)
	if err != nil {
		return err
	}

	if !tracked || missing {
		if err := copyEmbeddedDir(builtinFS, srcRoot, onDisk); err != nil {
			return fmt.Errorf("copy built-in tree: %w", err)
		}
		meta, err := readAgentToml(onDisk)
		if err != nil {
			return err
		}
		manifest.Agents[id] = AgentManifestEntry{
			Source:       "builtin",
			Version:      meta.Version,
			Path:         onDisk,
			Checksum:     srcChecksum,
			LastUpdated:  time.Now().UTC().Format(time.RFC3339),
			UserModified: false,
		}
		r.logger.Info("assets: installed built-in agent", slog.String("agent_id", id))
		return nil
	}

	onDiskChecksum, err := checksumFS(os.DirFS(onDisk), ".")
	if err != nil {
		return fmt.Errorf("checksum on-disk tree: %w", err)
	}
	if onDiskChecksum != entry.Checksum {
		entry.UserModified = true
	}

	if srcChecksum == entry.Checksum {
		manifest.Agents[id] = entry
		return nil
	}

	if entry.UserModified {
		r.logger.Warn("assets: skipping built-in upgrade, directory has local edits",
			slog.String("agent_id", id),
			slog.String("on_disk_checksum", onDiskChecksum),
			slog.String("manifest_checksum", entry.Checksum),
		)
		manifest.Agents[id] = entry
		return nil
	}

	if err := copyEmbeddedDir(builtinFS, srcRoot, onDisk); err != nil {
		return fmt.Errorf("overwrite built-in tree: %w", err)
	}
	meta, err := readAgentToml(onDisk)
	if err != nil {
		return err
	}
	entry.Version = meta.Version
	entry.Checksum = srcChecksum
	entry.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	entry.UserModified = false
	manifest.Agents[id] = entry
	r.logger.Info("assets: upgraded built-in agent", slog.String("agent_id", id), slog.String("version", meta.Version))
	return nil
}

// UserModified reports whether id's on-disk tree was last seen diverging
// from its manifest checksum. False if id is not tracked.
func (m *Manifest) UserModified(id string) bool {
	entry, ok := m.Agents[id]
	return ok && entry.UserModified
}

func (r *Registry) loadManifest(ctx context.Context) (*Manifest, error) {
	if r.cache != nil {
		if m, err := r.cache.LoadManifest(ctx); err == nil && m != nil {
			return m, nil
		}
	}

	data, err := os.ReadFile(r.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return newManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("assets: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("assets: decode manifest: %w", err)
	}
	if m.Agents == nil {
		m.Agents = make(map[string]AgentManifestEntry)
	}
	return &m, nil
}

func (r *Registry) saveManifest(ctx context.Context, m *Manifest) error {
	if err := os.MkdirAll(r.agentsDir(), 0o755); err != nil {
		return fmt.Errorf("assets: mkdir agents dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("assets: encode manifest: %w", err)
	}
	if err := os.WriteFile(r.manifestPath(), data, 0o644); err != nil {
		return fmt.Errorf("assets: write manifest: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.SaveManifest(ctx, m); err != nil {
			r.logger.Warn("assets: warm-start cache save failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyEmbeddedDir recursively copies an embed.FS subtree onto disk,
// overwriting any existing files.
func copyEmbeddedDir(fsys fs.FS, src, dst string) error {
	return fs.WalkDir(fsys, src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

func readAgentToml(dir string) (AgentMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, "agent.toml"))
	if err != nil {
		return AgentMetadata{}, fmt.Errorf("assets: read agent.toml: %w", err)
	}
	var meta AgentMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return AgentMetadata{}, fmt.Errorf("assets: parse agent.toml: %w", err)
	}
	return meta, nil
}
