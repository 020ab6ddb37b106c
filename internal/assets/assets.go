// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assets materializes the built-in agent registry (spec.md §4.I):
// an embedded tree of agent payload directories, copied onto disk under
// <data_dir>/agents/builtin/<id>/ and tracked in a JSON manifest so source
// upgrades can detect and skip directories a user has hand-edited.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed builtin
var builtinFS embed.FS

// builtinRoot is the top-level directory name inside builtinFS that holds
// one subdirectory per built-in agent id.
const builtinRoot = "builtin"

// ManifestVersion is the schema version written into index.json's top-level
// "version" field.
const ManifestVersion = 1

// AgentMetadata is the parsed form of an agent.toml payload (spec.md §6).
type AgentMetadata struct {
	ID          string            `toml:"id"`
	Name        string            `toml:"name"`
	Type        string            `toml:"type"`
	Version     string            `toml:"version"`
	Description string            `toml:"description,omitempty"`
	Metadata    AgentMetadataExtra `toml:"metadata,omitempty"`
}

// AgentMetadataExtra holds the optional nested fields of agent.toml.
type AgentMetadataExtra struct {
	Icon        string `toml:"icon,omitempty"`
	TelemetryID string `toml:"telemetry_id,omitempty"`
}

// AgentManifestEntry is one agents[id] record in index.json.
type AgentManifestEntry struct {
	Source       string `json:"source"`
	Version      string `json:"version"`
	Path         string `json:"path"`
	Checksum     string `json:"checksum"`
	LastUpdated  string `json:"last_updated"`
	UserModified bool   `json:"user_modified"`
}

// Manifest is the on-disk index.json shape.
type Manifest struct {
	Version       int                            `json:"version"`
	SourceVersion string                          `json:"source_version"`
	Agents        map[string]AgentManifestEntry  `json:"agents"`
}

func newManifest() *Manifest {
	return &Manifest{Version: ManifestVersion, Agents: make(map[string]AgentManifestEntry)}
}

// builtinIDs lists the agent ids embedded in the binary, derived from the
// top-level directory names under builtin/.
func builtinIDs() ([]string, error) {
	entries, err := fs.ReadDir(builtinFS, builtinRoot)
	if err != nil {
		return nil, fmt.Errorf("assets: read embedded tree: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// checksumFS hashes every regular file under root (an fs.FS subtree),
// sorted by relative path, per spec.md §4.I: "The checksum is SHA-256 over
// the concatenation of file contents ordered lexicographically by relative
// path." Only the sort key is the path; the digest itself is over raw file
// bytes, so it agrees with the same algorithm run against the original
// implementation. The same algorithm runs over both the embedded source
// tree and the on-disk copy so the two are comparable.
func checksumFS(fsys fs.FS, root string) (string, error) {
	var paths []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("assets: walk %s: %w", root, err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return "", fmt.Errorf("assets: read %s: %w", p, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
