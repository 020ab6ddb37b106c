// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package websearch implements the prioritized provider-fallback dispatcher:
// a registry of named search providers, a priority order, and a retryable
// error classification that decides whether dispatch moves on to the next
// candidate or stops and surfaces the error.
package websearch

import (
	"context"
	"sort"

	"github.com/AleutianAI/agent-memory/internal/transient"
)

// Result is one search hit returned by a provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Provider searches the web and returns raw results. Implementations return
// whatever the underlying API gives back, untrimmed and untruncated —
// Dispatcher applies max_results/snippet_length uniformly across providers.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ProgressEvent is emitted when a provider's search succeeds, describing
// which provider served the request (spec.md §4.H "tool-visible progress").
// A dispatch that ends in an error emits no event.
type ProgressEvent struct {
	Provider    string
	ResultCount int
}

// IsRetryable reports whether err's textual form suggests a transient
// failure that the dispatcher should fall back from, rather than a
// permanent one it should surface immediately. It shares its classification
// with the job queue via internal/transient.
func IsRetryable(err error) bool {
	return transient.Classify(err)
}

// Registry holds named providers plus the priority order dispatch walks.
type Registry struct {
	providers map[string]Provider
	priority  []string
	active    string
}

// NewRegistry constructs an empty Registry. active names the provider
// appended to the candidate list if not already present in priority
// (spec.md §4.H step 1).
func NewRegistry(active string) *Registry {
	return &Registry{providers: make(map[string]Provider), active: active}
}

// Register adds or replaces a named provider.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// SetPriority sets the ordered fallback list.
func (r *Registry) SetPriority(order []string) {
	r.priority = order
}

// candidates computes the ordered candidate list per spec.md §4.H step 1-2:
// the priority list in order, then the active provider if not already
// present, then any remaining registered providers, deduplicated; a
// per-request preferred provider (if registered) is then moved to front.
func (r *Registry) candidates(preferred string) []string {
	seen := make(map[string]bool, len(r.providers))
	var order []string

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if _, ok := r.providers[name]; !ok {
			return
		}
		seen[name] = true
		order = append(order, name)
	}

	for _, name := range r.priority {
		add(name)
	}
	add(r.active)

	remaining := make([]string, 0, len(r.providers))
	for name := range r.providers {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining) // deterministic order for names not already placed
	for _, name := range remaining {
		add(name)
	}

	if preferred != "" && seen[preferred] {
		reordered := make([]string, 0, len(order))
		reordered = append(reordered, preferred)
		for _, name := range order {
			if name != preferred {
				reordered = append(reordered, name)
			}
		}
		order = reordered
	}
	return order
}
