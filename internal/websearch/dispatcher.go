// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package websearch

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Dispatcher walks a Registry's candidate list, invoking providers in order
// and falling back on retryable failure (spec.md §4.H).
type Dispatcher struct {
	registry *Registry
	progress chan<- ProgressEvent
}

// NewDispatcher constructs a Dispatcher. progress may be nil if the caller
// does not want tool-visible progress events.
func NewDispatcher(registry *Registry, progress chan<- ProgressEvent) *Dispatcher {
	return &Dispatcher{registry: registry, progress: progress}
}

// Dispatch runs spec.md §4.H steps 1-4: compute the candidate order (with
// preferred moved to front), try each in turn, trim and truncate the first
// success, and stop at the first non-retryable failure.
func (d *Dispatcher) Dispatch(ctx context.Context, query, preferred string, maxResults, snippetLength int) ([]Result, error) {
	candidates := d.registry.candidates(preferred)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("websearch: no providers registered")
	}

	var lastErr error
	for _, name := range candidates {
		provider := d.registry.providers[name]
		results, err := provider.Search(ctx, query)
		if err == nil {
			trimmed := trimResults(results, maxResults, snippetLength)
			d.emitProgress(name, len(trimmed))
			return trimmed, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, fmt.Errorf("websearch: provider %s failed permanently: %w", name, err)
		}
	}
	return nil, fmt.Errorf("websearch: all providers exhausted, last error: %w", lastErr)
}

func (d *Dispatcher) emitProgress(provider string, count int) {
	if d.progress == nil {
		return
	}
	select {
	case d.progress <- ProgressEvent{Provider: provider, ResultCount: count}:
	default:
	}
}

func trimResults(results []Result, maxResults, snippetLength int) []Result {
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	out := make([]Result, len(results))
	for i, r := range results {
		r.Snippet = TruncateSnippet(r.Snippet, snippetLength)
		out[i] = r
	}
	return out
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes tags and unescapes entities, for providers whose
// snippets arrive as raw HTML fragments.
func StripHTML(s string) string {
	return html.UnescapeString(htmlTagPattern.ReplaceAllString(s, ""))
}

// TruncateSnippet truncates s to at most maxLength runes, per spec.md §4.H:
// cut at the last whitespace at or after maxLength/2, falling back to a
// hard cut at maxLength if no such whitespace exists, then append an
// ellipsis. Strings already within the limit are returned unchanged.
func TruncateSnippet(s string, maxLength int) string {
	runes := []rune(s)
	if maxLength <= 0 || len(runes) <= maxLength {
		return s
	}

	minCut := maxLength / 2
	cut := maxLength
	for i := maxLength; i >= minCut; i-- {
		if i < len(runes) && isSpaceRune(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n\r") + "..."
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
