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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpSearchResult is the wire shape of one hit, per spec.md §6:
// `search(query) -> { results: [{ title, url, text }] }`.
type httpSearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

type httpSearchResponse struct {
	Results []httpSearchResult `json:"results"`
}

type httpSearchRequest struct {
	Query string `json:"query"`
}

// HTTPProvider is the canonical Provider implementation: it POSTs
// {"query": ...} to a configured endpoint and expects back spec.md §6's
// {results: [{title, url, text}]} shape. text may contain raw HTML, which
// is stripped here before the caller ever sees a Result, per spec.md §6.
type HTTPProvider struct {
	Name     string
	Endpoint string
	Client   *http.Client
}

// NewHTTPProvider constructs an HTTPProvider. A nil client defaults to
// http.DefaultClient.
func NewHTTPProvider(name, endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{Name: name, Endpoint: endpoint, Client: client}
}

// Search posts query to the configured endpoint and returns stripped
// results. Non-2xx responses and malformed bodies are returned as errors so
// Dispatcher's retryable classifier can decide whether to fall back.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(httpSearchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("websearch: %s: encode request: %w", p.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("websearch: %s: build request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: %s: request failed: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: %s: HTTP %d", p.Name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: %s: read response: %w", p.Name, err)
	}

	var parsed httpSearchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("websearch: %s: decode response: %w", p.Name, err)
	}

	results := make([]Result, len(parsed.Results))
	for i, r := range parsed.Results {
		results[i] = Result{Title: r.Title, URL: r.URL, Snippet: StripHTML(r.Text)}
	}
	return results, nil
}
