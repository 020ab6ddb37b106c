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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name    string
	err     error
	results []Result
	calls   int
}

func (p *stubProvider) Search(_ context.Context, _ string) ([]Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

func TestDispatch_FallsBackOnRetryableError(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("upstream returned 503")}
	backup := &stubProvider{name: "backup", results: []Result{{Title: "hit", Snippet: "short"}}}

	reg := NewRegistry("primary")
	reg.Register("primary", primary)
	reg.Register("backup", backup)
	reg.SetPriority([]string{"primary", "backup"})

	d := NewDispatcher(reg, nil)
	results, err := d.Dispatch(context.Background(), "query", "", 10, 200)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, backup.calls)
}

func TestDispatch_StopsOnPermanentError(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("invalid api key: unauthorized")}
	backup := &stubProvider{name: "backup", results: []Result{{Title: "hit"}}}

	reg := NewRegistry("primary")
	reg.Register("primary", primary)
	reg.Register("backup", backup)
	reg.SetPriority([]string{"primary", "backup"})

	d := NewDispatcher(reg, nil)
	_, err := d.Dispatch(context.Background(), "query", "", 10, 200)
	require.Error(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 0, backup.calls)
}

func TestDispatch_PreferredProviderMovesToFront(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []Result{{Title: "from-primary"}}}
	backup := &stubProvider{name: "backup", results: []Result{{Title: "from-backup"}}}

	reg := NewRegistry("primary")
	reg.Register("primary", primary)
	reg.Register("backup", backup)
	reg.SetPriority([]string{"primary", "backup"})

	d := NewDispatcher(reg, nil)
	results, err := d.Dispatch(context.Background(), "query", "backup", 10, 200)
	require.NoError(t, err)
	require.Equal(t, "from-backup", results[0].Title)
	require.Equal(t, 0, primary.calls)
}

func TestDispatch_EmitsProgress(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []Result{{Title: "a"}, {Title: "b"}}}
	reg := NewRegistry("primary")
	reg.Register("primary", primary)

	progress := make(chan ProgressEvent, 1)
	d := NewDispatcher(reg, progress)

	_, err := d.Dispatch(context.Background(), "q", "", 10, 200)
	require.NoError(t, err)

	ev := <-progress
	require.Equal(t, "primary", ev.Provider)
	require.Equal(t, 2, ev.ResultCount)
}

func TestDispatch_TrimsToMaxResults(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []Result{{Title: "a"}, {Title: "b"}, {Title: "c"}}}
	reg := NewRegistry("primary")
	reg.Register("primary", primary)

	d := NewDispatcher(reg, nil)
	results, err := d.Dispatch(context.Background(), "q", "", 2, 200)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("request failed: 429 too many requests")))
	require.True(t, IsRetryable(fmt.Errorf("context deadline exceeded (Client.Timeout exceeded while awaiting headers)")))
	require.False(t, IsRetryable(fmt.Errorf("invalid query syntax")))
	require.False(t, IsRetryable(nil))
}

func TestTruncateSnippet_CutsAtWhitespace(t *testing.T) {
	s := "the quick brown fox jumps over the lazy dog and keeps running"
	got := TruncateSnippet(s, 20)
	require.True(t, len(got) <= 23) // 20 + "..."
	require.Contains(t, got, "...")
}

func TestTruncateSnippet_HardCutWhenNoWhitespace(t *testing.T) {
	s := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	got := TruncateSnippet(s, 10)
	require.Equal(t, "abcdefghij...", got)
}

func TestTruncateSnippet_ShortStringUnchanged(t *testing.T) {
	require.Equal(t, "short", TruncateSnippet("short", 200))
}

func TestStripHTML_RemovesTagsAndUnescapes(t *testing.T) {
	got := StripHTML("<b>Hello</b> &amp; welcome")
	require.Equal(t, "Hello & welcome", got)
}
