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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_StripsHTMLFromResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Hit","url":"https://example.com","text":"<b>bold</b> &amp; plain"}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider("test", srv.URL, nil)
	results, err := p.Search(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bold & plain", results[0].Snippet)
}

func TestHTTPProvider_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider("test", srv.URL, nil)
	_, err := p.Search(context.Background(), "query")
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}
