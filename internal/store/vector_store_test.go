// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

func TestSessionEmbedding_StoreGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := fixedEmbedding(t, embedding.DefaultModel, 0)
	require.NoError(t, s.StoreSessionEmbedding(ctx, "sess-1", e, "hash-1"))

	got, err := s.GetSessionEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, e.Model, got.Model)
	require.Equal(t, e.Vector, got.Vector)

	hash, ok, err := s.SessionEmbeddingHash(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hash-1", hash)
}

func TestSessionEmbedding_GetMissReturnsNilNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetSessionEmbedding(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMessageEmbedding_StoreGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := fixedEmbedding(t, embedding.DefaultModel, 1)
	require.NoError(t, s.StoreMessageEmbedding(ctx, "content-hash-a", e))

	got, err := s.GetMessageEmbedding(ctx, "content-hash-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, e.Vector, got.Vector)
}

func TestAgentEmbedding_StoreGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := fixedEmbedding(t, embedding.DefaultModel, 2)
	require.NoError(t, s.StoreAgentEmbedding(ctx, "agent-1", "builtin", e, 3, "mean"))

	got, count, err := s.GetAgentEmbedding(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 3, count)
}

func TestSearchSimilarSessions_RanksByCosineDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	query := fixedEmbedding(t, embedding.DefaultModel, 0)
	closeMatch := fixedEmbedding(t, embedding.DefaultModel, 0)
	farMatch := fixedEmbedding(t, embedding.DefaultModel, 100)

	require.NoError(t, s.StoreSessionEmbedding(ctx, "close", closeMatch, ""))
	require.NoError(t, s.StoreSessionEmbedding(ctx, "far", farMatch, ""))

	results, err := s.SearchSimilarSessions(ctx, query, 10, -1.0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].SessionID)
	require.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestSearchSimilarSessions_ThresholdFiltersOut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	query := fixedEmbedding(t, embedding.DefaultModel, 0)
	orthogonal := fixedEmbedding(t, embedding.DefaultModel, 50)
	require.NoError(t, s.StoreSessionEmbedding(ctx, "orthogonal", orthogonal, ""))

	results, err := s.SearchSimilarSessions(ctx, query, 10, 0.9)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchSimilarSessions_SkipsDimensionMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	query := fixedEmbedding(t, embedding.DefaultModel, 0)
	other := fixedEmbedding(t, embedding.ModelTextEmbedding3Small, 0)
	require.NoError(t, s.StoreSessionEmbedding(ctx, "other-model", other, ""))

	results, err := s.SearchSimilarSessions(ctx, query, 10, -1.0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchSimilarSessions_LimitTruncates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	query := fixedEmbedding(t, embedding.DefaultModel, 0)
	for i := 0; i < 5; i++ {
		e := fixedEmbedding(t, embedding.DefaultModel, i)
		require.NoError(t, s.StoreSessionEmbedding(ctx, string(rune('a'+i)), e, ""))
	}

	results, err := s.SearchSimilarSessions(ctx, query, 2, -1.0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}
