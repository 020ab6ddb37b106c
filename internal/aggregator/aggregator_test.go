// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

type memStore struct {
	vec   *embedding.Embedding
	count int
}

func (m *memStore) GetAgentEmbedding(_ context.Context, _ string) (*embedding.Embedding, int, error) {
	return m.vec, m.count, nil
}

func (m *memStore) StoreAgentEmbedding(_ context.Context, _, _ string, e embedding.Embedding, sessionCount int, _ string) error {
	m.vec = &e
	m.count = sessionCount
	return nil
}

func unitVec(t *testing.T, hot int) embedding.Embedding {
	t.Helper()
	v := make([]float32, embedding.DefaultModel.Dimension())
	v[hot] = 1
	e, err := embedding.New(v, embedding.DefaultModel)
	require.NoError(t, err)
	return e
}

func TestAggregatorFold_FirstSessionBecomesGlobal(t *testing.T) {
	store := &memStore{}
	agg := New(store)

	session := unitVec(t, 0)
	require.NoError(t, agg.Fold(context.Background(), "agent-1", "builtin", session))

	require.Equal(t, 1, store.count)
	require.Equal(t, session.Vector, store.vec.Vector)
}

func TestAggregatorFold_SecondSessionAveragesAndRenormalizes(t *testing.T) {
	store := &memStore{vec: ptr(unitVec(t, 0)), count: 1}
	agg := New(store)

	second := unitVec(t, 1)
	require.NoError(t, agg.Fold(context.Background(), "agent-1", "builtin", second))

	require.Equal(t, 2, store.count)
	require.InDelta(t, 1.0, sumSquares(store.vec.Vector), 1e-5)
	require.InDelta(t, float64(store.vec.Vector[0]), float64(store.vec.Vector[1]), 1e-5)
}

func TestFold_DimensionMismatchErrors(t *testing.T) {
	mean := unitVec(t, 0)
	otherModel, err := embedding.New(make([]float32, embedding.ModelTextEmbedding3Small.Dimension()), embedding.ModelTextEmbedding3Small)
	require.NoError(t, err)

	_, err = Fold(mean, 1, otherModel)
	require.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestFold_BoundedErrorAfterManySamples(t *testing.T) {
	mean := unitVec(t, 0)
	n := 1
	for i := 0; i < 50; i++ {
		next, err := Fold(mean, n, unitVec(t, 0))
		require.NoError(t, err)
		mean = next
		n++
	}
	// Folding the same direction repeatedly should converge back to that
	// direction, not drift away from it.
	require.InDelta(t, 1.0, float64(mean.Vector[0]), 1e-3)
}

func ptr(e embedding.Embedding) *embedding.Embedding { return &e }

func sumSquares(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return s
}
