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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// zeroEmbedding returns a normalized, arbitrary unit vector at the default
// model's dimension, for tests that only need a valid embedding to persist.
func zeroEmbedding(t *testing.T) embedding.Embedding {
	t.Helper()
	vec := make([]float32, embedding.DefaultModel.Dimension())
	vec[0] = 1
	e, err := embedding.New(vec, embedding.DefaultModel)
	require.NoError(t, err)
	return e
}

func fixedEmbedding(t *testing.T, model embedding.Model, hot int) embedding.Embedding {
	t.Helper()
	vec := make([]float32, model.Dimension())
	vec[hot%model.Dimension()] = 1
	e, err := embedding.New(vec, model)
	require.NoError(t, err)
	return e.Normalize()
}
