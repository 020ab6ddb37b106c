// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(d int, fill func(i int) float32) []float32 {
	out := make([]float32, d)
	for i := range out {
		out[i] = fill(i)
	}
	return out
}

func TestNew_DimensionMismatch(t *testing.T) {
	_, err := New([]float32{1, 2, 3}, ModelBGESmallENv15)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNormalize_UnitNormAndIdempotent(t *testing.T) {
	e, err := New(vec(384, func(i int) float32 { return float32(i + 1) }), ModelBGESmallENv15)
	require.NoError(t, err)

	once := e.Normalize()
	twice := once.Normalize()

	var sumSq float64
	for _, v := range once.Vector {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-6)
	assert.Equal(t, once.Vector, twice.Vector)
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	e, err := New(make([]float32, 384), ModelBGESmallENv15)
	require.NoError(t, err)
	out := e.Normalize()
	assert.True(t, out.IsZero())
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	e, err := New(vec(384, func(i int) float32 { return float32(i) * 0.001 }), ModelBGESmallENv15)
	require.NoError(t, err)
	e = e.Normalize()

	blob := e.Serialize()
	require.Len(t, blob, 4*384)

	got, err := Deserialize(blob, e.Model, e.Version)
	require.NoError(t, err)
	assert.Equal(t, e.Vector, got.Vector)
}

func TestDeserialize_BadLength(t *testing.T) {
	_, err := Deserialize(make([]byte, 10), ModelBGESmallENv15, ModelVersion)
	require.Error(t, err)

	_, err = Deserialize(make([]byte, 4*383), ModelBGESmallENv15, ModelVersion)
	require.Error(t, err)
}

func TestCosine_Bounds(t *testing.T) {
	a, _ := New(vec(384, func(i int) float32 { return float32(i%7 - 3) }), ModelBGESmallENv15)
	b, _ := New(vec(384, func(i int) float32 { return float32((i*3)%5 - 2) }), ModelBGESmallENv15)
	a, b = a.Normalize(), b.Normalize()

	sim, err := Cosine(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sim, float32(-1-1e-5))
	assert.LessOrEqual(t, sim, float32(1+1e-5))

	self, err := Cosine(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, self, 1e-5)
}

func TestCosine_DimensionMismatch(t *testing.T) {
	a, _ := New(make([]float32, 384), ModelBGESmallENv15)
	b, _ := New(make([]float32, 1536), ModelTextEmbedding3Small)
	_, err := Cosine(a, b)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestParseModel_UnknownDegradesToDefault(t *testing.T) {
	assert.Equal(t, ModelTextEmbedding3Large, ParseModel("text-embedding-3-large"))
	assert.Equal(t, DefaultModel, ParseModel("some-future-model-v9"))
	assert.Equal(t, DefaultModel, ParseModel(""))
}

func TestModel_Dimension(t *testing.T) {
	assert.Equal(t, 384, ModelBGESmallENv15.Dimension())
	assert.Equal(t, 1536, ModelTextEmbedding3Small.Dimension())
	assert.Equal(t, 3072, ModelTextEmbedding3Large.Dimension())
	assert.Equal(t, 0, Model("bogus").Dimension())
}

func TestFloat32RoundTripPrecision(t *testing.T) {
	// Sanity check that math.Float32bits/frombits is a true bit-for-bit
	// round trip, which Serialize/Deserialize rely on.
	f := float32(0.123456789)
	bits := math.Float32bits(f)
	got := math.Float32frombits(bits)
	assert.Equal(t, f, got)
}
