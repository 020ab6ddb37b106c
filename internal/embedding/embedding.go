// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding defines the fixed-dimension vector type shared by the
// thread store, the vector store, the embedding generator, and the agent
// aggregator. It has no dependency on any of those packages.
package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned whenever an operation is asked to combine
// or compare two embeddings whose dimension (and therefore model) disagree.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Model is the closed set of embedding models this package understands.
// Every persisted Embedding carries its Model so that two embeddings are
// only ever compared when their model identities match.
type Model string

// The supported models and their fixed dimensions. bge-small-en-v1.5 is the
// default local model; the two text-embedding-3-* entries exist for
// implementations of embedgen.Generator that call out to OpenAI.
const (
	ModelBGESmallENv15       Model = "bge-small-en-v1.5"
	ModelTextEmbedding3Small Model = "text-embedding-3-small"
	ModelTextEmbedding3Large Model = "text-embedding-3-large"

	// DefaultModel is used whenever a caller does not pin a specific model,
	// and is the model an unrecognized persisted name degrades to (spec'd
	// NotFound/Deserialization fallback for unknown model names).
	DefaultModel = ModelBGESmallENv15

	// ModelVersion is the version tag attached to every model entry. All
	// three supported models currently share version "1.0"; a future model
	// upgrade would introduce a distinct version string rather than bump
	// this constant, so that old rows remain self-describing.
	ModelVersion = "1.0"
)

// dimensions maps each known model to its fixed vector length.
var dimensions = map[Model]int{
	ModelBGESmallENv15:       384,
	ModelTextEmbedding3Small: 1536,
	ModelTextEmbedding3Large: 3072,
}

// Dimension returns the fixed vector length for m, or 0 if m is not a known
// model.
func (m Model) Dimension() int {
	return dimensions[m]
}

// Known reports whether m is one of the closed set of supported models.
func (m Model) Known() bool {
	_, ok := dimensions[m]
	return ok
}

// Embedding is a fixed-dimension float32 vector tagged with the model that
// produced it. Two embeddings are only comparable when Model (and therefore
// Dimension) match; Cosine enforces this.
type Embedding struct {
	Vector  []float32
	Model   Model
	Version string
}

// New constructs an Embedding, failing with ErrDimensionMismatch if vector's
// length does not equal model's fixed dimension.
func New(vector []float32, model Model) (Embedding, error) {
	d := model.Dimension()
	if d == 0 || len(vector) != d {
		return Embedding{}, fmt.Errorf("%w: model %s wants %d components, got %d", ErrDimensionMismatch, model, d, len(vector))
	}
	return Embedding{
		Vector:  vector,
		Model:   model,
		Version: ModelVersion,
	}, nil
}

// Dimension returns the embedding's vector length.
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// Normalize returns a copy of e whose vector is divided by its L2 norm; the
// receiver's backing slice is not modified. The zero vector is left unchanged (dividing by a
// zero norm would produce NaNs). Normalize is idempotent: calling it twice
// produces the same result as calling it once, since a unit vector's norm is
// already 1.
func (e Embedding) Normalize() Embedding {
	var sumSq float64
	for _, v := range e.Vector {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return e
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(e.Vector))
	for i, v := range e.Vector {
		out[i] = v / norm
	}
	e.Vector = out
	return e
}

// IsZero reports whether every component of the vector is zero — the
// degraded-mode sentinel an embedding generator may return when its backing
// model is unavailable (see embedgen.LocalGenerator).
func (e Embedding) IsZero() bool {
	for _, v := range e.Vector {
		if v != 0 {
			return false
		}
	}
	return true
}

// Cosine computes the cosine similarity between a and b. Both inputs must
// already be normalized (Cosine does not normalize them itself — it is a
// hot-path primitive called once per row during similarity search); the
// result is simply the dot product. Cosine fails with ErrDimensionMismatch
// when a.Model != b.Model.
func Cosine(a, b Embedding) (float32, error) {
	if a.Model != b.Model || len(a.Vector) != len(b.Vector) {
		return 0, fmt.Errorf("%w: %s (%d) vs %s (%d)", ErrDimensionMismatch, a.Model, len(a.Vector), b.Model, len(b.Vector))
	}
	var dot float32
	for i := range a.Vector {
		dot += a.Vector[i] * b.Vector[i]
	}
	return dot, nil
}

// Serialize packs the vector as little-endian float32, 4 bytes per
// component, with no header. The companion Model/Version/Dimension are
// stored out-of-band by the caller (as separate database columns).
func (e Embedding) Serialize() []byte {
	buf := make([]byte, 4*len(e.Vector))
	for i, v := range e.Vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Deserialize reconstructs an Embedding from a raw little-endian float32
// BLOB produced by Serialize, under the given model and version. It fails
// if the byte length is not a multiple of 4, or does not equal 4*dimension
// for model's dimension. Callers are responsible for resolving an unknown
// persisted model name to DefaultModel (via ParseModel) before calling
// Deserialize — that fallback is a row-level concern, not a framing concern.
func Deserialize(data []byte, model Model, version string) (Embedding, error) {
	if len(data)%4 != 0 {
		return Embedding{}, fmt.Errorf("embedding: blob length %d is not a multiple of 4", len(data))
	}
	d := model.Dimension()
	if d == 0 {
		return Embedding{}, fmt.Errorf("embedding: unknown model %q", model)
	}
	if len(data) != 4*d {
		return Embedding{}, fmt.Errorf("embedding: blob length %d != 4*%d for model %s", len(data), d, model)
	}
	vec := make([]float32, d)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return Embedding{Vector: vec, Model: model, Version: version}, nil
}

// ParseModel resolves a persisted model-name string to a known Model,
// degrading to DefaultModel when the name is empty or unrecognized. This is
// the "Unknown model names degrade to the default" rule from the vector
// store spec: a row written by a future model a reader does not yet know
// about should still come back as *some* usable embedding rather than an
// error.
func ParseModel(name string) Model {
	m := Model(name)
	if m.Known() {
		return m
	}
	return DefaultModel
}
