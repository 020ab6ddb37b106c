// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregator keeps each agent's global embedding consistent with the
// set of session embeddings folded into it, via incremental mean pooling.
package aggregator

import (
	"context"
	"fmt"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// AggregationMethod is the only supported fold strategy today; stored
// alongside the vector so a future alternative method is distinguishable in
// existing rows.
const AggregationMethod = "mean"

// AgentEmbeddingStore is the subset of VectorStore the aggregator needs to
// read and write an agent's global embedding.
type AgentEmbeddingStore interface {
	GetAgentEmbedding(ctx context.Context, agentID string) (*embedding.Embedding, int, error)
	StoreAgentEmbedding(ctx context.Context, agentID, agentType string, e embedding.Embedding, sessionCount int, method string) error
}

// Aggregator folds newly written session embeddings into their owning
// agent's global embedding.
type Aggregator struct {
	store AgentEmbeddingStore
}

// New constructs an Aggregator backed by store.
func New(store AgentEmbeddingStore) *Aggregator {
	return &Aggregator{store: store}
}

// Fold applies spec.md §4.G: if the agent has no global embedding yet, the
// session embedding becomes the global with session_count=1; otherwise the
// existing mean is updated incrementally and renormalized.
func (a *Aggregator) Fold(ctx context.Context, agentID, agentType string, session embedding.Embedding) error {
	current, count, err := a.store.GetAgentEmbedding(ctx, agentID)
	if err != nil {
		return fmt.Errorf("aggregator: get agent embedding %s: %w", agentID, err)
	}

	if current == nil {
		return a.store.StoreAgentEmbedding(ctx, agentID, agentType, session, 1, AggregationMethod)
	}

	next, err := Fold(*current, count, session)
	if err != nil {
		return fmt.Errorf("aggregator: fold session into %s: %w", agentID, err)
	}
	return a.store.StoreAgentEmbedding(ctx, agentID, agentType, next, count+1, AggregationMethod)
}

// Fold is the pure incremental-mean-pooling step: given the current mean
// (over n prior folds) and a new sample v, it returns the renormalized
// updated mean. It is exported standalone from (*Aggregator).Fold so the
// arithmetic can be tested without a store.
func Fold(mean embedding.Embedding, n int, sample embedding.Embedding) (embedding.Embedding, error) {
	if mean.Model != sample.Model || mean.Dimension() != sample.Dimension() {
		return embedding.Embedding{}, fmt.Errorf("%w: mean is %s(%d), sample is %s(%d)",
			embedding.ErrDimensionMismatch, mean.Model, mean.Dimension(), sample.Model, sample.Dimension())
	}

	out := make([]float32, mean.Dimension())
	fn := float32(n)
	for i := range out {
		out[i] = (mean.Vector[i]*fn + sample.Vector[i]) / (fn + 1)
	}
	next := embedding.Embedding{Vector: out, Model: mean.Model, Version: mean.Version}
	return next.Normalize(), nil
}
