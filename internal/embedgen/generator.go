// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedgen turns text into embedding.Embedding vectors. Generator
// has two implementations: LocalGenerator, which degrades gracefully to the
// zero vector when its backing model is unreachable, and OpenAIGenerator,
// which calls out to the OpenAI embeddings endpoint for the
// text-embedding-3-{small,large} models.
package embedgen

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// batchConcurrency caps parallel in-flight embed calls during GenerateBatch,
// mirroring the teacher's toolEmbeddingWarmConcurrency semaphore.
const batchConcurrency = 10

// Generator produces normalized embeddings for text under a chosen model.
// Implementations must fail (not silently substitute) when asked for a
// model they do not support.
type Generator interface {
	Generate(ctx context.Context, text string, model embedding.Model) (embedding.Embedding, error)
}

// GenerateBatch fans embed calls for texts out across batchConcurrency
// workers via errgroup, preserving input order in the returned slice. A
// failure on any text aborts the remaining in-flight calls and returns that
// error; partial results are discarded rather than returned alongside an
// error, since a caller cannot tell a zero-value Embedding from a real
// result without another signal.
func GenerateBatch(ctx context.Context, gen Generator, texts []string, model embedding.Model) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, batchConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			e, err := gen.Generate(gctx, text, model)
			if err != nil {
				return fmt.Errorf("embedgen: generate batch item %d: %w", i, err)
			}
			out[i] = e
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
