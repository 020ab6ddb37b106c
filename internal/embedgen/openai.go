// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedgen

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// OpenAIGenerator calls the OpenAI embeddings endpoint for the
// text-embedding-3-{small,large} models. Unlike LocalGenerator it does not
// degrade to the zero vector: a paid API call that fails is a real error the
// caller (the job queue) should retry, not a signal to silently rank this
// session as unrelated to everything.
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator constructs a generator from an API key.
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{client: openai.NewClient(apiKey)}
}

func openAIModelName(model embedding.Model) (openai.EmbeddingModel, error) {
	switch model {
	case embedding.ModelTextEmbedding3Small:
		return openai.SmallEmbedding3, nil
	case embedding.ModelTextEmbedding3Large:
		return openai.LargeEmbedding3, nil
	default:
		return "", fmt.Errorf("embedgen: OpenAIGenerator does not support model %s", model)
	}
}

// Generate embeds text under model, which must be one of the two OpenAI
// text-embedding-3 variants.
func (g *OpenAIGenerator) Generate(ctx context.Context, text string, model embedding.Model) (embedding.Embedding, error) {
	oaModel, err := openAIModelName(model)
	if err != nil {
		return embedding.Embedding{}, err
	}

	resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: oaModel,
	})
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("embedgen: openai CreateEmbeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return embedding.Embedding{}, fmt.Errorf("embedgen: openai returned no embeddings")
	}

	e, err := embedding.New(resp.Data[0].Embedding, model)
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("embedgen: openai returned wrong dimension: %w", err)
	}
	return e.Normalize(), nil
}
