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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/agent-memory/internal/embedding"
)

// localEmbedRequest mirrors Ollama's /api/embed request body, the teacher's
// own embedding-service wire shape (routing.embedder.go).
type localEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type localEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// LocalGenerator calls a local embedding service (Ollama-compatible
// /api/embed) to embed text for embedding.ModelBGESmallENv15. If the service
// is unreachable, Generate logs a warning and returns the zero vector: the
// zero vector's cosine similarity with any normalized vector is 0, which
// preserves downstream ranking correctness (it simply never scores as a
// match) rather than corrupting results with a fabricated embedding.
type LocalGenerator struct {
	URL    string
	Model  string // the local service's own model name, e.g. "bge-small-en-v1.5"
	Client *http.Client
	Logger *slog.Logger
}

// NewLocalGenerator constructs a LocalGenerator with sane defaults; url and
// modelName may be empty to take the defaults below.
func NewLocalGenerator(url, modelName string, logger *slog.Logger) *LocalGenerator {
	if url == "" {
		url = "http://localhost:11434/api/embed"
	}
	if modelName == "" {
		modelName = string(embedding.ModelBGESmallENv15)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalGenerator{
		URL:    url,
		Model:  modelName,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger,
	}
}

// Generate embeds text under model, which must be embedding.ModelBGESmallENv15
// (LocalGenerator is the reference implementation for the local model only;
// use OpenAIGenerator for the text-embedding-3-* family).
func (g *LocalGenerator) Generate(ctx context.Context, text string, model embedding.Model) (embedding.Embedding, error) {
	if model != embedding.ModelBGESmallENv15 {
		return embedding.Embedding{}, fmt.Errorf("embedgen: LocalGenerator does not support model %s", model)
	}

	vec, err := g.embed(ctx, text)
	if err != nil {
		g.Logger.Warn("local embedding service unreachable, degrading to zero vector",
			slog.String("error", err.Error()))
		zero := make([]float32, model.Dimension())
		e, buildErr := embedding.New(zero, model)
		if buildErr != nil {
			return embedding.Embedding{}, buildErr
		}
		return e, nil
	}

	e, err := embedding.New(vec, model)
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("embedgen: local service returned wrong dimension: %w", err)
	}
	return e.Normalize(), nil
}

func (g *LocalGenerator) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbedRequest{Model: g.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed localEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}
	return parsed.Embeddings[0], nil
}
