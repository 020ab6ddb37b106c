// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jobqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/agent-memory/internal/aggregator"
	"github.com/AleutianAI/agent-memory/internal/chatthread"
	"github.com/AleutianAI/agent-memory/internal/embedding"
	"github.com/AleutianAI/agent-memory/internal/store"
)

// stubGenerator produces a deterministic non-zero embedding for any
// non-empty text, and can be made to fail on demand to exercise the retry
// and crash-recovery paths.
type stubGenerator struct {
	failAlways bool
	calls      int
}

func (g *stubGenerator) Generate(_ context.Context, text string, model embedding.Model) (embedding.Embedding, error) {
	g.calls++
	if g.failAlways {
		return embedding.Embedding{}, fmt.Errorf("stub: forced generator failure")
	}
	vec := make([]float32, model.Dimension())
	vec[len(text)%model.Dimension()] = 1
	return embedding.New(vec, model)
}

func newTestWorker(t *testing.T, gen *stubGenerator) (*Worker, *store.Store) {
	t.Helper()
	s, err := store.OpenStateless(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	agg := aggregator.New(s)
	w := New(s, s, s, agg, gen, embedding.DefaultModel, nil, WithRetryDelay(time.Millisecond))
	return w, s
}

func saveSession(t *testing.T, s *store.Store, sessionID, text string) store.SaveResult {
	t.Helper()
	th := chatthread.Thread{
		Title: "t",
		Messages: []chatthread.Message{
			{Role: chatthread.RoleUser, ID: "m1", Content: []chatthread.ContentPart{{Kind: chatthread.PartText, Text: text}}},
		},
	}
	res, err := s.SaveThread(context.Background(), sessionID, th)
	require.NoError(t, err)
	return res
}

func TestWorker_TickProcessesJobToCompletion(t *testing.T) {
	gen := &stubGenerator{}
	w, s := newTestWorker(t, gen)
	ctx := context.Background()

	saveSession(t, s, "sess-1", "hello there")

	require.NoError(t, w.Tick(ctx))

	pending, err := s.PendingEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.False(t, pending)

	e, err := s.GetSessionEmbedding(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, e)

	agentVec, count, err := s.GetAgentEmbedding(ctx, chatthread.NativeAgentID)
	require.NoError(t, err)
	require.NotNil(t, agentVec)
	require.Equal(t, 1, count)
}

func TestWorker_StaleJobFailsOnContentHashMismatch(t *testing.T) {
	gen := &stubGenerator{}
	w, s := newTestWorker(t, gen)
	ctx := context.Background()

	res := saveSession(t, s, "sess-2", "original text")
	// Directly process a job struct with a wrong content hash to simulate staleness.
	w.processOne(ctx, store.Job{JobID: res.JobID, SessionID: "sess-2", ContentHash: "not-the-real-hash", RetryCount: 0})

	jobs, err := s.FetchPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1) // retried, still pending
	require.Equal(t, 1, jobs[0].RetryCount)
}

func TestWorker_ExhaustsRetriesThenFails(t *testing.T) {
	gen := &stubGenerator{failAlways: true}
	w, s := newTestWorker(t, gen)
	ctx := context.Background()

	saveSession(t, s, "sess-3", "will always fail to embed")

	for i := 0; i < MaxRetries; i++ {
		require.NoError(t, w.Tick(ctx))
	}

	jobs, err := s.FetchPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, jobs) // terminal: failed, no longer pending
}

func TestWorker_RunResetsOrphanedProcessingJobs(t *testing.T) {
	gen := &stubGenerator{}
	w, s := newTestWorker(t, gen)
	ctx := context.Background()

	res := saveSession(t, s, "sess-4", "crash mid-batch")
	require.NoError(t, s.MarkProcessing(ctx, res.JobID))

	ctx2, cancel := context.WithCancel(ctx)
	cancel() // Run should still perform the crash-recovery reset before observing ctx.Err()
	_ = w.Run(ctx2)

	jobs, err := s.FetchPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}
