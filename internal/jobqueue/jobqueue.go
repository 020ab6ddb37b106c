// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jobqueue runs the single background worker that materializes
// pending session embeddings: it drains embedding_jobs rows, loads their
// thread, calls an embedding generator, writes the resulting vector, and
// folds it into the owning agent's global embedding.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/agent-memory/internal/aggregator"
	"github.com/AleutianAI/agent-memory/internal/chatthread"
	"github.com/AleutianAI/agent-memory/internal/embedding"
	"github.com/AleutianAI/agent-memory/internal/embedgen"
	"github.com/AleutianAI/agent-memory/internal/sessiontext"
	"github.com/AleutianAI/agent-memory/internal/store"
	"github.com/AleutianAI/agent-memory/internal/transient"
)

// ErrStaleJob is returned by process when a job's recorded content hash no
// longer matches the thread's current text — the session was saved again
// before this job ran.
var ErrStaleJob = errors.New("content hash mismatch: job is stale")

// Tunables, per spec.md §4.F.
const (
	BatchSize  = 10
	MaxRetries = 3
	RetryDelay = 5 * time.Second
	IdlePoll   = 1 * time.Second
)

// Job is one embedding_jobs row.
type Job = store.Job

// ThreadLoader is the subset of ThreadStore the worker needs to load a
// thread and confirm its text hasn't drifted out from under a stale job.
type ThreadLoader interface {
	LoadThread(ctx context.Context, sessionID string) (chatthread.Thread, error)
	SessionAgent(ctx context.Context, sessionID string) (agentID, agentType string, err error)
	ClearPendingEmbedding(ctx context.Context, sessionID string) error
}

// VectorWriter is the subset of VectorStore the worker needs to persist the
// generated session embedding.
type VectorWriter interface {
	StoreSessionEmbedding(ctx context.Context, sessionID string, e embedding.Embedding, contentHash string) error
}

// JobStore is the subset of the job table's CRUD the worker drives.
type JobStore interface {
	FetchPendingJobs(ctx context.Context, limit int) ([]Job, error)
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkRetry(ctx context.Context, jobID string, retryCount int, errMsg string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	ResetProcessingToPending(ctx context.Context) (int64, error)
}

// Worker is the single background embedding-job processor. It is driven
// either by Run's internal poll loop or, in tests, by repeated calls to
// Tick.
type Worker struct {
	jobs       JobStore
	threads    ThreadLoader
	vectors    VectorWriter
	aggregator *aggregator.Aggregator
	generator  embedgen.Generator
	model      embedding.Model
	logger     *slog.Logger
	retryDelay time.Duration

	stop chan struct{}
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithRetryDelay overrides RetryDelay, primarily so tests can drive the
// retry/fail state machine without waiting out the real spec'd delay.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Worker) { w.retryDelay = d }
}

// New constructs a Worker. model is the default model passed to generator
// for every job (spec.md §4.F.process step 3).
func New(jobs JobStore, threads ThreadLoader, vectors VectorWriter, agg *aggregator.Aggregator, gen embedgen.Generator, model embedding.Model, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		jobs:       jobs,
		threads:    threads,
		vectors:    vectors,
		aggregator: agg,
		generator:  gen,
		model:      model,
		logger:     logger,
		retryDelay: RetryDelay,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run resets any jobs stuck in `processing` (crash recovery) and then polls
// forever until ctx is cancelled or Stop is called. The reset runs even when
// ctx is already cancelled on entry.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.jobs.ResetProcessingToPending(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("jobqueue: crash recovery reset: %w", err)
	}
	if n > 0 {
		w.logger.Info("jobqueue: reset orphaned processing jobs to pending", slog.Int64("count", n))
	}

	ticker := time.NewTicker(IdlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("jobqueue: tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop signals Run to exit its poll loop.
func (w *Worker) Stop() {
	close(w.stop)
}

// Tick fetches and processes up to BatchSize pending jobs, in order. It is
// exported so tests can drive the worker deterministically without a real
// timer (spec.md §9's "tests drive it by poking a tick").
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.jobs.FetchPendingJobs(ctx, BatchSize)
	if err != nil {
		return fmt.Errorf("jobqueue: fetch pending jobs: %w", err)
	}

	for _, job := range jobs {
		w.processOne(ctx, job)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, job Job) {
	attemptID := uuid.NewString()
	log := w.logger.With(slog.String("job_id", job.JobID), slog.String("attempt_id", attemptID))

	if err := w.jobs.MarkProcessing(ctx, job.JobID); err != nil {
		log.Error("jobqueue: mark processing failed", slog.String("error", err.Error()))
		return
	}

	if err := w.process(ctx, job); err != nil {
		w.handleFailure(ctx, job, err, log)
		return
	}

	if err := w.jobs.MarkCompleted(ctx, job.JobID); err != nil {
		log.Error("jobqueue: mark completed failed", slog.String("error", err.Error()))
	}
}

// process implements spec.md §4.F.process.
func (w *Worker) process(ctx context.Context, job Job) error {
	th, err := w.threads.LoadThread(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load thread %s: %w", job.SessionID, err)
	}

	text := sessiontext.Extract(th.Messages)
	hash := sessiontext.ContentHash(text)
	if hash != job.ContentHash {
		return fmt.Errorf("%w for %s", ErrStaleJob, job.SessionID)
	}

	e, err := w.generator.Generate(ctx, text, w.model)
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}
	e = e.Normalize()

	if err := w.vectors.StoreSessionEmbedding(ctx, job.SessionID, e, hash); err != nil {
		return fmt.Errorf("store session embedding: %w", err)
	}

	if err := w.threads.ClearPendingEmbedding(ctx, job.SessionID); err != nil {
		return fmt.Errorf("clear pending_embedding: %w", err)
	}

	agentID, agentType, err := w.threads.SessionAgent(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("look up session agent: %w", err)
	}
	if w.aggregator != nil {
		if err := w.aggregator.Fold(ctx, agentID, agentType, e); err != nil {
			return fmt.Errorf("fold into agent global embedding: %w", err)
		}
	}
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, job Job, procErr error, log *slog.Logger) {
	// spec.md §4.F retries every failure up to MaxRetries regardless of
	// kind; the transient/permanent verdict is recorded only as a log
	// annotation here, shared with websearch via internal/transient.
	classified := transient.Wrap(procErr)

	retryCount := job.RetryCount + 1
	if retryCount >= MaxRetries {
		log.Warn("jobqueue: job exhausted retries, marking failed",
			slog.Int("retry_count", retryCount), slog.Bool("retryable", classified.Retryable), slog.String("error", procErr.Error()))
		if err := w.jobs.MarkFailed(ctx, job.JobID, procErr.Error()); err != nil {
			log.Error("jobqueue: mark failed failed", slog.String("error", err.Error()))
		}
		return
	}

	log.Warn("jobqueue: job failed, scheduling retry",
		slog.Int("retry_count", retryCount), slog.Bool("retryable", classified.Retryable), slog.String("error", procErr.Error()))
	if err := w.jobs.MarkRetry(ctx, job.JobID, retryCount, procErr.Error()); err != nil {
		log.Error("jobqueue: mark retry failed", slog.String("error", err.Error()))
		return
	}

	delay := backoff.NewConstantBackOff(w.retryDelay).NextBackOff()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
