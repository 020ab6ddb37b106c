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
	"context"
	"fmt"
	"time"
)

// Job is one embedding_jobs row, as handed to internal/jobqueue.
type Job struct {
	JobID        string
	SessionID    string
	ContentHash  string
	Status       string
	RetryCount   int
	ErrorMessage string
}

// FetchPendingJobs returns up to limit pending jobs, oldest first, for the
// job queue worker's batch loop (spec.md §4.F BATCH_SIZE).
func (s *Store) FetchPendingJobs(ctx context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, session_id, content_hash, status, retry_count, COALESCE(error_message, '')
		FROM embedding_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC, job_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetch pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.JobID, &j.SessionID, &j.ContentHash, &j.Status, &j.RetryCount, &j.ErrorMessage); err != nil {
			return nil, fmt.Errorf("store: scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkProcessing transitions a job from pending to processing.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs SET status = 'processing', updated_at = ? WHERE job_id = ?
	`, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("store: mark processing %s: %w", jobID, err)
	}
	return nil
}

// MarkCompleted transitions a job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs SET status = 'completed', error_message = NULL, updated_at = ? WHERE job_id = ?
	`, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("store: mark completed %s: %w", jobID, err)
	}
	return nil
}

// MarkRetry increments retry_count, records errMsg, and resets the job to
// pending so the next Tick picks it back up after the worker's backoff
// delay (spec.md §4.F RETRY_DELAY).
func (s *Store) MarkRetry(ctx context.Context, jobID string, retryCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs SET status = 'pending', retry_count = ?, error_message = ?, updated_at = ? WHERE job_id = ?
	`, retryCount, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("store: mark retry %s: %w", jobID, err)
	}
	return nil
}

// MarkFailed transitions a job to failed after exhausting MAX_RETRIES,
// recording the final error.
func (s *Store) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs SET status = 'failed', error_message = ?, updated_at = ? WHERE job_id = ?
	`, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("store: mark failed %s: %w", jobID, err)
	}
	return nil
}

// ResetProcessingToPending resets every job stuck in processing back to
// pending. Called once at startup so a crash mid-batch (spec.md testable
// property 8) doesn't orphan jobs forever; retry_count is left untouched
// since the attempt never recorded a failure.
func (s *Store) ResetProcessingToPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs SET status = 'pending', updated_at = ? WHERE status = 'processing'
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: reset processing jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reset processing jobs rows affected: %w", err)
	}
	return n, nil
}
