// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transient holds the one error classifier the job queue and the
// web-search dispatcher both use to tell a transient (network/IO) failure
// from a permanent one (spec.md §7). The classifier is intentionally a
// conservative textual match over the error's message; spec.md §9 flags
// this as the thing a typed-error rewrite should replace.
package transient

import "strings"

// retryableMarkers are the substrings that mark a failure as transient.
var retryableMarkers = []string{"429", "500", "502", "503", "504", "timeout"}

// Classify reports whether err's message contains a marker associated with
// transient failures (rate limiting, server errors, timeouts).
func Classify(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// JobError wraps a failure with the transient/permanent classification so
// callers that log or branch on it don't re-derive Classify's verdict.
type JobError struct {
	Err       error
	Retryable bool
}

// Wrap classifies err and returns a *JobError carrying the verdict. Wrap(nil)
// returns nil.
func Wrap(err error) *JobError {
	if err == nil {
		return nil
	}
	return &JobError{Err: err, Retryable: Classify(err)}
}

func (e *JobError) Error() string { return e.Err.Error() }

func (e *JobError) Unwrap() error { return e.Err }
