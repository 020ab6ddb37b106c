// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package websearch

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// CircuitBreakingProvider wraps a Provider so repeated failures trip a
// per-provider circuit breaker; while open, Search fails fast with a
// retryable error so the dispatcher moves on to the next candidate instead
// of waiting out a dead provider's timeout on every query.
type CircuitBreakingProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakingProvider wraps inner with a breaker named name. It trips
// once at least 5 requests have been seen and at least half have failed, and
// stays open for a 30s cool-down before probing again — grounded on the
// pack's own DefaultCircuitBreaker thresholds.
func NewCircuitBreakingProvider(name string, inner Provider) *CircuitBreakingProvider {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
	return &CircuitBreakingProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Search executes inner.Search under the breaker. An open breaker surfaces
// as a "503"-flavored error so IsRetryable treats it as transient.
func (p *CircuitBreakingProvider) Search(ctx context.Context, query string) ([]Result, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Search(ctx, query)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("websearch: circuit open (503): %w", err)
		}
		return nil, err
	}
	return out.([]Result), nil
}

// RateLimitedProvider throttles calls to inner to at most rl's rate,
// blocking until a token is available or ctx is cancelled.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a token-bucket limiter allowing
// requestsPerSecond sustained calls with a burst of the same size.
func NewRateLimitedProvider(inner Provider, requestsPerSecond float64) *RateLimitedProvider {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Search waits for a rate-limiter token, then delegates to inner.
func (p *RateLimitedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("websearch: rate limiter wait: %w", err)
	}
	return p.inner.Search(ctx, query)
}
