// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recovery provides the retry and circuit-breaker primitives every
// outbound call in the capture pipeline (store writes, external sinks)
// wraps itself in, per §4.7. A Breaker composes around a retried call so
// it only ever sees the outcome of the full attempt sequence, never an
// individual attempt.
package recovery

import (
	"context"
	"math/rand"
	"time"
)

// Classification tells Do whether an error is worth retrying.
type Classification int

const (
	// Fatal errors are returned to the caller immediately.
	Fatal Classification = iota
	// Transient errors are retried according to the RetryPolicy.
	Transient
)

// Classify inspects an error returned by the wrapped call and decides
// whether it is worth another attempt.
type Classify func(err error) Classification

// RetryPolicy configures exponential backoff with an attempt cap.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

// DefaultRetryPolicy returns a policy with conservative defaults:
// up to 5 attempts, doubling from 100ms, capped at 5s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	return p
}

// delayFor returns the backoff delay before attempt number n (1-based,
// the delay preceding attempt n+1), capped at MaxDelay. When Jitter is
// set, a uniform random amount in [0, delay) is added to the base
// exponential delay (not substituted for it), and the sum is re-capped
// at MaxDelay so jitter never pushes a wait past the configured ceiling.
func (p RetryPolicy) delayFor(n int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 1; i < n; i++ {
		delay *= p.Multiplier
		if delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d)))
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

// Do runs fn, retrying per policy as long as classify reports the
// returned error as Transient and attempts remain. It returns the last
// error seen once attempts are exhausted, or immediately on a Fatal
// classification or context cancellation.
func Do(ctx context.Context, policy RetryPolicy, classify Classify, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if classify(err) == Fatal {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(policy.delayFor(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
