// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import "context"

// Guard composes a Breaker around a RetryPolicy, matching §4.7: the
// breaker wraps the retried call, so it observes the outcome of the
// whole retry sequence as a single attempt rather than each individual
// one. A dependency that is failing every attempt trips the breaker
// exactly once per RetryPolicy exhaustion, not once per retry.
type Guard struct {
	Breaker *Breaker
	Policy  RetryPolicy
}

// NewGuard builds a Guard for one named dependency.
func NewGuard(name string, breakerCfg BreakerConfig, retryPolicy RetryPolicy) *Guard {
	return &Guard{Breaker: NewBreaker(name, breakerCfg), Policy: retryPolicy}
}

// Do runs fn under the breaker, retrying transient failures per Policy
// inside the guarded call.
func (g *Guard) Do(ctx context.Context, classify Classify, fn func(ctx context.Context) error) error {
	return g.Breaker.Do(ctx, func(ctx context.Context) error {
		return Do(ctx, g.Policy, classify, fn)
	})
}
