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

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func alwaysTransient(error) Classification { return Transient }
func alwaysFatal(error) Classification     { return Fatal }

func TestDo_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryPolicy(), alwaysTransient, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrorsUpToMaxAttempts(t *testing.T) {
	calls := 0
	policy := RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 3}
	err := Do(context.Background(), policy, alwaysTransient, func(ctx context.Context) error {
		calls++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsImmediatelyOnFatalClassification(t *testing.T) {
	calls := 0
	policy := RetryPolicy{InitialDelay: time.Millisecond, MaxAttempts: 5}
	err := Do(context.Background(), policy, alwaysFatal, func(ctx context.Context) error {
		calls++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	policy := RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 5}
	err := Do(context.Background(), policy, alwaysTransient, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsContextErrorWhenCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{InitialDelay: 50 * time.Millisecond, MaxAttempts: 5}

	calls := 0
	err := Do(ctx, policy, alwaysTransient, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errBoom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DelayForCapsAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond, Multiplier: 10, MaxAttempts: 5}
	d := policy.withDefaults().delayFor(4)
	assert.LessOrEqual(t, d, 15*time.Millisecond)
}

func TestRetryPolicy_DelayForJitterIsAdditiveNotReplacement(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Hour, Multiplier: 2, MaxAttempts: 5, Jitter: true}

	// Base exponential delay for attempt 1 is InitialDelay (100ms); with
	// additive jitter in [0, base) the result must never fall below the
	// base itself. A replacement/full-jitter implementation would
	// regularly produce values under 100ms, so this pins the chosen
	// semantics down against a regression.
	for i := 0; i < 50; i++ {
		d := policy.delayFor(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestRetryPolicy_DelayForJitterStillCapsAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond, Multiplier: 10, MaxAttempts: 5, Jitter: true}

	for i := 0; i < 50; i++ {
		d := policy.withDefaults().delayFor(4)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}

func TestRetryPolicy_DelayForNoJitterIsDeterministic(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 5}

	assert.Equal(t, 10*time.Millisecond, policy.delayFor(1))
	assert.Equal(t, 20*time.Millisecond, policy.delayFor(2))
	assert.Equal(t, 40*time.Millisecond, policy.delayFor(3))
}
