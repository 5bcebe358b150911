// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

func testKey(path string) Key {
	return Key{File: path, Hash: diagnostic.HashOf([]byte(path))}
}

func TestManager_PutThenGet_ReturnsHotEntry(t *testing.T) {
	m := New(Config{})
	key := testKey("/w/a.ts")

	require.NoError(t, m.Put(key, []byte("payload")))

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, TierHot, got.Tier)
	assert.Equal(t, []byte("payload"), got.Value)
	assert.Equal(t, int64(1), got.HitCount)
}

func TestManager_Get_MissingKeyReturnsFalse(t *testing.T) {
	m := New(Config{})
	_, ok := m.Get(testKey("/w/missing.ts"))
	assert.False(t, ok)
}

func TestManager_Get_HitCountsAreMonotonic(t *testing.T) {
	m := New(Config{})
	key := testKey("/w/a.ts")
	require.NoError(t, m.Put(key, []byte("x")))

	var last int64
	for i := 0; i < 5; i++ {
		got, ok := m.Get(key)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got.HitCount, last)
		last = got.HitCount
	}
}

func TestManager_Put_EachKeyInAtMostOneTier(t *testing.T) {
	m := New(Config{HighWaterBytes: 10, EvictionBatchSize: 10})
	for i := 0; i < 20; i++ {
		key := testKey(string(rune('a' + i)))
		require.NoError(t, m.Put(key, []byte("0123456789")))
	}
	assert.Equal(t, 20, m.Len())

	tierOf := make(map[Key]int)
	seen := 0
	for i := 0; i < 20; i++ {
		key := testKey(string(rune('a' + i)))
		_, ok := m.Get(key)
		if ok {
			tierOf[key]++
			seen++
		}
	}
	for k, count := range tierOf {
		assert.Equal(t, 1, count, "key %v counted in more than one tier", k)
	}
}

func TestManager_EvictionReducesResidentBytesBelowHighWater(t *testing.T) {
	m := New(Config{HighWaterBytes: 50, EvictionBatchSize: 100})
	for i := 0; i < 10; i++ {
		key := testKey(string(rune('a' + i)))
		require.NoError(t, m.Put(key, make([]byte, 20)))
	}
	assert.LessOrEqual(t, m.ResidentBytes(), int64(50))
}

func TestManager_GetPromotesColdEntryBackToHot(t *testing.T) {
	m := New(Config{HighWaterBytes: 1, EvictionBatchSize: 10})
	key := testKey("/w/a.ts")
	require.NoError(t, m.Put(key, make([]byte, 100)))

	// With a 1-byte high-water mark, the entry should have been demoted
	// to Cold by the eviction batch triggered inside Put.
	m.mu.Lock()
	tierAfterPut := m.entries[key].tier
	m.mu.Unlock()
	assert.Equal(t, TierCold, tierAfterPut)

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, TierHot, got.Tier)
	assert.Equal(t, 100, len(got.Value))
}

func TestManager_CheckPressure_ForcesDemotionRegardlessOfWaterMark(t *testing.T) {
	m := New(Config{HighWaterBytes: 1_000_000, LowWaterAvailableBytes: 1_000_000})
	key := testKey("/w/a.ts")
	require.NoError(t, m.Put(key, []byte("small")))

	m.cfg.Source = fakePressureSource{available: 10, ok: true}
	m.CheckPressure()

	m.mu.Lock()
	tier := m.entries[key].tier
	m.mu.Unlock()
	assert.Equal(t, TierCold, tier)
}

type fakePressureSource struct {
	available uint64
	ok        bool
}

func (f fakePressureSource) AvailableBytes() (uint64, bool) { return f.available, f.ok }

func TestAdaptiveState_ChoosesPolicyByHitRate(t *testing.T) {
	var a adaptiveState
	for i := 0; i < adaptiveWindow; i++ {
		a.recordHit()
	}
	assert.Equal(t, LRU, a.choose())

	var b adaptiveState
	for i := 0; i < adaptiveWindow; i++ {
		b.recordMiss()
	}
	assert.Equal(t, SizeWeighted, b.choose())
}

func TestManager_Put_SameKeyDoesNotDoubleCountResidentBytes(t *testing.T) {
	m := New(Config{})
	key := testKey("/w/a.ts")
	require.NoError(t, m.Put(key, make([]byte, 10)))
	require.NoError(t, m.Put(key, make([]byte, 30)))
	assert.Equal(t, int64(30), m.ResidentBytes())
	assert.Equal(t, 1, m.Len())
}

func TestRuntimeMemStatsSource_ZeroLimitIsUntrustworthy(t *testing.T) {
	s := RuntimeMemStatsSource{}
	_, ok := s.AvailableBytes()
	assert.False(t, ok)
}

func TestManager_Close_StopsBackgroundMonitorWithoutHanging(t *testing.T) {
	m := New(Config{MonitorInterval: time.Millisecond, Source: fakePressureSource{available: 1 << 30, ok: true}})
	time.Sleep(5 * time.Millisecond)
	m.Close()
}
