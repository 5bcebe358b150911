// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the tiered (Hot/Warm/Cold) in-memory cache and
// pressure-aware memory manager described in §4.4: bound resident memory
// while maximizing hit rate across diagnostic snapshots and normalized
// payloads. Values are opaque byte slices — callers (the orchestrator, in
// practice) serialize snapshots before Put and decode them after Get, so
// this package stays free of any dependency on the diagnostic model
// beyond the Key it indexes by.
package cache

import (
	"time"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// Tier is the residency level of a cache entry.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// EvictionPolicy selects which resident entries to demote when the
// manager needs to reclaim space.
type EvictionPolicy string

const (
	LRU          EvictionPolicy = "lru"
	LFU          EvictionPolicy = "lfu"
	SizeWeighted EvictionPolicy = "size_weighted"
	AgeWeighted  EvictionPolicy = "age_weighted"
	Adaptive     EvictionPolicy = "adaptive"
)

// Key identifies a cache entry by file path and content hash, per §3's
// CacheEntry definition — two payloads for the same path but different
// hash are different entries.
type Key struct {
	File string
	Hash diagnostic.FileHash
}

// Entry is the externally visible snapshot of a cache slot returned by
// Get. Value is always the logical, uncompressed payload regardless of
// which tier currently stores it.
type Entry struct {
	Key        Key
	Value      []byte
	Tier       Tier
	Size       int
	LastAccess time.Time
	HitCount   int64
	InsertedAt time.Time
	Compressed bool
}

// PressureSource reports available system memory. Implementations may
// back this with cgroup limits, /proc/meminfo, or any platform-specific
// source; the manager only needs a bytes-available reading and whether
// that reading is trustworthy.
type PressureSource interface {
	AvailableBytes() (bytes uint64, ok bool)
}
