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

import "runtime"

// RuntimeMemStatsSource is a PressureSource backed by the Go runtime's
// own memory statistics. It approximates "available" memory as a
// process memory limit minus current heap usage, which is a coarse
// stand-in: it sees only this process's Go heap, not system-wide
// pressure from sibling processes. Deployments that need accurate
// system-wide pressure detection should supply their own PressureSource
// backed by cgroup limits or /proc/meminfo.
type RuntimeMemStatsSource struct {
	// LimitBytes is the soft ceiling this process is expected to stay
	// under (e.g. a container memory limit).
	LimitBytes uint64
}

func (s RuntimeMemStatsSource) AvailableBytes() (uint64, bool) {
	if s.LimitBytes == 0 {
		return 0, false
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc >= s.LimitBytes {
		return 0, true
	}
	return s.LimitBytes - stats.HeapAlloc, true
}
