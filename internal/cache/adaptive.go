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

// adaptiveWindow is the number of recent Get outcomes the Adaptive policy
// bases its hit-rate estimate on.
const adaptiveWindow = 128

// adaptiveState tracks a rolling hit-rate window and picks a delegate
// eviction policy from it. The heuristic: a high hit rate means recency
// is a good predictor (stick with LRU); a sagging hit rate means the
// working set no longer fits temporal locality, so prefer a policy that
// reclaims space more aggressively (LFU, then SizeWeighted as the rate
// keeps falling).
type adaptiveState struct {
	window [adaptiveWindow]bool
	pos    int
	filled int
}

func (a *adaptiveState) record(hit bool) {
	a.window[a.pos] = hit
	a.pos = (a.pos + 1) % adaptiveWindow
	if a.filled < adaptiveWindow {
		a.filled++
	}
}

func (a *adaptiveState) recordHit()  { a.record(true) }
func (a *adaptiveState) recordMiss() { a.record(false) }

func (a *adaptiveState) hitRate() float64 {
	if a.filled == 0 {
		return 1 // no data yet: assume healthy, default to LRU
	}
	hits := 0
	for i := 0; i < a.filled; i++ {
		if a.window[i] {
			hits++
		}
	}
	return float64(hits) / float64(a.filled)
}

func (a *adaptiveState) choose() EvictionPolicy {
	switch rate := a.hitRate(); {
	case rate >= 0.7:
		return LRU
	case rate >= 0.4:
		return LFU
	default:
		return SizeWeighted
	}
}
