// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"sync"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/orchestrator"
)

// latestIndex tracks the most recently ingested Snapshot per file. The
// cache.Manager is keyed by content hash (for its own eviction policy),
// not by file, so GET /export needs its own "latest" lookup; it gets
// one by subscribing to the orchestrator's own Watch feed rather than
// reaching into cache internals.
type latestIndex struct {
	mu   sync.RWMutex
	byFile map[string]diagnostic.Snapshot
}

func newLatestIndex(orch *orchestrator.Orchestrator) (*latestIndex, func()) {
	idx := &latestIndex{byFile: make(map[string]diagnostic.Snapshot)}

	ch, unsubscribe := orch.Watch()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				idx.store(ev.Snapshot)
			case <-done:
				return
			}
		}
	}()

	return idx, func() {
		close(done)
		unsubscribe()
	}
}

func (idx *latestIndex) store(snap diagnostic.Snapshot) {
	idx.mu.Lock()
	idx.byFile[snap.File] = snap
	idx.mu.Unlock()
}

func (idx *latestIndex) get(file string) (diagnostic.Snapshot, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	snap, ok := idx.byFile[file]
	return snap, ok
}
