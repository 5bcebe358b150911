// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package incremental maintains a file-path -> last-hash map and only
// re-runs expensive work (normalization, analysis) against files whose
// content actually changed since the last pass (§4.5).
package incremental

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// WorkerFunc processes one file's content and returns whatever the
// caller wants cached against that file (a Snapshot, a normalized
// diagnostic list, …).
type WorkerFunc[T any] func(ctx context.Context, path string, content []byte) (T, error)

// FileError records one file's worker failure without aborting the rest
// of the batch (§4.5's per-file isolation rule).
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ProcessingStats summarizes one Process call.
type ProcessingStats struct {
	Total        int
	Cached       int
	Processed    int
	Time         time.Duration
	CacheHitRate float64
	Errors       []FileError
}

// Processor tracks the last-seen content hash per file path and the most
// recent successful worker output for unchanged files. T is the worker's
// output type.
type Processor[T any] struct {
	mu            sync.RWMutex
	hashes        map[string]diagnostic.FileHash
	cachedOutputs map[string]T

	maxConcurrentFiles int
}

// New builds a Processor bounding concurrent file hashing/processing to
// maxConcurrentFiles (at least 1).
func New[T any](maxConcurrentFiles int) *Processor[T] {
	if maxConcurrentFiles < 1 {
		maxConcurrentFiles = 1
	}
	return &Processor[T]{
		hashes:             make(map[string]diagnostic.FileHash),
		cachedOutputs:      make(map[string]T),
		maxConcurrentFiles: maxConcurrentFiles,
	}
}

// DetectChanged reads each path, computes its content hash concurrently
// (bounded by maxConcurrentFiles), and returns the subset whose hash
// differs from the recorded value alongside the full current-hash map.
// It does not mutate the Processor's recorded hashes — only Process
// commits new hashes, and only after a successful run.
func (p *Processor[T]) DetectChanged(ctx context.Context, paths []string) ([]string, map[string]diagnostic.FileHash, error) {
	current := make(map[string]diagnostic.FileHash, len(paths))

	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(p.maxConcurrentFiles))
	g, gCtx := errgroup.WithContext(ctx)

	for _, path := range paths {
		path := path
		if err := sem.Acquire(gCtx, 1); err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			hash := diagnostic.HashOf(data)

			mu.Lock()
			current[path] = hash
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	p.mu.RLock()
	var changed []string
	for path, hash := range current {
		if prev, ok := p.hashes[path]; !ok || prev != hash {
			changed = append(changed, path)
		}
	}
	p.mu.RUnlock()

	return changed, current, nil
}

// Process detects the changed subset of paths, runs worker over it in
// parallel (bounded by maxConcurrentFiles, per chunkSize-sized batches),
// merges the results with cached outputs for unchanged files, and
// commits the updated hash map only after every worker has returned. A
// per-file worker error is appended to the returned stats' error list;
// that file's hash entry is left unchanged so it is retried on the next
// call (§4.5).
func (p *Processor[T]) Process(ctx context.Context, paths []string, chunkSize int, worker WorkerFunc[T]) (map[string]T, ProcessingStats, error) {
	start := time.Now()
	if chunkSize < 1 {
		chunkSize = len(paths)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}

	changed, current, err := p.DetectChanged(ctx, paths)
	if err != nil {
		return nil, ProcessingStats{}, err
	}

	changedContent := make(map[string][]byte, len(changed))
	for _, path := range changed {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ProcessingStats{}, fmt.Errorf("read %s: %w", path, err)
		}
		changedContent[path] = data
	}

	results := make(map[string]T, len(paths))
	newHashes := make(map[string]diagnostic.FileHash, len(changed))
	var errsMu sync.Mutex
	var fileErrors []FileError

	for chunkStart := 0; chunkStart < len(changed); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(changed) {
			chunkEnd = len(changed)
		}
		chunk := changed[chunkStart:chunkEnd]

		sem := semaphore.NewWeighted(int64(p.maxConcurrentFiles))
		g, gCtx := errgroup.WithContext(ctx)

		for _, path := range chunk {
			path := path
			if err := sem.Acquire(gCtx, 1); err != nil {
				errsMu.Lock()
				fileErrors = append(fileErrors, FileError{Path: path, Err: err})
				errsMu.Unlock()
				continue
			}
			g.Go(func() error {
				defer sem.Release(1)
				out, err := worker(gCtx, path, changedContent[path])
				if err != nil {
					errsMu.Lock()
					fileErrors = append(fileErrors, FileError{Path: path, Err: err})
					errsMu.Unlock()
					return nil // per-file errors never abort the batch
				}
				errsMu.Lock()
				results[path] = out
				newHashes[path] = current[path]
				errsMu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // worker errors are captured above, never returned here
	}

	p.mu.Lock()
	cached := 0
	for _, path := range paths {
		if _, wasChanged := changedContent[path]; wasChanged {
			continue
		}
		if out, ok := p.cachedOutputs[path]; ok {
			results[path] = out
			cached++
		}
	}
	for path, hash := range newHashes {
		p.hashes[path] = hash
	}
	for path, out := range results {
		p.cachedOutputs[path] = out
	}
	p.mu.Unlock()

	stats := ProcessingStats{
		Total:     len(paths),
		Cached:    cached,
		Processed: len(newHashes),
		Time:      time.Since(start),
		Errors:    fileErrors,
	}
	if stats.Total > 0 {
		stats.CacheHitRate = float64(stats.Cached) / float64(stats.Total)
	}
	return results, stats, nil
}
