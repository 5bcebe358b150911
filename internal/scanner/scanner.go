// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Scanner walks a workspace directory tree with a fixed worker count and
// caches per-path metadata for a bounded TTL.
type Scanner struct {
	cfg Config

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	meta    Metadata
	fetched time.Time
}

// New constructs a Scanner. Config is copied; mutating it afterward has
// no effect.
func New(cfg Config) *Scanner {
	return &Scanner{
		cfg:   cfg.withDefaults(),
		cache: make(map[string]cacheEntry),
	}
}

// Scan walks root and returns every non-ignored file path it finds,
// sorted for deterministic output. Immediate children of root are
// distributed across a fixed-size worker pool, each worker walking one
// subtree independently; root-level files are collected directly.
func (s *Scanner) Scan(ctx context.Context, root string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ignore, err := newIgnoreSet(root, s.cfg)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		paths []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(s.cfg.WorkerCount))

	for _, e := range entries {
		e := e
		full := filepath.Join(root, e.Name())
		if ignore.shouldSkip(e.Name()) {
			continue
		}

		if e.IsDir() {
			if err := sem.Acquire(gCtx, 1); err != nil {
				_ = g.Wait()
				return nil, err
			}
			g.Go(func() error {
				defer sem.Release(1)
				found, err := s.walkSubtree(gCtx, full, ignore)
				if err != nil {
					return err
				}
				mu.Lock()
				paths = append(paths, found...)
				mu.Unlock()
				return nil
			})
			continue
		}

		if info, err := e.Info(); err == nil {
			s.storeMetadata(full, metadataFromInfo(info))
		}
		mu.Lock()
		paths = append(paths, full)
		mu.Unlock()
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// walkSubtree walks one directory tree rooted at dir, populating the
// metadata cache as it goes so a later GetMetadata call is typically a
// cache hit rather than a fresh stat.
func (s *Scanner) walkSubtree(ctx context.Context, dir string, ignore *ignoreSet) ([]string, error) {
	var found []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path != dir && ignore.shouldSkip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		s.storeMetadata(path, metadataFromInfo(info))

		if !d.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func metadataFromInfo(info fs.FileInfo) Metadata {
	t := EntryFile
	if info.IsDir() {
		t = EntryDir
	}
	return Metadata{Size: info.Size(), ModTime: info.ModTime(), Type: t}
}

func (s *Scanner) storeMetadata(path string, meta Metadata) {
	s.cacheMu.Lock()
	s.cache[path] = cacheEntry{meta: meta, fetched: nowFunc()}
	s.cacheMu.Unlock()
}

// GetMetadata returns the cached metadata for path if it was populated
// within the configured TTL; otherwise it stats the path directly and
// refreshes the cache.
func (s *Scanner) GetMetadata(path string) (Metadata, error) {
	if s.cfg.MetadataTTL > 0 {
		s.cacheMu.RLock()
		entry, ok := s.cache[path]
		s.cacheMu.RUnlock()
		if ok && nowFunc().Sub(entry.fetched) < s.cfg.MetadataTTL {
			return entry.meta, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	meta := metadataFromInfo(info)
	s.storeMetadata(path, meta)
	return meta, nil
}

// InvalidateMetadata drops any cached entry for path, forcing the next
// GetMetadata call to re-stat it.
func (s *Scanner) InvalidateMetadata(path string) {
	s.cacheMu.Lock()
	delete(s.cache, path)
	s.cacheMu.Unlock()
}

var nowFunc = time.Now
