// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config implements the dynamic configuration manager described
// in §4.9: Get returns an atomically-loaded snapshot, Update applies a
// mutator to a copy and validates it before swapping, Reload re-reads
// the backing TOML file the same way, and both broadcast per-field
// change events to subscribers. An optional, off-by-default fsnotify
// watch debounces file edits into Reload calls.
package config

import (
	"sync"
	"sync/atomic"

	"github.com/diagrelay/diagrelay/internal/errs"
	"github.com/diagrelay/diagrelay/pkg/logging"
)

// Options configures a Manager's backing files and logger.
type Options struct {
	// Path is the primary TOML config file. Created with
	// DefaultConfig's contents if it does not exist.
	Path string

	// OverlayPath, if set, is an optional YAML file layered on top of
	// Path on every load and reload.
	OverlayPath string

	Logger *logging.Logger
}

// Manager owns the live Config snapshot and the machinery to update
// and reload it safely from concurrent goroutines.
type Manager struct {
	opts Options
	log  *logging.Logger

	current atomic.Pointer[Config]

	// writeMu serializes Update/Reload so two concurrent callers can't
	// interleave their read-validate-swap-persist sequences; readers go
	// through current and never take this lock.
	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[int]chan FieldChange
	nextS int

	watchMu sync.Mutex
	stopW   func()
}

// NewManager loads opts.Path (creating it with defaults if absent),
// applies any overlay, and returns a ready Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	cfg, err := loadFromDisk(opts.Path, opts.OverlayPath)
	if err != nil {
		return nil, err
	}
	if fieldErrs := Validate(cfg); len(fieldErrs) > 0 {
		return nil, errs.New(errs.KindConfig, "config.NewManager", opts.Path, &ValidationError{Errors: fieldErrs})
	}

	m := &Manager{
		opts: opts,
		log:  opts.Logger,
		subs: make(map[int]chan FieldChange),
	}
	m.current.Store(&cfg)
	return m, nil
}

// Get returns the current configuration snapshot. The returned value is
// a copy of the atomically-loaded Config; mutating it has no effect on
// the Manager.
func (m *Manager) Get() Config {
	return *m.current.Load()
}

// Update copies the current config, applies fn to the copy, validates
// it, and — only if valid — atomically swaps it in, persists it to
// disk, diffs it against the previous value, and broadcasts the
// resulting FieldChanges. An invalid mutation leaves the previous
// config live and returns a *ValidationError.
func (m *Manager) Update(fn func(*Config)) ([]FieldChange, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	old := *m.current.Load()
	next := old
	fn(&next)

	if fieldErrs := Validate(next); len(fieldErrs) > 0 {
		return nil, errs.New(errs.KindConfig, "config.Manager.Update", m.opts.Path, &ValidationError{Errors: fieldErrs})
	}

	m.current.Store(&next)
	if err := saveToDisk(m.opts.Path, next); err != nil {
		m.log.Warn("failed to persist updated config", "path", m.opts.Path, "error", err)
	}

	changes := diffConfig(old, next)
	m.broadcast(changes)
	return changes, nil
}

// Reload re-reads the backing file (and overlay, if configured) and
// behaves like Update: a parse or validation failure logs the
// rejection and leaves the previous config live.
func (m *Manager) Reload() ([]FieldChange, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next, err := loadFromDisk(m.opts.Path, m.opts.OverlayPath)
	if err != nil {
		m.log.Warn("config reload failed to read file, keeping previous config", "path", m.opts.Path, "error", err)
		return nil, err
	}
	if fieldErrs := Validate(next); len(fieldErrs) > 0 {
		verr := &ValidationError{Errors: fieldErrs}
		m.log.Warn("config reload rejected, keeping previous config", "path", m.opts.Path, "error", verr)
		return nil, errs.New(errs.KindConfig, "config.Manager.Reload", m.opts.Path, verr)
	}

	old := *m.current.Load()
	m.current.Store(&next)
	changes := diffConfig(old, next)
	m.broadcast(changes)
	return changes, nil
}

// Subscribe returns a channel of FieldChange events and an unsubscribe
// function. The channel is buffered; a subscriber that falls behind
// simply misses events rather than blocking Update/Reload.
func (m *Manager) Subscribe() (<-chan FieldChange, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextS
	m.nextS++
	ch := make(chan FieldChange, 32)
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			close(c)
			delete(m.subs, id)
		}
	}
}

func (m *Manager) broadcast(changes []FieldChange) {
	if len(changes) == 0 {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		for _, c := range changes {
			select {
			case ch <- c:
			default:
			}
		}
	}
}

// Close stops any running file watch and closes every subscriber
// channel.
func (m *Manager) Close() {
	m.watchMu.Lock()
	if m.stopW != nil {
		m.stopW()
		m.stopW = nil
	}
	m.watchMu.Unlock()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}
