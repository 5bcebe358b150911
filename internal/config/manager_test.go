// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Options{Path: filepath.Join(dir, "diagrelay.toml")})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestNewManager_CreatesDefaultFileOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagrelay.toml")

	m, err := NewManager(Options{Path: path})
	require.NoError(t, err)
	defer m.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestManager_Get_ReturnsIndependentCopy(t *testing.T) {
	m := newTestManager(t)
	cfg := m.Get()
	cfg.Processing.ChunkSize = 9999

	assert.NotEqual(t, uint(9999), m.Get().Processing.ChunkSize)
}

func TestManager_Update_AppliesValidMutationAndPersists(t *testing.T) {
	m := newTestManager(t)

	changes, err := m.Update(func(c *Config) {
		c.Processing.ChunkSize = 64
		c.Cache.MaxSizeMB = 1024
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, uint(64), m.Get().Processing.ChunkSize)
	assert.Equal(t, uint(1024), m.Get().Cache.MaxSizeMB)

	data, err := os.ReadFile(m.opts.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size")
}

func TestManager_Update_RejectsInvalidMutationAndKeepsPrevious(t *testing.T) {
	m := newTestManager(t)
	before := m.Get()

	_, err := m.Update(func(c *Config) {
		c.Processing.ChunkSize = 0
	})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, m.Get())
}

func TestManager_Update_OneBadFieldDoesNotHideOthers(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(func(c *Config) {
		c.Processing.ChunkSize = 0
		c.Memory.HighWater = 2.0
	})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
}

func TestManager_Reload_PicksUpExternalFileEdit(t *testing.T) {
	m := newTestManager(t)

	cfg := m.Get()
	cfg.Processing.ChunkSize = 128
	require.NoError(t, saveToDisk(m.opts.Path, cfg))

	changes, err := m.Reload()
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	assert.Equal(t, uint(128), m.Get().Processing.ChunkSize)
}

func TestManager_Reload_RejectsInvalidFileAndKeepsPrevious(t *testing.T) {
	m := newTestManager(t)
	before := m.Get()

	require.NoError(t, os.WriteFile(m.opts.Path, []byte("processing.chunk_size = 0\n"), 0o644))

	_, err := m.Reload()
	require.Error(t, err)
	assert.Equal(t, before, m.Get())
}

func TestManager_Subscribe_ReceivesFieldChangeOnUpdate(t *testing.T) {
	m := newTestManager(t)
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	_, err := m.Update(func(c *Config) {
		c.Processing.ChunkSize = 64
	})
	require.NoError(t, err)

	select {
	case change := <-ch:
		assert.Equal(t, "processing.chunk_size", change.Field)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for field change")
	}
}

func TestManager_Subscribe_UnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(t)
	ch, unsubscribe := m.Subscribe()
	unsubscribe()

	_, err := m.Update(func(c *Config) {
		c.Processing.ChunkSize = 64
	})
	require.NoError(t, err)

	_, open := <-ch
	assert.False(t, open)
}

func TestManager_OverlayFile_AppliesOnTopOfTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagrelay.toml")
	overlay := filepath.Join(dir, "profile.yaml")

	require.NoError(t, os.WriteFile(overlay, []byte("processing:\n  chunk_size: 256\n"), 0o644))

	m, err := NewManager(Options{Path: path, OverlayPath: overlay})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, uint(256), m.Get().Processing.ChunkSize)
}
