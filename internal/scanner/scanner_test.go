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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_FindsFilesAcrossSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a")
	writeFile(t, filepath.Join(root, "sub", "b.go"), "package sub")
	writeFile(t, filepath.Join(root, "sub", "nested", "c.go"), "package nested")

	s := New(Config{})
	paths, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "sub", "b.go"),
		filepath.Join(root, "sub", "nested", "c.go"),
	}, paths)
}

func TestScan_SkipsBuiltinIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "module.exports = {}")
	writeFile(t, filepath.Join(root, "target", "debug", "bin"), "binary")

	s := New(Config{})
	paths, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "main.go")}, paths)
}

func TestScan_HonorsUserProvidedIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.go"), "package root")
	writeFile(t, filepath.Join(root, "drop.tmp"), "scratch")
	writeFile(t, filepath.Join(root, "sub", "drop.tmp"), "scratch")

	s := New(Config{IgnoreGlobs: []string{"*.tmp"}})
	paths, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "keep.go")}, paths)
}

func TestScan_HonorsGitignoreWhenEnabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\nbuild\n")
	writeFile(t, filepath.Join(root, "app.go"), "package root")
	writeFile(t, filepath.Join(root, "debug.log"), "log output")
	writeFile(t, filepath.Join(root, "build", "out.bin"), "binary")

	s := New(Config{UseGitignore: true})
	paths, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "app.go")}, paths)
}

func TestScan_GitignoreIgnoredUnlessEnabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "debug.log"), "log output")

	s := New(Config{})
	paths, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Contains(t, paths, filepath.Join(root, "debug.log"))
}

func TestScan_ContextCancellationStopsTraversal(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		writeFile(t, filepath.Join(root, "sub"+string(rune('a'+i)), "f.go"), "package sub")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Config{WorkerCount: 2})
	_, err := s.Scan(ctx, root)
	assert.Error(t, err)
}

func TestGetMetadata_ReturnsSizeAndModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	s := New(Config{MetadataTTL: time.Minute})
	_, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	meta, err := s.GetMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("package a")), meta.Size)
	assert.Equal(t, EntryFile, meta.Type)
	assert.WithinDuration(t, time.Now(), meta.ModTime, time.Minute)
}

func TestGetMetadata_ServesCachedValueWithinTTL(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	s := New(Config{MetadataTTL: time.Hour})
	first, err := s.GetMetadata(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package a // changed"), 0o644))

	second, err := s.GetMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetMetadata_RefetchesAfterInvalidate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	s := New(Config{MetadataTTL: time.Hour})
	first, err := s.GetMetadata(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package a // changed, much longer now"), 0o644))
	s.InvalidateMetadata(path)

	second, err := s.GetMetadata(path)
	require.NoError(t, err)
	assert.NotEqual(t, first.Size, second.Size)
}

func TestGetMetadata_ZeroTTLAlwaysRefetches(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	s := New(Config{})
	first, err := s.GetMetadata(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package a // changed, much longer now"), 0o644))

	second, err := s.GetMetadata(path)
	require.NoError(t, err)
	assert.NotEqual(t, first.Size, second.Size)
}

func TestGetMetadata_MissingPathReturnsError(t *testing.T) {
	s := New(Config{})
	_, err := s.GetMetadata(filepath.Join(t.TempDir(), "nope.go"))
	assert.Error(t, err)
}
