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
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreSet decides whether a directory entry should be skipped during a
// scan. It combines the built-in names, the caller's glob patterns, and
// (optionally) a root-level .gitignore file.
type ignoreSet struct {
	names    map[string]struct{}
	globs    []string
	gitignore []string
}

func newIgnoreSet(root string, cfg Config) (*ignoreSet, error) {
	s := &ignoreSet{names: make(map[string]struct{}, len(builtinIgnores))}
	for _, n := range builtinIgnores {
		s.names[n] = struct{}{}
	}
	s.globs = append(s.globs, cfg.IgnoreGlobs...)

	if cfg.UseGitignore {
		patterns, err := readGitignore(filepath.Join(root, ".gitignore"))
		if err != nil {
			return nil, err
		}
		s.gitignore = patterns
	}
	return s, nil
}

// readGitignore parses a subset of gitignore syntax: blank lines and
// lines starting with '#' are skipped, everything else is treated as a
// filepath.Match glob against the entry's base name. Negation ('!') and
// directory-anchored ('/prefix') forms are not supported.
func readGitignore(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(strings.TrimPrefix(line, "/"), "/"))
	}
	return patterns, scanner.Err()
}

// shouldSkip reports whether the entry with the given base name should be
// excluded from the scan.
func (s *ignoreSet) shouldSkip(base string) bool {
	if _, ok := s.names[base]; ok {
		return true
	}
	for _, g := range s.globs {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	for _, g := range s.gitignore {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}
