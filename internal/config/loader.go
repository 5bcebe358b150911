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
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/diagrelay/diagrelay/internal/errs"
)

// loadFromDisk reads path as TOML into a fresh Config, creating it with
// DefaultConfig's contents if it does not yet exist. If overlayPath is
// non-empty and exists, its YAML contents are decoded on top of the
// TOML-sourced value, letting a profile override a handful of fields
// without rewriting the whole file.
func loadFromDisk(path, overlayPath string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.New(errs.KindIO, "config.loadFromDisk", path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.New(errs.KindConfig, "config.loadFromDisk", path, err)
	}

	if overlayPath != "" {
		if err := applyOverlay(&cfg, overlayPath); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// applyOverlay decodes overlayPath as a YAML partial of Config onto cfg.
// A missing overlay file is not an error: the overlay is optional.
func applyOverlay(cfg *Config, overlayPath string) error {
	data, err := os.ReadFile(overlayPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.New(errs.KindIO, "config.applyOverlay", overlayPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errs.New(errs.KindConfig, "config.applyOverlay", overlayPath, err)
	}
	return nil
}

func writeDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.KindIO, "config.writeDefault", path, fmt.Errorf("create config directory: %w", err))
	}
	return saveToDisk(path, DefaultConfig())
}

func saveToDisk(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errs.New(errs.KindSerialization, "config.saveToDisk", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.New(errs.KindIO, "config.saveToDisk", path, err)
	}
	return nil
}
