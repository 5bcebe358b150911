// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config provides the dynamic, hot-reloadable configuration tree
for the diagnostics pipeline.

# Overview

Config is a root struct made of one section per subsystem:
processing, cache, memory, error recovery, git awareness, metrics,
feature toggles, and performance tuning. The backing file format is
TOML; an optional profile-overlay file in YAML may layer team- or
environment-specific overrides on top of it.

# Example

	processing.chunk_size = 64
	processing.parallel = true

	[cache]
	max_size_mb = 512
	tiers = ["hot", "warm", "cold"]
*/
package config

// ProcessingConfig tunes how files are parsed and normalized.
type ProcessingConfig struct {
	// Parallel enables concurrent processing of independent files.
	Parallel bool `toml:"parallel"`

	// ChunkSize is how many files a single worker batch processes.
	ChunkSize uint `toml:"chunk_size"`

	// MaxConcurrentFiles bounds the number of files processed at once.
	MaxConcurrentFiles uint `toml:"max_concurrent_files"`

	// FileSizeLimitMB rejects files larger than this before parsing.
	FileSizeLimitMB uint `toml:"file_size_limit_mb"`

	// TimeoutSeconds bounds a single file's processing time.
	TimeoutSeconds uint `toml:"timeout_seconds"`
}

// CacheConfig tunes the tiered cache (internal/cache).
type CacheConfig struct {
	PersistentEnabled      bool     `toml:"persistent_enabled"`
	MemoryEnabled          bool     `toml:"memory_enabled"`
	MaxSizeMB              uint     `toml:"max_size_mb"`
	MaxEntries             uint     `toml:"max_entries"`
	TTLHours               uint     `toml:"ttl_hours"`
	CleanupIntervalMinutes uint     `toml:"cleanup_interval_minutes"`
	CompressionEnabled     bool     `toml:"compression_enabled"`
	Tiers                  []string `toml:"tiers"`
}

// MemoryConfig tunes the cache's memory-pressure monitor.
type MemoryConfig struct {
	MaxMemoryMB       uint    `toml:"max_memory_mb"`
	MaxEntries        uint    `toml:"max_entries"`
	EvictionPolicy    string  `toml:"eviction_policy"`
	HighWater         float64 `toml:"high_water"`
	LowWater          float64 `toml:"low_water"`
	EvictionBatchSize uint    `toml:"eviction_batch_size"`
	MonitorIntervalS  uint    `toml:"monitor_interval_s"`
	PressureDetection bool    `toml:"pressure_detection"`
}

// ErrorRecoveryConfig tunes internal/recovery's retry policy and circuit
// breaker.
type ErrorRecoveryConfig struct {
	CircuitBreaker   bool    `toml:"circuit_breaker"`
	MaxRetries       uint    `toml:"max_retries"`
	InitialDelayMS   uint    `toml:"initial_delay_ms"`
	MaxDelayMS       uint    `toml:"max_delay_ms"`
	BackoffMult      float64 `toml:"backoff_mult"`
	FailureThreshold uint    `toml:"failure_threshold"`
	SuccessThreshold uint    `toml:"success_threshold"`
	TimeoutMS        uint    `toml:"timeout_ms"`
	Jitter           bool    `toml:"jitter"`
}

// GitConfig tunes the optional git-awareness features of the file
// scanner (tracking staged/untracked files, branch-aware scans).
type GitConfig struct {
	Enabled         bool `toml:"enabled"`
	ScanIntervalS   uint `toml:"scan_interval_s"`
	IgnoreUntracked bool `toml:"ignore_untracked"`
	TrackStaged     bool `toml:"track_staged"`
	AutoRefresh     bool `toml:"auto_refresh"`
	RespectIgnore   bool `toml:"respect_ignore"`
	BranchAware     bool `toml:"branch_aware"`
}

// MetricsConfig tunes the Prometheus/OTel instrumentation surface.
type MetricsConfig struct {
	Enabled             bool     `toml:"enabled"`
	Port                uint     `toml:"port"`
	CollectionIntervalS uint     `toml:"collection_interval_s"`
	RetentionHours      uint     `toml:"retention_hours"`
	Format              string   `toml:"format"`
	OTel                bool     `toml:"otel"`
	Custom              []string `toml:"custom"`
}

// FeaturesConfig toggles optional, higher-risk behaviors.
type FeaturesConfig struct {
	AutoOptimize  bool `toml:"auto_optimize"`
	HealthMonitor bool `toml:"health_monitor"`
	CacheWarming  bool `toml:"cache_warming"`
	Advanced      bool `toml:"advanced"`
	Experimental  bool `toml:"experimental"`
}

// PerformanceConfig tunes background maintenance cadence and resource
// ceilings.
type PerformanceConfig struct {
	OptimizeIntervalMin    uint `toml:"optimize_interval_min"`
	HealthCheckIntervalMin uint `toml:"health_check_interval_min"`
	GCThresholdMB          uint `toml:"gc_threshold_mb"`
	MaxCPUPercent          uint `toml:"max_cpu_percent"`
	AdaptiveScaling        bool `toml:"adaptive_scaling"`
}

// Config is the root configuration tree. Every field group maps to one
// subsystem; a Manager never hands out a pointer into its own live
// copy, so a Config value returned by Get is always safe to read
// without additional locking.
type Config struct {
	Processing    ProcessingConfig    `toml:"processing"`
	Cache         CacheConfig         `toml:"cache"`
	Memory        MemoryConfig        `toml:"memory"`
	ErrorRecovery ErrorRecoveryConfig `toml:"error_recovery"`
	Git           GitConfig           `toml:"git"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Features      FeaturesConfig      `toml:"features"`
	Performance   PerformanceConfig   `toml:"performance"`
}

// DefaultConfig returns the configuration used when no file exists yet
// on first run.
func DefaultConfig() Config {
	return Config{
		Processing: ProcessingConfig{
			Parallel:           true,
			ChunkSize:          32,
			MaxConcurrentFiles: 8,
			FileSizeLimitMB:    10,
			TimeoutSeconds:     30,
		},
		Cache: CacheConfig{
			PersistentEnabled:      true,
			MemoryEnabled:          true,
			MaxSizeMB:              256,
			MaxEntries:             50_000,
			TTLHours:               24,
			CleanupIntervalMinutes: 15,
			CompressionEnabled:     false,
			Tiers:                  []string{"hot", "warm", "cold"},
		},
		Memory: MemoryConfig{
			MaxMemoryMB:       512,
			MaxEntries:        50_000,
			EvictionPolicy:    "lru",
			HighWater:         0.85,
			LowWater:          0.60,
			EvictionBatchSize: 32,
			MonitorIntervalS:  10,
			PressureDetection: true,
		},
		ErrorRecovery: ErrorRecoveryConfig{
			CircuitBreaker:   true,
			MaxRetries:       5,
			InitialDelayMS:   100,
			MaxDelayMS:       5_000,
			BackoffMult:      2.0,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			TimeoutMS:        30_000,
			Jitter:           true,
		},
		Git: GitConfig{
			Enabled:         true,
			ScanIntervalS:   30,
			IgnoreUntracked: false,
			TrackStaged:     true,
			AutoRefresh:     true,
			RespectIgnore:   true,
			BranchAware:     true,
		},
		Metrics: MetricsConfig{
			Enabled:             true,
			Port:                9090,
			CollectionIntervalS: 15,
			RetentionHours:      168,
			Format:              "prometheus",
			OTel:                false,
			Custom:              nil,
		},
		Features: FeaturesConfig{
			AutoOptimize:  true,
			HealthMonitor: true,
			CacheWarming:  false,
			Advanced:      false,
			Experimental:  false,
		},
		Performance: PerformanceConfig{
			OptimizeIntervalMin:    30,
			HealthCheckIntervalMin: 5,
			GCThresholdMB:          512,
			MaxCPUPercent:          80,
			AdaptiveScaling:        true,
		},
	}
}
