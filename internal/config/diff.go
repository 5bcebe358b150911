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

import "reflect"

// FieldChange reports that one dotted field path changed value between
// an Update/Reload's old and new Config.
type FieldChange struct {
	Field string
	Old   any
	New   any
}

// diffConfig compares old and next field by field, section by section
// (deliberately hand-written rather than reflection-driven: the option
// tree is small and fixed, and an explicit comparison makes it obvious
// at a glance which fields participate in change notification).
func diffConfig(old, next Config) []FieldChange {
	var changes []FieldChange
	changes = append(changes, diffProcessing("processing", old.Processing, next.Processing)...)
	changes = append(changes, diffCache("cache", old.Cache, next.Cache)...)
	changes = append(changes, diffMemory("memory", old.Memory, next.Memory)...)
	changes = append(changes, diffErrorRecovery("error_recovery", old.ErrorRecovery, next.ErrorRecovery)...)
	changes = append(changes, diffGit("git", old.Git, next.Git)...)
	changes = append(changes, diffMetrics("metrics", old.Metrics, next.Metrics)...)
	changes = append(changes, diffFeatures("features", old.Features, next.Features)...)
	changes = append(changes, diffPerformance("performance", old.Performance, next.Performance)...)
	return changes
}

func diffProcessing(prefix string, a, b ProcessingConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".parallel", a.Parallel, b.Parallel)
	c = appendIf(c, prefix+".chunk_size", a.ChunkSize, b.ChunkSize)
	c = appendIf(c, prefix+".max_concurrent_files", a.MaxConcurrentFiles, b.MaxConcurrentFiles)
	c = appendIf(c, prefix+".file_size_limit_mb", a.FileSizeLimitMB, b.FileSizeLimitMB)
	c = appendIf(c, prefix+".timeout_seconds", a.TimeoutSeconds, b.TimeoutSeconds)
	return c
}

func diffCache(prefix string, a, b CacheConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".persistent_enabled", a.PersistentEnabled, b.PersistentEnabled)
	c = appendIf(c, prefix+".memory_enabled", a.MemoryEnabled, b.MemoryEnabled)
	c = appendIf(c, prefix+".max_size_mb", a.MaxSizeMB, b.MaxSizeMB)
	c = appendIf(c, prefix+".max_entries", a.MaxEntries, b.MaxEntries)
	c = appendIf(c, prefix+".ttl_hours", a.TTLHours, b.TTLHours)
	c = appendIf(c, prefix+".cleanup_interval_minutes", a.CleanupIntervalMinutes, b.CleanupIntervalMinutes)
	c = appendIf(c, prefix+".compression_enabled", a.CompressionEnabled, b.CompressionEnabled)
	if !reflect.DeepEqual(a.Tiers, b.Tiers) {
		c = append(c, FieldChange{Field: prefix + ".tiers", Old: a.Tiers, New: b.Tiers})
	}
	return c
}

func diffMemory(prefix string, a, b MemoryConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".max_memory_mb", a.MaxMemoryMB, b.MaxMemoryMB)
	c = appendIf(c, prefix+".max_entries", a.MaxEntries, b.MaxEntries)
	c = appendIf(c, prefix+".eviction_policy", a.EvictionPolicy, b.EvictionPolicy)
	c = appendIf(c, prefix+".high_water", a.HighWater, b.HighWater)
	c = appendIf(c, prefix+".low_water", a.LowWater, b.LowWater)
	c = appendIf(c, prefix+".eviction_batch_size", a.EvictionBatchSize, b.EvictionBatchSize)
	c = appendIf(c, prefix+".monitor_interval_s", a.MonitorIntervalS, b.MonitorIntervalS)
	c = appendIf(c, prefix+".pressure_detection", a.PressureDetection, b.PressureDetection)
	return c
}

func diffErrorRecovery(prefix string, a, b ErrorRecoveryConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".circuit_breaker", a.CircuitBreaker, b.CircuitBreaker)
	c = appendIf(c, prefix+".max_retries", a.MaxRetries, b.MaxRetries)
	c = appendIf(c, prefix+".initial_delay_ms", a.InitialDelayMS, b.InitialDelayMS)
	c = appendIf(c, prefix+".max_delay_ms", a.MaxDelayMS, b.MaxDelayMS)
	c = appendIf(c, prefix+".backoff_mult", a.BackoffMult, b.BackoffMult)
	c = appendIf(c, prefix+".failure_threshold", a.FailureThreshold, b.FailureThreshold)
	c = appendIf(c, prefix+".success_threshold", a.SuccessThreshold, b.SuccessThreshold)
	c = appendIf(c, prefix+".timeout_ms", a.TimeoutMS, b.TimeoutMS)
	c = appendIf(c, prefix+".jitter", a.Jitter, b.Jitter)
	return c
}

func diffGit(prefix string, a, b GitConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".enabled", a.Enabled, b.Enabled)
	c = appendIf(c, prefix+".scan_interval_s", a.ScanIntervalS, b.ScanIntervalS)
	c = appendIf(c, prefix+".ignore_untracked", a.IgnoreUntracked, b.IgnoreUntracked)
	c = appendIf(c, prefix+".track_staged", a.TrackStaged, b.TrackStaged)
	c = appendIf(c, prefix+".auto_refresh", a.AutoRefresh, b.AutoRefresh)
	c = appendIf(c, prefix+".respect_ignore", a.RespectIgnore, b.RespectIgnore)
	c = appendIf(c, prefix+".branch_aware", a.BranchAware, b.BranchAware)
	return c
}

func diffMetrics(prefix string, a, b MetricsConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".enabled", a.Enabled, b.Enabled)
	c = appendIf(c, prefix+".port", a.Port, b.Port)
	c = appendIf(c, prefix+".collection_interval_s", a.CollectionIntervalS, b.CollectionIntervalS)
	c = appendIf(c, prefix+".retention_hours", a.RetentionHours, b.RetentionHours)
	c = appendIf(c, prefix+".format", a.Format, b.Format)
	c = appendIf(c, prefix+".otel", a.OTel, b.OTel)
	if !reflect.DeepEqual(a.Custom, b.Custom) {
		c = append(c, FieldChange{Field: prefix + ".custom", Old: a.Custom, New: b.Custom})
	}
	return c
}

func diffFeatures(prefix string, a, b FeaturesConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".auto_optimize", a.AutoOptimize, b.AutoOptimize)
	c = appendIf(c, prefix+".health_monitor", a.HealthMonitor, b.HealthMonitor)
	c = appendIf(c, prefix+".cache_warming", a.CacheWarming, b.CacheWarming)
	c = appendIf(c, prefix+".advanced", a.Advanced, b.Advanced)
	c = appendIf(c, prefix+".experimental", a.Experimental, b.Experimental)
	return c
}

func diffPerformance(prefix string, a, b PerformanceConfig) []FieldChange {
	var c []FieldChange
	c = appendIf(c, prefix+".optimize_interval_min", a.OptimizeIntervalMin, b.OptimizeIntervalMin)
	c = appendIf(c, prefix+".health_check_interval_min", a.HealthCheckIntervalMin, b.HealthCheckIntervalMin)
	c = appendIf(c, prefix+".gc_threshold_mb", a.GCThresholdMB, b.GCThresholdMB)
	c = appendIf(c, prefix+".max_cpu_percent", a.MaxCPUPercent, b.MaxCPUPercent)
	c = appendIf(c, prefix+".adaptive_scaling", a.AdaptiveScaling, b.AdaptiveScaling)
	return c
}

func appendIf[T comparable](changes []FieldChange, field string, a, b T) []FieldChange {
	if a != b {
		changes = append(changes, FieldChange{Field: field, Old: a, New: b})
	}
	return changes
}
