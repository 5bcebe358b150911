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

import "fmt"

// FieldError names one invalid field and why, so one bad field never
// invalidates an entire update (the caller sees every violation, not
// just the first).
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every FieldError produced by one Validate
// call.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d invalid fields", len(e.Errors))
	for _, fe := range e.Errors {
		msg += "; " + fe.Error()
	}
	return msg
}

// Validate runs every section's field-scoped validator and returns the
// union of their complaints. A nil return means cfg is acceptable.
func Validate(cfg Config) []FieldError {
	var errs []FieldError
	errs = append(errs, validateProcessing(cfg.Processing)...)
	errs = append(errs, validateCache(cfg.Cache)...)
	errs = append(errs, validateMemory(cfg.Memory)...)
	errs = append(errs, validateErrorRecovery(cfg.ErrorRecovery)...)
	errs = append(errs, validateGit(cfg.Git)...)
	errs = append(errs, validateMetrics(cfg.Metrics)...)
	errs = append(errs, validatePerformance(cfg.Performance)...)
	return errs
}

func validateProcessing(c ProcessingConfig) []FieldError {
	var errs []FieldError
	if c.ChunkSize == 0 {
		errs = append(errs, FieldError{"processing.chunk_size", "must be greater than zero"})
	}
	if c.MaxConcurrentFiles == 0 {
		errs = append(errs, FieldError{"processing.max_concurrent_files", "must be greater than zero"})
	}
	if c.TimeoutSeconds == 0 {
		errs = append(errs, FieldError{"processing.timeout_seconds", "must be greater than zero"})
	}
	return errs
}

func validateCache(c CacheConfig) []FieldError {
	var errs []FieldError
	if !c.PersistentEnabled && !c.MemoryEnabled {
		errs = append(errs, FieldError{"cache.memory_enabled", "at least one of memory_enabled or persistent_enabled must be true"})
	}
	if c.MaxSizeMB == 0 {
		errs = append(errs, FieldError{"cache.max_size_mb", "must be greater than zero"})
	}
	for _, tier := range c.Tiers {
		switch tier {
		case "hot", "warm", "cold":
		default:
			errs = append(errs, FieldError{"cache.tiers", fmt.Sprintf("unrecognized tier %q", tier)})
		}
	}
	return errs
}

func validateMemory(c MemoryConfig) []FieldError {
	var errs []FieldError
	switch c.EvictionPolicy {
	case "lru", "lfu", "size_weighted", "age_weighted", "adaptive":
	default:
		errs = append(errs, FieldError{"memory.eviction_policy", fmt.Sprintf("unrecognized policy %q", c.EvictionPolicy)})
	}
	if c.HighWater <= 0 || c.HighWater > 1 {
		errs = append(errs, FieldError{"memory.high_water", "must be in (0, 1]"})
	}
	if c.LowWater < 0 || c.LowWater >= c.HighWater {
		errs = append(errs, FieldError{"memory.low_water", "must be in [0, high_water)"})
	}
	if c.EvictionBatchSize == 0 {
		errs = append(errs, FieldError{"memory.eviction_batch_size", "must be greater than zero"})
	}
	return errs
}

func validateErrorRecovery(c ErrorRecoveryConfig) []FieldError {
	var errs []FieldError
	if c.MaxRetries == 0 {
		errs = append(errs, FieldError{"error_recovery.max_retries", "must be greater than zero"})
	}
	if c.InitialDelayMS == 0 {
		errs = append(errs, FieldError{"error_recovery.initial_delay_ms", "must be greater than zero"})
	}
	if c.MaxDelayMS < c.InitialDelayMS {
		errs = append(errs, FieldError{"error_recovery.max_delay_ms", "must be >= initial_delay_ms"})
	}
	if c.BackoffMult < 1 {
		errs = append(errs, FieldError{"error_recovery.backoff_mult", "must be >= 1"})
	}
	if c.CircuitBreaker {
		if c.FailureThreshold == 0 {
			errs = append(errs, FieldError{"error_recovery.failure_threshold", "must be greater than zero when circuit_breaker is enabled"})
		}
		if c.SuccessThreshold == 0 {
			errs = append(errs, FieldError{"error_recovery.success_threshold", "must be greater than zero when circuit_breaker is enabled"})
		}
	}
	return errs
}

func validateGit(c GitConfig) []FieldError {
	var errs []FieldError
	if c.Enabled && c.ScanIntervalS == 0 {
		errs = append(errs, FieldError{"git.scan_interval_s", "must be greater than zero when git is enabled"})
	}
	return errs
}

func validateMetrics(c MetricsConfig) []FieldError {
	var errs []FieldError
	if c.Enabled {
		if c.Port < 1024 || c.Port > 65535 {
			errs = append(errs, FieldError{"metrics.port", "must be in 1024..=65535"})
		}
		switch c.Format {
		case "prometheus", "json":
		default:
			errs = append(errs, FieldError{"metrics.format", fmt.Sprintf("unrecognized format %q", c.Format)})
		}
	}
	return errs
}

func validatePerformance(c PerformanceConfig) []FieldError {
	var errs []FieldError
	if c.MaxCPUPercent < 10 || c.MaxCPUPercent > 100 {
		errs = append(errs, FieldError{"performance.max_cpu_percent", "must be in 10..=100"})
	}
	return errs
}
