// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "diagrelay"
const ingestSubsystem = "ingest"

// Metrics holds the Prometheus instrumentation for one Orchestrator.
// Build with NewMetrics(prometheus.NewRegistry()) so tests can use an
// isolated registry instead of the global default one.
type Metrics struct {
	SnapshotsTotal   *prometheus.CounterVec
	DiagnosticsTotal *prometheus.CounterVec
	WarningsTotal    prometheus.Counter
	StoreWriteErrors prometheus.Counter
	SubscribersDropped prometheus.Counter
	WatchSubscribers  prometheus.Gauge
}

// NewMetrics registers ingest/export/watch counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ingestSubsystem,
				Name:      "snapshots_total",
				Help:      "Total snapshots ingested by source",
			},
			[]string{"source"},
		),
		DiagnosticsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ingestSubsystem,
				Name:      "diagnostics_total",
				Help:      "Total diagnostics ingested by severity",
			},
			[]string{"severity"},
		),
		WarningsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ingestSubsystem,
				Name:      "conversion_warnings_total",
				Help:      "Total conversion warnings emitted while normalizing payloads",
			},
		),
		StoreWriteErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ingestSubsystem,
				Name:      "store_write_errors_total",
				Help:      "Total history-store write failures after recovery exhausted its retries",
			},
		),
		SubscribersDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "watch",
				Name:      "subscribers_dropped_total",
				Help:      "Total watch subscribers dropped for falling too far behind",
			},
		),
		WatchSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "watch",
				Name:      "subscribers",
				Help:      "Current number of active watch subscribers",
			},
		),
	}
}
