// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator is the single public entry point of the ingestion
// core (§4.8): Ingest chains normalize -> privacy filter -> snapshot
// build -> cache put -> store enqueue -> broadcast; Export renders a
// snapshot passed in by the caller and reads neither the cache nor the
// store; Watch
// hands out a bounded, per-file-ordered stream of freshly ingested
// snapshots.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/diagrelay/diagrelay/internal/cache"
	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
	"github.com/diagrelay/diagrelay/internal/normalize"
	"github.com/diagrelay/diagrelay/internal/privacy"
	"github.com/diagrelay/diagrelay/internal/recovery"
	"github.com/diagrelay/diagrelay/internal/store"
	"github.com/diagrelay/diagrelay/pkg/logging"
)

// Config wires an Orchestrator's dependencies and policy.
type Config struct {
	Workspace diagnostic.WorkspaceInfo
	Policy    privacy.Policy
	Cache     *cache.Manager
	Store     *store.Store
	Metrics   *Metrics
	Logger    *logging.Logger

	// StoreQueueSize bounds the buffered channel between Ingest and the
	// background store-writer goroutine.
	StoreQueueSize int

	// WatchBufferSize bounds each Watch subscriber's channel.
	WatchBufferSize int

	// WatchDropThreshold is how many consecutive full-channel sends a
	// subscriber tolerates before being dropped.
	WatchDropThreshold int

	// StoreRetry/StoreBreaker configure the recovery.Guard wrapping
	// every store write.
	StoreRetry   recovery.RetryPolicy
	StoreBreaker recovery.BreakerConfig
}

// Orchestrator is the capture pipeline's public facade.
type Orchestrator struct {
	cfg    Config
	tracer trace.Tracer
	guard  *recovery.Guard
	log    *logging.Logger

	bc *broadcaster

	writeCh chan writeJob
	closed  chan struct{}
	wg      sync.WaitGroup
}

type writeJob struct {
	ctx  context.Context
	snap diagnostic.Snapshot
}

// New builds an Orchestrator and starts its background store-writer
// goroutine. Close must be called to drain and stop it.
func New(cfg Config) *Orchestrator {
	if cfg.StoreQueueSize <= 0 {
		cfg.StoreQueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	o := &Orchestrator{
		cfg:     cfg,
		tracer:  otel.Tracer("diagrelay.orchestrator"),
		guard:   recovery.NewGuard("history_store", cfg.StoreBreaker, cfg.StoreRetry),
		log:     cfg.Logger,
		bc:      newBroadcaster(cfg.WatchBufferSize, cfg.WatchDropThreshold),
		writeCh: make(chan writeJob, cfg.StoreQueueSize),
		closed:  make(chan struct{}),
	}
	o.bc.onDrop = func() {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.SubscribersDropped.Inc()
		}
	}

	o.wg.Add(1)
	go o.runStoreWriter()

	return o
}

// Ingest normalizes raw per source, applies the privacy policy, builds a
// Snapshot, writes it into the cache, enqueues it for durable storage,
// and broadcasts it to Watch subscribers — all without blocking on the
// store write (§4.8's "non-blocking submission").
func (o *Orchestrator) Ingest(ctx context.Context, file string, source normalize.Source, payload json.RawMessage, content []byte) (diagnostic.Snapshot, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Ingest")
	defer span.End()

	diags, warnings, err := normalize.Normalize(normalize.RawPayload{Source: source, Payload: payload})
	if err != nil {
		span.RecordError(err)
		return diagnostic.Snapshot{}, err
	}
	if len(warnings) > 0 && o.cfg.Metrics != nil {
		o.cfg.Metrics.WarningsTotal.Add(float64(len(warnings)))
	}

	filtered, err := privacy.Apply(diags, o.cfg.Policy)
	if err != nil {
		span.RecordError(err)
		return diagnostic.Snapshot{}, err
	}

	hash := diagnostic.HashOf(content)
	snap := diagnostic.NewSnapshot(o.cfg.Workspace, file, hash, filtered)

	if o.cfg.Cache != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			span.RecordError(err)
			return diagnostic.Snapshot{}, errs.New(errs.KindSerialization, "orchestrator.Ingest", file, err)
		}
		if err := o.cfg.Cache.Put(cache.Key{File: file, Hash: hash}, data); err != nil {
			span.RecordError(err)
			return diagnostic.Snapshot{}, err
		}
	}

	select {
	case o.writeCh <- writeJob{ctx: detachedContext(ctx), snap: snap}:
	default:
		o.log.WarnContext(ctx, "store write queue full, dropping enqueue", "file", file)
	}

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SnapshotsTotal.WithLabelValues(string(source)).Inc()
		o.cfg.Metrics.DiagnosticsTotal.WithLabelValues(diagnostic.SeverityError.String()).Add(float64(snap.Counts.Errors))
		o.cfg.Metrics.DiagnosticsTotal.WithLabelValues(diagnostic.SeverityWarning.String()).Add(float64(snap.Counts.Warnings))
		o.cfg.Metrics.DiagnosticsTotal.WithLabelValues(diagnostic.SeverityInfo.String()).Add(float64(snap.Counts.Info))
		o.cfg.Metrics.DiagnosticsTotal.WithLabelValues(diagnostic.SeverityHint.String()).Add(float64(snap.Counts.Hints))
	}

	o.bc.publish(Event{Sequence: o.bc.nextSequence(file), Snapshot: snap})

	return snap, nil
}

// Watch returns a per-subscriber channel of ingested snapshots and an
// unsubscribe function. Cross-file ordering is not guaranteed; per-file
// ordering is, since each file's events are published in Ingest's own
// call order (§4.8).
func (o *Orchestrator) Watch() (<-chan Event, func()) {
	ch, unsubscribe := o.bc.subscribe()
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.WatchSubscribers.Set(float64(o.bc.count()))
	}
	return ch, func() {
		unsubscribe()
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.WatchSubscribers.Set(float64(o.bc.count()))
		}
	}
}

// Close stops accepting new store writes, drains the ones already
// enqueued, and closes every live Watch subscriber's channel. Calling
// Close again after it has returned is a no-op.
func (o *Orchestrator) Close() {
	select {
	case <-o.closed:
		return
	default:
	}
	close(o.closed)
	o.wg.Wait()
	o.bc.closeAll()
}

func (o *Orchestrator) runStoreWriter() {
	defer o.wg.Done()
	for {
		select {
		case job := <-o.writeCh:
			o.writeOne(job)
		case <-o.closed:
			for {
				select {
				case job := <-o.writeCh:
					o.writeOne(job)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) writeOne(job writeJob) {
	if o.cfg.Store == nil {
		return
	}
	err := o.guard.Do(job.ctx, classifyStoreErr, func(ctx context.Context) error {
		return o.cfg.Store.Record(ctx, job.snap)
	})
	if err != nil {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.StoreWriteErrors.Inc()
		}
		o.log.ErrorContext(job.ctx, "store write failed", "file", job.snap.File, "error", err)
	}
}

func classifyStoreErr(err error) recovery.Classification {
	switch errs.KindOf(err) {
	case errs.KindDatabase, errs.KindConcurrency, errs.KindTransient:
		return recovery.Transient
	default:
		return recovery.Fatal
	}
}

// detachedContext keeps a value-bearing context alive for the
// background writer after the originating request context may have
// been cancelled, while still allowing the writer's own per-call
// timeouts (set inside Store.Record via the pool) to apply.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
