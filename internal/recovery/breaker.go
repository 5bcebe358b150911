// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diagrelay/diagrelay/internal/errs"
)

// ErrCircuitOpen is returned by Breaker.Do while the circuit is Open.
var ErrCircuitOpen = errors.New("recovery: circuit open")

// State is one of the three circuit-breaker states from §4.7.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures one named dependency's circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that trips the breaker to Open.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in
	// HalfOpen state required to close the breaker again. A single
	// failure in HalfOpen reopens it immediately.
	SuccessThreshold int

	// Timeout is how long the breaker stays Open before allowing a
	// single HalfOpen probe.
	Timeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Breaker is a per-dependency circuit breaker. It is safe for concurrent
// use; all state transitions happen under a single mutex, the same
// one-struct-one-lock shape the teacher uses for its saga executor.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           State
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	probeInFlight   bool
}

// NewBreaker creates a Breaker for the named dependency, starting Closed.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), state: Closed}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn if the breaker allows it. In Open state, before Timeout has
// elapsed, it returns ErrCircuitOpen (kind CircuitOpen) without calling
// fn at all. Once Timeout elapses it transitions to HalfOpen and allows
// exactly one probe at a time through; concurrent callers during the
// probe also see ErrCircuitOpen rather than piling onto the dependency
// while it is still recovering.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return errs.New(errs.KindCircuitOpen, "recovery.Breaker.Do", b.name, ErrCircuitOpen)
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailureLocked()
		return err
	}
	b.onSuccessLocked()
	return nil
}

// allow reports whether a call may proceed, transitioning Open to
// HalfOpen (admitting exactly the first caller past the timeout) as a
// side effect. While HalfOpen, probeInFlight gates admission to one
// caller at a time: it is set the moment a probe is admitted and
// cleared only once that probe's result is recorded, so concurrent
// callers racing in during the probe are rejected rather than piling
// onto a dependency that's still recovering.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.state = HalfOpen
			b.consecutiveOK = 0
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.tripLocked()
		}
	case HalfOpen:
		b.tripLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case Closed:
		b.consecutiveFail = 0
	case HalfOpen:
		b.consecutiveOK++
		b.probeInFlight = false
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveFail = 0
			b.consecutiveOK = 0
		}
	}
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFail = 0
	b.consecutiveOK = 0
	b.probeInFlight = false
}
