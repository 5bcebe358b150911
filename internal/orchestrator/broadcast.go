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
	"sync"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// Event is one broadcast unit: a freshly ingested snapshot tagged with
// its per-file sequence number, per §5's ordering guarantee (a watcher
// observing Sequence, as assigned by nextSequence, increase by one per
// file knows it has not missed or reordered an update for that file).
type Event struct {
	Sequence uint64
	Snapshot diagnostic.Snapshot
}

// subscriber is one Watch() caller's delivery channel. missed counts the
// consecutive sends that found the channel full: once it reaches
// dropThreshold, the subscriber is dropped rather than allowed to stall
// the broadcaster (§9).
type subscriber struct {
	ch      chan Event
	missed  int
}

type broadcaster struct {
	mu            sync.Mutex
	subscribers   map[int]*subscriber
	nextID        int
	bufferSize    int
	dropThreshold int
	seq           map[string]uint64

	onDrop func()
}

func newBroadcaster(bufferSize, dropThreshold int) *broadcaster {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if dropThreshold < 1 {
		dropThreshold = 3
	}
	return &broadcaster{
		subscribers:   make(map[int]*subscriber),
		bufferSize:    bufferSize,
		dropThreshold: dropThreshold,
		seq:           make(map[string]uint64),
	}
}

// subscribe registers a new subscriber and returns its delivery channel
// plus an unsubscribe function.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	b.subscribers[id] = sub

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
}

// nextSequence returns the next per-file sequence number, starting at 1.
func (b *broadcaster) nextSequence(file string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[file]++
	return b.seq[file]
}

// publish fans evt out to every live subscriber. A subscriber whose
// channel is full has its miss count incremented instead of blocking the
// broadcaster; once a subscriber accumulates dropThreshold consecutive
// misses it is unsubscribed and onDrop is invoked.
func (b *broadcaster) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- evt:
			sub.missed = 0
		default:
			sub.missed++
			if sub.missed >= b.dropThreshold {
				close(sub.ch)
				delete(b.subscribers, id)
				if b.onDrop != nil {
					b.onDrop()
				}
			}
		}
	}
}

// count returns the current number of live subscribers.
func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// closeAll unsubscribes every live subscriber, closing their channels.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
