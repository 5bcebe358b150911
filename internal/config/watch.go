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
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce is how long the watch loop waits for writes to
// settle (editors often emit several events per save) before calling
// Reload.
const defaultWatchDebounce = 200 * time.Millisecond

// StartWatch begins watching the backing config file (and overlay file,
// if set) for changes, debouncing bursts of writes into a single
// Reload call. Watching is off unless a caller explicitly starts it;
// call Close to stop it.
func (m *Manager) StartWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(m.opts.Path)); err != nil {
		watcher.Close()
		return err
	}
	if m.opts.OverlayPath != "" {
		if err := watcher.Add(filepath.Dir(m.opts.OverlayPath)); err != nil {
			watcher.Close()
			return err
		}
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			watcher.Close()
		})
	}

	m.watchMu.Lock()
	m.stopW = stop
	m.watchMu.Unlock()

	go m.watchLoop(watcher, done)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !m.watchedEvent(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(defaultWatchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(defaultWatchDebounce)
			}
		case <-timerC:
			timerC = nil
			if _, err := m.Reload(); err != nil {
				m.log.Warn("debounced config reload failed", "error", err)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) watchedEvent(name string) bool {
	return name == m.opts.Path || (m.opts.OverlayPath != "" && name == m.opts.OverlayPath)
}
