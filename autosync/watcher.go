// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package autosync decides when a sync pass is worth running. It watches local
// bookmark changes, app lifecycle transitions and connectivity, and raises a
// SyncNeeded notification; running the pass is left to the listener.
package autosync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/internal/events"
)

// Reason says why a sync was requested
type Reason string

const (
	ReasonNone         Reason = "None"
	ReasonInitial      Reason = "Initial"
	ReasonLaunched     Reason = "Launched"
	ReasonExplicit     Reason = "Explicit"
	ReasonBackgrounded Reason = "Backgrounded"
	ReasonForegrounded Reason = "Foregrounded"
	ReasonTimer        Reason = "Timer"
	ReasonCameOnline   Reason = "CameOnline"
)

// SyncNeeded is raised when a pass should run
type SyncNeeded struct {
	Reason                  Reason
	ShouldSyncArticleBodies bool
}

// BookmarkEventSource is satisfied by *instapaperdb.Store
type BookmarkEventSource interface {
	SubscribeBookmarks(fn func(instapaperdb.BookmarkChange)) events.Subscription
}

var _ BookmarkEventSource = (*instapaperdb.Store)(nil)

// Config holds configuration for the watcher
type Config struct {
	DBIdleInterval                time.Duration // 5s
	MinTimeInBackgroundBeforeSync time.Duration // 60s
	MinTimeOfflineBeforeSync      time.Duration // 1h
	MinTimeOfflineBeforeFullSync  time.Duration // 60s
	Now                           func() time.Time
	Logger                        *slog.Logger
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() *Config {
	return &Config{
		DBIdleInterval:                5 * time.Second,
		MinTimeInBackgroundBeforeSync: 60 * time.Second,
		MinTimeOfflineBeforeSync:      time.Hour,
		MinTimeOfflineBeforeFullSync:  60 * time.Second,
		Now:                           time.Now,
		Logger:                        slog.Default(),
	}
}

// Watcher raises debounced SyncNeeded notifications
type Watcher struct {
	config *Config
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	timer         *time.Timer
	generation    uint64 // bumped on every reset so a stale timer callback is ignored
	paused        bool
	closed        bool
	backgrounded  time.Time
	online        bool
	wentOfflineAt time.Time

	subscription events.Subscription
	syncNeeded   events.Source[SyncNeeded]
}

// New creates a watcher listening to source. The process is assumed to start online
// and in the foreground.
func New(source BookmarkEventSource, config *Config) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	w := &Watcher{
		config: config,
		logger: config.Logger,
		now:    config.Now,
		online: true,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if source != nil {
		w.subscription = source.SubscribeBookmarks(w.bookmarksChanged)
	}
	return w
}

// SubscribeSyncNeeded registers fn for sync requests. fn runs on the goroutine that
// raised the request, which for the idle timer is a timer goroutine.
func (w *Watcher) SubscribeSyncNeeded(fn func(SyncNeeded)) events.Subscription {
	return w.syncNeeded.Subscribe(fn)
}

func (w *Watcher) bookmarksChanged(c instapaperdb.BookmarkChange) {
	// writes made by a sync pass are not new local work
	if c.Origin == instapaperdb.Server {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || w.closed {
		return
	}
	w.resetTimerLocked()
}

func (w *Watcher) resetTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.generation++
	gen := w.generation
	w.timer = time.AfterFunc(w.config.DBIdleInterval, func() { w.timerFired(gen) })
}

func (w *Watcher) cancelTimerLocked() {
	if w.timer == nil {
		return
	}
	w.timer.Stop()
	w.timer = nil
	w.generation++
}

func (w *Watcher) timerFired(gen uint64) {
	w.mu.Lock()
	if gen != w.generation || w.paused || w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.raise(SyncNeeded{Reason: ReasonTimer})
}

func (w *Watcher) raise(e SyncNeeded) {
	w.logger.Debug("sync needed", "reason", e.Reason, "article_bodies", e.ShouldSyncArticleBodies)
	w.syncNeeded.Dispatch(e)
}

// EnteredBackground records when the app was backgrounded
func (w *Watcher) EnteredBackground() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backgrounded = w.now()
}

// LeavingBackground requests a full sync when the app spent at least
// MinTimeInBackgroundBeforeSync in the background.
func (w *Watcher) LeavingBackground() {
	w.mu.Lock()
	since := w.backgrounded
	w.backgrounded = time.Time{}
	skip := w.paused || w.closed || since.IsZero()
	elapsed := w.now().Sub(since)
	w.mu.Unlock()

	if skip || elapsed < w.config.MinTimeInBackgroundBeforeSync {
		return
	}
	w.raise(SyncNeeded{Reason: ReasonForegrounded, ShouldSyncArticleBodies: true})
}

// NetworkStatusChanged reports connectivity. Coming back online after at least
// MinTimeOfflineBeforeSync requests a sync, including article bodies once the
// outage exceeded MinTimeOfflineBeforeFullSync.
func (w *Watcher) NetworkStatusChanged(online bool) {
	w.mu.Lock()
	if online == w.online {
		w.mu.Unlock()
		return
	}
	w.online = online
	if !online {
		w.wentOfflineAt = w.now()
		w.mu.Unlock()
		return
	}

	offline := w.now().Sub(w.wentOfflineAt)
	w.wentOfflineAt = time.Time{}
	skip := w.paused || w.closed
	w.mu.Unlock()

	if skip || offline < w.config.MinTimeOfflineBeforeSync {
		return
	}
	w.raise(SyncNeeded{
		Reason:                  ReasonCameOnline,
		ShouldSyncArticleBodies: offline >= w.config.MinTimeOfflineBeforeFullSync,
	})
}

// Request raises a sync for an explicit reason such as Launched or Explicit.
// Pausing does not hold these back.
func (w *Watcher) Request(reason Reason, articleBodies bool) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	w.raise(SyncNeeded{Reason: reason, ShouldSyncArticleBodies: articleBodies})
}

// PauseWatching cancels a pending idle timer and drops triggers until resumed
func (w *Watcher) PauseWatching() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
	w.cancelTimerLocked()
}

// ResumeWatching lets triggers through again. Nothing seen while paused is replayed.
func (w *Watcher) ResumeWatching() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
}

// Close stops the timer and detaches from the event source
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.cancelTimerLocked()
	sub := w.subscription
	w.subscription = nil
	w.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
