// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package instapapersync reconciles the local store with the Instapaper service:
// pending local edits are replayed in log order, then the authoritative folder and
// bookmark lists are pulled and merged into the store.
package instapapersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/internal/events"
)

// API is the part of *instapaper.Client the engine calls
type API interface {
	ListFolders(ctx context.Context) ([]instapaper.Folder, error)
	AddFolder(ctx context.Context, title string) (instapaper.Folder, error)
	DeleteFolder(ctx context.Context, folderID string) error
	SetFolderOrder(ctx context.Context, order []instapaper.FolderPosition) ([]instapaper.Folder, error)

	ListBookmarks(ctx context.Context, params instapaper.ListParams) (*instapaper.BookmarkList, error)
	AddBookmark(ctx context.Context, params instapaper.AddParams) (instapaper.Bookmark, error)
	DeleteBookmark(ctx context.Context, bookmarkID int64) error
	MoveBookmark(ctx context.Context, bookmarkID int64, folderID string) (instapaper.Bookmark, error)
	UpdateReadProgress(ctx context.Context, bookmarkID int64, progress float64, progressTimestamp int64) (instapaper.Bookmark, error)
	StarBookmark(ctx context.Context, bookmarkID int64) (instapaper.Bookmark, error)
	UnstarBookmark(ctx context.Context, bookmarkID int64) (instapaper.Bookmark, error)
	ArchiveBookmark(ctx context.Context, bookmarkID int64) (instapaper.Bookmark, error)
	UnarchiveBookmark(ctx context.Context, bookmarkID int64) (instapaper.Bookmark, error)
}

var _ API = (*instapaper.Client)(nil)

// Config holds configuration for the sync engine
type Config struct {
	DefaultBookmarkLimit    int            // 10
	PerFolderBookmarkLimits map[string]int // keyed by service folder id
	Resolver                ProgressResolver
	Logger                  *slog.Logger

	// Rate-limited calls are retried with exponential backoff
	RateLimitRetries int           // 3
	BackoffMin       time.Duration // 1s
	BackoffMax       time.Duration // 30s
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultBookmarkLimit:    10,
		PerFolderBookmarkLimits: map[string]int{instapaperdb.UnreadFolderID: 250},
		Resolver:                DefaultProgressResolver{},
		Logger:                  slog.Default(),
		RateLimitRetries:        3,
		BackoffMin:              1 * time.Second,
		BackoffMax:              30 * time.Second,
	}
}

// Options selects what a pass synchronizes
type Options struct {
	Folders   bool
	Bookmarks bool

	// SingleFolder limits bookmark sync to Folder; otherwise a non-zero Folder is
	// synced first.
	SingleFolder      bool
	Folder            int64
	SkipOrphanCleanup bool
}

// FullSync is the usual everything-pass
var FullSync = Options{Folders: true, Bookmarks: true}

// ItemFailure is a per-item rejection that did not stop the pass. The related
// pending edit, if any, stays queued for the next pass.
type ItemFailure struct {
	Operation string // edit kind or "bookmark_list"
	EntityID  int64
	FolderID  string
	Err       error
}

// Report summarizes a pass
type Report struct {
	RunID           string
	Failures        []ItemFailure
	FoldersSynced   int
	BookmarksListed int
}

// Engine runs sync passes. Passes are serialized.
type Engine struct {
	store  *instapaperdb.Store
	api    API
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	status events.Source[Status]
}

// New creates an engine over store and api
func New(store *instapaperdb.Store, api API, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Resolver == nil {
		config.Resolver = DefaultProgressResolver{}
	}
	if config.DefaultBookmarkLimit <= 0 {
		config.DefaultBookmarkLimit = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, api: api, config: config, logger: logger}
}

// SubscribeStatus registers fn for progress notifications
func (e *Engine) SubscribeStatus(fn func(Status)) events.Subscription {
	return e.status.Subscribe(fn)
}

// Sync runs one pass. Per-item service rejections are collected in the report;
// authentication failures, connectivity failures and local storage errors stop
// the pass and are returned. Cancelling ctx stops the pass between items with an
// error wrapping context.Canceled; the store is left consistent.
func (e *Engine) Sync(ctx context.Context, opts Options) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := uuid.NewString()
	r := &run{
		Engine: e,
		opts:   opts,
		logger:   e.logger.With("run_id", runID),
		report:   &Report{RunID: runID},
		replayed: make(map[int64]bool),
	}

	started := time.Now()
	r.logger.Info("sync started", "folders", opts.Folders, "bookmarks", opts.Bookmarks,
		"single_folder", opts.SingleFolder, "folder", opts.Folder)
	r.emit(Status{Operation: StatusStart})
	defer func() {
		r.emit(Status{Operation: StatusEnd, Duration: time.Since(started)})
	}()

	err := r.execute(ctx)
	if err != nil {
		r.logger.Warn("sync stopped", "error", err, "failures", len(r.report.Failures))
		return r.report, err
	}
	r.logger.Info("sync finished", "duration", time.Since(started),
		"failures", len(r.report.Failures), "bookmarks_listed", r.report.BookmarksListed)
	return r.report, nil
}

// run is the state of one pass
type run struct {
	*Engine
	opts   Options
	logger *slog.Logger
	report *Report

	// seqs of pending edits already sent this pass, successful or not
	replayed map[int64]bool
}

func (r *run) execute(ctx context.Context) error {
	if r.opts.Folders {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.syncFolders(ctx); err != nil {
			return err
		}
	}
	if r.opts.Bookmarks {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.syncBookmarks(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) emit(s Status) { r.status.Dispatch(s) }

func (r *run) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sync cancelled: %w", err)
	}
	return nil
}

// itemFailed decides whether a failed item stops the pass. Service rejections
// other than authentication failures are recorded and swallowed.
func (r *run) itemFailed(ctx context.Context, err error, f ItemFailure) error {
	if cerr := r.checkCancelled(ctx); cerr != nil {
		return cerr
	}
	var apiErr *instapaper.APIError
	if errors.As(err, &apiErr) && !instapaper.IsAuthFailure(err) {
		f.Err = err
		r.report.Failures = append(r.report.Failures, f)
		r.logger.Warn("sync item failed", "operation", f.Operation, "entity_id", f.EntityID,
			"folder_id", f.FolderID, "code", apiErr.Code, "error", err)
		return nil
	}
	return err
}

// acknowledge drops an edit the service accepted. A local write may have
// replaced or cancelled it meanwhile; whatever it queued stays for the next pass.
func (r *run) acknowledge(ctx context.Context, seq int64) error {
	err := r.store.DeletePendingEdit(ctx, seq)
	if errors.Is(err, instapaperdb.ErrNotFound) {
		r.logger.Debug("acknowledged edit was already replaced", "seq", seq)
		return nil
	}
	return err
}

// tolerate drops errors carrying one of the given codes: the service state
// already matches what the edit wanted.
func tolerate(err error, codes ...int) error {
	if err != nil && instapaper.HasCode(err, codes...) {
		return nil
	}
	return err
}
