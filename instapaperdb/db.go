// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package instapaperdb is the local offline mirror of a user's Instapaper folders
// and bookmarks. Every local mutation is applied immediately, recorded in an
// ordered pending-edit log for the sync engine, and announced as a change event.
package instapaperdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grork/storyvoid/internal/events"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds configuration for the local store
type Config struct {
	Logger *slog.Logger
	Now    func() time.Time // clock for progress timestamps
}

// DefaultConfig returns the default store configuration
func DefaultConfig() *Config {
	return &Config{
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// Store is the local folder/bookmark mirror. It is safe for concurrent use;
// writes are serialized.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	now     func() time.Time
	writeMu sync.Mutex // one mutation at a time, events dispatched in commit order

	folderEvents   events.Source[FolderChange]
	bookmarkEvents events.Source[BookmarkChange]
}

// Open prepares db for use as a store, creating tables and the common folders
// when missing. The store uses a single connection.
func Open(ctx context.Context, db *sql.DB, config *Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	// :memory: databases are per connection, and SQLite has a single writer anyway
	db.SetMaxOpenConns(1)

	if err := initializeDatabase(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: config.Logger,
		now:    config.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// DB exposes the underlying database, e.g. for sharing with a credential store
func (s *Store) DB() *sql.DB { return s.db }

func initializeDatabase(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			folder_id   TEXT UNIQUE,                   -- service id, NULL until synced
			title       TEXT NOT NULL,
			position    INTEGER NOT NULL DEFAULT 0,
			local_only  INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS bookmarks (
			bookmark_id                INTEGER PRIMARY KEY,   -- negative while provisional
			folder_dbid                INTEGER NOT NULL REFERENCES folders(id),
			url                        TEXT NOT NULL,
			title                      TEXT NOT NULL DEFAULT '',
			description                TEXT NOT NULL DEFAULT '',
			extracted_description      TEXT NOT NULL DEFAULT '',
			hash                       TEXT NOT NULL DEFAULT '',
			progress                   REAL NOT NULL DEFAULT 0 CHECK (progress >= 0 AND progress <= 1),
			progress_timestamp         INTEGER NOT NULL DEFAULT 0,
			time                       INTEGER NOT NULL DEFAULT 0,
			starred                    INTEGER NOT NULL DEFAULT 0,
			content_available_locally  INTEGER NOT NULL DEFAULT 0,
			has_images                 INTEGER NOT NULL DEFAULT 0,
			first_image_url            TEXT NOT NULL DEFAULT '',
			article_unavailable        INTEGER NOT NULL DEFAULT 0,
			local_folder_relative_path TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS bookmarks_folder_dbid ON bookmarks(folder_dbid)`,
		`CREATE INDEX IF NOT EXISTS bookmarks_starred ON bookmarks(starred)`,

		// Ordered log of local edits; at most one entry per (kind, entity)
		`CREATE TABLE IF NOT EXISTS pending_edits (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT NOT NULL CHECK (kind IN (
				'folder_add','folder_update','folder_delete',
				'bookmark_add','bookmark_delete','bookmark_move',
				'bookmark_like','bookmark_unlike','bookmark_progress')),
			entity_id  INTEGER NOT NULL,
			payload    TEXT NOT NULL DEFAULT '{}',
			queued_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE (kind, entity_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	for _, cf := range CommonFolders {
		localOnly := 0
		if cf == Orphaned {
			localOnly = 1
		}
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO folders (id, folder_id, title, position, local_only) VALUES (?, ?, ?, 0, ?)`,
			cf.ID(), cf.FolderID(), cf.title(), localOnly); err != nil {
			return fmt.Errorf("failed to seed folder %s: %w", cf.FolderID(), err)
		}
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mutate runs fn in a transaction and, once committed, dispatches the change it
// produced. Dispatch happens under writeMu so listeners observe commit order.
func (s *Store) mutate(ctx context.Context, fn func(tx *sql.Tx) (change, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	c, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	s.dispatch(c)
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
