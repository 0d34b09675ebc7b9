// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package authenticator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StoredToken is a user's access token as persisted between runs
type StoredToken struct {
	Username    string
	Token       string
	TokenSecret string
}

// CredentialStore persists the signed-in user's token. Load returns nil when
// nobody is signed in.
type CredentialStore interface {
	Load(ctx context.Context) (*StoredToken, error)
	Save(ctx context.Context, token StoredToken) error
	Clear(ctx context.Context) error
}

// SQLiteCredentialStore keeps the token in a single-row table, usually in the
// same database as the local store.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewSQLiteCredentialStore creates the credentials table when missing
func NewSQLiteCredentialStore(ctx context.Context, db *sql.DB) (*SQLiteCredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			id           INTEGER PRIMARY KEY CHECK (id = 1), -- single signed-in user per DB file
			username     TEXT NOT NULL,
			token        TEXT NOT NULL,
			token_secret TEXT NOT NULL,
			saved_at     INTEGER NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}
	return &SQLiteCredentialStore{db: db}, nil
}

func (s *SQLiteCredentialStore) Load(ctx context.Context) (*StoredToken, error) {
	var t StoredToken
	err := s.db.QueryRowContext(ctx,
		`SELECT username, token, token_secret FROM credentials WHERE id = 1`).
		Scan(&t.Username, &t.Token, &t.TokenSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &t, nil
}

func (s *SQLiteCredentialStore) Save(ctx context.Context, t StoredToken) error {
	if t.Token == "" || t.TokenSecret == "" {
		return fmt.Errorf("token and token secret are required")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, username, token, token_secret, saved_at) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			token_secret = excluded.token_secret,
			saved_at = excluded.saved_at`,
		t.Username, t.Token, t.TokenSecret, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *SQLiteCredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
