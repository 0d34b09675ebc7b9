// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAccounts keeps accounts in a Postgres table so a long-running fake
// server survives restarts with the same users.
type PostgresAccounts struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresAccounts creates the accounts table if needed
func NewPostgresAccounts(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresAccounts, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &PostgresAccounts{pool: pool, logger: logger}
	if err := a.initializeTables(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *PostgresAccounts) initializeTables(ctx context.Context) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		createAccountsSQL :=
			/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS fake_accounts (
	user_id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL,
	username_key TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ DEFAULT now()
)
`
		if _, err := tx.Exec(ctx, createAccountsSQL); err != nil {
			return fmt.Errorf("failed to create fake_accounts table: %w", err)
		}
		// keep ids in the same range as MemoryAccounts
		if _, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('fake_accounts', 'user_id'),
			GREATEST((SELECT COALESCE(MAX(user_id), 0) FROM fake_accounts), 1000))`); err != nil {
			return fmt.Errorf("failed to seed fake_accounts sequence: %w", err)
		}
		a.logger.Debug("fake_accounts table ready")
		return nil
	})
}

func (a *PostgresAccounts) Create(ctx context.Context, username, password string) (AccountRecord, error) {
	key := normalizeUsername(username)
	if key == "" {
		return AccountRecord{}, ErrInvalidCredentials
	}

	record := AccountRecord{Username: strings.TrimSpace(username)}
	err := a.pool.QueryRow(ctx,
		`INSERT INTO fake_accounts (username, username_key, password_hash) VALUES ($1, $2, $3) RETURNING user_id`,
		record.Username, key, hashPassword(username, password),
	).Scan(&record.UserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" { // unique_violation
			return AccountRecord{}, ErrAccountExists
		}
		return AccountRecord{}, fmt.Errorf("failed to create account %q: %w", username, err)
	}
	return record, nil
}

func (a *PostgresAccounts) Authenticate(ctx context.Context, username, password string) (AccountRecord, error) {
	var record AccountRecord
	var passwordHash string
	err := a.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash FROM fake_accounts WHERE username_key = $1`,
		normalizeUsername(username),
	).Scan(&record.UserID, &record.Username, &passwordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountRecord{}, ErrInvalidCredentials
	}
	if err != nil {
		return AccountRecord{}, fmt.Errorf("failed to look up account %q: %w", username, err)
	}
	if !passwordMatches(passwordHash, username, password) {
		return AccountRecord{}, ErrInvalidCredentials
	}
	return record, nil
}

func (a *PostgresAccounts) ByID(ctx context.Context, userID int64) (AccountRecord, error) {
	return a.queryOne(ctx, `SELECT user_id, username FROM fake_accounts WHERE user_id = $1`, userID)
}

func (a *PostgresAccounts) ByUsername(ctx context.Context, username string) (AccountRecord, error) {
	return a.queryOne(ctx, `SELECT user_id, username FROM fake_accounts WHERE username_key = $1`, normalizeUsername(username))
}

func (a *PostgresAccounts) queryOne(ctx context.Context, query string, arg any) (AccountRecord, error) {
	var record AccountRecord
	err := a.pool.QueryRow(ctx, query, arg).Scan(&record.UserID, &record.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountRecord{}, ErrAccountNotFound
	}
	if err != nil {
		return AccountRecord{}, fmt.Errorf("failed to look up account: %w", err)
	}
	return record, nil
}
