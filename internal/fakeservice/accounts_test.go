package fakeservice

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// exerciseAccounts runs the behaviour every Accounts implementation shares
func exerciseAccounts(t *testing.T, accounts Accounts) {
	t.Helper()
	ctx := context.Background()

	created, err := accounts.Create(ctx, " Reader@Example.com ", "pw")
	require.NoError(t, err)
	require.Greater(t, created.UserID, int64(1000))
	require.Equal(t, "Reader@Example.com", created.Username)

	_, err = accounts.Create(ctx, "reader@example.com", "other")
	require.ErrorIs(t, err, ErrAccountExists)

	_, err = accounts.Create(ctx, "  ", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	authed, err := accounts.Authenticate(ctx, "READER@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, created, authed)

	_, err = accounts.Authenticate(ctx, "reader@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := accounts.ByID(ctx, created.UserID)
	require.NoError(t, err)
	require.Equal(t, created, byID)
	_, err = accounts.ByID(ctx, 1)
	require.ErrorIs(t, err, ErrAccountNotFound)

	byName, err := accounts.ByUsername(ctx, "reader@example.com")
	require.NoError(t, err)
	require.Equal(t, created, byName)

	// accounts without a password are allowed, as on the real service
	noPassword, err := accounts.Create(ctx, "open@example.com", "")
	require.NoError(t, err)
	authed, err = accounts.Authenticate(ctx, "open@example.com", "")
	require.NoError(t, err)
	require.Equal(t, noPassword, authed)
}

func TestMemoryAccounts(t *testing.T) {
	exerciseAccounts(t, NewMemoryAccounts())
}

func TestPostgresAccounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("fakeservice_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts, err := NewPostgresAccounts(ctx, pool, logger)
	require.NoError(t, err)
	exerciseAccounts(t, accounts)

	// reopening keeps existing accounts and id sequence
	reopened, err := NewPostgresAccounts(ctx, pool, logger)
	require.NoError(t, err)
	_, err = reopened.ByUsername(ctx, "reader@example.com")
	require.NoError(t, err)
	another, err := reopened.Create(ctx, "third@example.com", "pw")
	require.NoError(t, err)
	require.Greater(t, another.UserID, int64(1002))
}

func TestServiceWithPostgresAccountsSignsIn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("fakeservice_signin"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	accounts, err := NewPostgresAccounts(ctx, pool, nil)
	require.NoError(t, err)

	config := DefaultConfig()
	config.Accounts = accounts
	ts := NewTestServer(config)
	t.Cleanup(ts.Close)

	account, client, err := ts.SignIn(ctx, "pg@example.com", "pw")
	require.NoError(t, err)
	user, err := client.VerifyCredentials(ctx)
	require.NoError(t, err)
	require.Equal(t, account.User(), user)
}
