package authenticator

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/internal/fakeservice"
)

type promptCall struct {
	attempt int
	message string
}

// scriptedPrompt answers with the given credentials in order and records each call
type scriptedPrompt struct {
	answers []Credentials
	calls   []promptCall
}

func (p *scriptedPrompt) Credentials(_ context.Context, attempt int, message string) (Credentials, error) {
	p.calls = append(p.calls, promptCall{attempt, message})
	if len(p.answers) == 0 {
		return Credentials{}, errors.New("user cancelled")
	}
	next := p.answers[0]
	p.answers = p.answers[1:]
	return next, nil
}

func newAuthenticator(t *testing.T) (*Authenticator, *fakeservice.TestServer, *SQLiteCredentialStore) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	serviceConfig := fakeservice.DefaultConfig()
	serviceConfig.Logger = logger
	server := fakeservice.NewTestServer(serviceConfig)
	t.Cleanup(server.Close)
	_, err := server.CreateAccount(ctx, "reader@example.com", "correct")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := NewSQLiteCredentialStore(ctx, db)
	require.NoError(t, err)

	config := DefaultConfig(server.ClientInformation())
	config.ClientOptions = []instapaper.Option{
		instapaper.WithBaseURL(server.BaseURL()),
		instapaper.WithHTTPClient(server.HTTPServer.Client()),
		instapaper.WithLogger(logger),
	}
	config.Logger = logger
	return New(store, config), server, store
}

func TestAuthenticateSavesToken(t *testing.T) {
	a, server, store := newAuthenticator(t)
	ctx := context.Background()

	none, err := a.StoredCredentials(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	prompt := &scriptedPrompt{answers: []Credentials{{"reader@example.com", "correct"}}}
	info, err := a.Authenticate(ctx, prompt)
	require.NoError(t, err)
	require.True(t, info.HasToken())
	require.Equal(t, []promptCall{{1, ""}}, prompt.calls)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", saved.Username)
	require.Equal(t, info.Token, saved.Token)

	stored, err := a.StoredCredentials(ctx)
	require.NoError(t, err)
	require.Equal(t, info, *stored)

	// the stored token works against the service
	user, err := server.Client(*stored).VerifyCredentials(ctx)
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", user.Username)
}

func TestAuthenticateRetriesWithFriendlyMessage(t *testing.T) {
	a, _, _ := newAuthenticator(t)

	prompt := &scriptedPrompt{answers: []Credentials{
		{"reader@example.com", "wrong"},
		{"", ""},
		{"reader@example.com", "correct"},
	}}
	_, err := a.Authenticate(context.Background(), prompt)
	require.NoError(t, err)
	require.Len(t, prompt.calls, 3)
	require.Equal(t, instapaper.MessageForCode(instapaper.CodeInvalidCredentials), prompt.calls[1].message)
	require.Equal(t, "Enter your Instapaper username to sign in.", prompt.calls[2].message)
	require.Equal(t, 3, prompt.calls[2].attempt)
}

func TestAuthenticateGivesUpAfterMaxAttempts(t *testing.T) {
	a, _, store := newAuthenticator(t)
	ctx := context.Background()

	prompt := &scriptedPrompt{answers: []Credentials{
		{"reader@example.com", "a"},
		{"reader@example.com", "b"},
		{"reader@example.com", "c"},
		{"reader@example.com", "correct"},
	}}
	_, err := a.Authenticate(ctx, prompt)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.True(t, instapaper.IsAuthFailure(err))
	require.Len(t, prompt.calls, 3)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, saved)
}

func TestAuthenticateStopsWhenPromptFails(t *testing.T) {
	a, _, _ := newAuthenticator(t)

	_, err := a.Authenticate(context.Background(), &scriptedPrompt{})
	require.EqualError(t, err, "user cancelled")
}

func TestAuthenticateStopsOnConnectivityFailure(t *testing.T) {
	a, server, _ := newAuthenticator(t)
	server.Close()

	prompt := PromptFunc(func(context.Context, int, string) (Credentials, error) {
		return Credentials{"reader@example.com", "correct"}, nil
	})
	_, err := a.Authenticate(context.Background(), prompt)
	require.True(t, instapaper.IsTransport(err))
}

func TestSignOutClearsToken(t *testing.T) {
	a, _, _ := newAuthenticator(t)
	ctx := context.Background()

	_, err := a.Authenticate(ctx, &scriptedPrompt{answers: []Credentials{{"reader@example.com", "correct"}}})
	require.NoError(t, err)
	require.NoError(t, a.SignOut(ctx))

	stored, err := a.StoredCredentials(ctx)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestSQLiteCredentialStoreKeepsOneRow(t *testing.T) {
	_, _, store := newAuthenticator(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, StoredToken{Username: "a", Token: "t1", TokenSecret: "s1"}))
	require.NoError(t, store.Save(ctx, StoredToken{Username: "b", Token: "t2", TokenSecret: "s2"}))

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, &StoredToken{Username: "b", Token: "t2", TokenSecret: "s2"}, saved)

	var rows int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&rows))
	require.Equal(t, 1, rows)

	require.Error(t, store.Save(ctx, StoredToken{Username: "c"}))
}
