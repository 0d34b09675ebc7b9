package fakeservice

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/oauth"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*TestServer, *Account, *instapaper.Client) {
	t.Helper()
	config := DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := NewTestServer(config)
	t.Cleanup(ts.Close)

	account, client, err := ts.SignIn(context.Background(), "reader@example.com", "hunter2")
	require.NoError(t, err)
	return ts, account, client
}

func TestAccessTokenAndVerifyCredentials(t *testing.T) {
	_, account, client := newTestServer(t)

	user, err := client.VerifyCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, account.User(), user)
}

func TestAccessTokenRejectsWrongPassword(t *testing.T) {
	ts, _, _ := newTestServer(t)

	_, err := ts.Client(ts.ClientInformation()).AccessToken(context.Background(), "reader@example.com", "wrong")
	require.True(t, instapaper.IsAuthFailure(err))
}

func TestAutoRegisterCreatesAccounts(t *testing.T) {
	config := DefaultConfig()
	config.AutoRegister = true
	ts := NewTestServer(config)
	t.Cleanup(ts.Close)

	pair, err := ts.Client(ts.ClientInformation()).AccessToken(context.Background(), "new@example.com", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Token)

	_, err = ts.Account(context.Background(), "new@example.com")
	require.NoError(t, err)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)

	_, err := ts.Client(ts.ClientInformation()).ListFolders(context.Background())
	require.True(t, instapaper.IsAuthFailure(err))
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	ts, _, client := newTestServer(t)

	info := client.ClientInformation()
	info.TokenSecret = "not-the-secret"
	_, err := ts.Client(info).ListFolders(context.Background())
	require.True(t, instapaper.IsAuthFailure(err))
}

func TestRevokedTokensAreRejected(t *testing.T) {
	_, account, client := newTestServer(t)

	account.RevokeTokens()
	_, err := client.VerifyCredentials(context.Background())
	require.True(t, instapaper.IsAuthFailure(err))
}

func TestFolderLifecycle(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)

	work, err := client.AddFolder(ctx, "Work")
	require.NoError(t, err)
	require.NotEmpty(t, work.FolderID)
	home, err := client.AddFolder(ctx, "Home Stuff")
	require.NoError(t, err)

	_, err = client.AddFolder(ctx, "work")
	require.True(t, instapaper.HasCode(err, instapaper.CodeDuplicateFolder))

	folders, err := client.SetFolderOrder(ctx, []instapaper.FolderPosition{
		{FolderID: work.FolderID, Position: 10},
		{FolderID: home.FolderID, Position: 5},
	})
	require.NoError(t, err)
	require.Len(t, folders, 2)
	require.Equal(t, home.FolderID, folders[0].FolderID)

	b, err := client.AddBookmark(ctx, instapaper.AddParams{URL: "https://example.com/a", FolderID: work.FolderID})
	require.NoError(t, err)

	require.NoError(t, client.DeleteFolder(ctx, work.FolderID))
	err = client.DeleteFolder(ctx, work.FolderID)
	require.True(t, instapaper.HasCode(err, instapaper.CodeInvalidFolder))

	folderID, ok := account.FolderOf(b.ID)
	require.True(t, ok)
	require.Equal(t, "archive", folderID)
}

func TestAddingExistingURLReturnsSameBookmark(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)

	first, err := client.AddBookmark(ctx, instapaper.AddParams{URL: "https://example.com/a", Title: "A"})
	require.NoError(t, err)
	_, err = client.ArchiveBookmark(ctx, first.ID)
	require.NoError(t, err)

	again, err := client.AddBookmark(ctx, instapaper.AddParams{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "A", again.Title)

	folderID, _ := account.FolderOf(first.ID)
	require.Equal(t, "unread", folderID)
}

func TestInvalidBookmarkAndFolderCodes(t *testing.T) {
	ctx := context.Background()
	_, _, client := newTestServer(t)

	_, err := client.StarBookmark(ctx, 424242)
	require.True(t, instapaper.HasCode(err, instapaper.CodeInvalidBookmark))

	b, err := client.AddBookmark(ctx, instapaper.AddParams{URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = client.MoveBookmark(ctx, b.ID, "999")
	require.True(t, instapaper.HasCode(err, instapaper.CodeInvalidFolder))

	_, err = client.ListBookmarks(ctx, instapaper.ListParams{FolderID: "999"})
	require.True(t, instapaper.HasCode(err, instapaper.CodeInvalidFolder))
}

func TestListHonoursHaveAndReportsDeletes(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)

	a, err := account.AddBookmark(instapaper.AddParams{URL: "https://example.com/a"})
	require.NoError(t, err)
	b, err := account.AddBookmark(instapaper.AddParams{URL: "https://example.com/b"})
	require.NoError(t, err)

	list, err := client.ListBookmarks(ctx, instapaper.ListParams{})
	require.NoError(t, err)
	require.Len(t, list.Bookmarks, 2)
	require.Equal(t, account.User(), list.User)

	// unchanged bookmarks are omitted; ones that left the folder are reported
	require.NoError(t, account.MoveBookmark(b.ID, "archive"))
	list, err = client.ListBookmarks(ctx, instapaper.ListParams{Have: []instapaper.Have{
		{ID: a.ID, Hash: a.Hash},
		{ID: b.ID, Hash: b.Hash},
	}})
	require.NoError(t, err)
	require.Empty(t, list.Bookmarks)
	require.Equal(t, []int64{b.ID}, list.DeleteIDs)

	// a changed hash brings the bookmark back
	require.NoError(t, account.Star(a.ID, true))
	list, err = client.ListBookmarks(ctx, instapaper.ListParams{Have: []instapaper.Have{{ID: a.ID, Hash: a.Hash}}})
	require.NoError(t, err)
	require.Len(t, list.Bookmarks, 1)
	require.True(t, list.Bookmarks[0].Starred)

	starred, err := client.ListBookmarks(ctx, instapaper.ListParams{FolderID: "starred"})
	require.NoError(t, err)
	require.Len(t, starred.Bookmarks, 1)
}

func TestListAdoptsNewerProgressFromHave(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)

	a, err := account.AddBookmark(instapaper.AddParams{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, account.SetProgress(a.ID, 0.2, 1000))

	list, err := client.ListBookmarks(ctx, instapaper.ListParams{Have: []instapaper.Have{
		{ID: a.ID, Hash: "stale", Progress: 0.7, ProgressTimestamp: 2000, HasProgress: true},
	}})
	require.NoError(t, err)
	require.Len(t, list.Bookmarks, 1)
	require.Equal(t, 0.7, list.Bookmarks[0].Progress)
	require.Equal(t, int64(2000), list.Bookmarks[0].ProgressTimestamp)
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)
	for _, u := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		_, err := account.AddBookmark(instapaper.AddParams{URL: u})
		require.NoError(t, err)
	}

	list, err := client.ListBookmarks(ctx, instapaper.ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list.Bookmarks, 2)
	require.Equal(t, "https://example.com/3", list.Bookmarks[0].URL)
}

func TestUpdateReadProgressIgnoresOlderTimestamps(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)
	a, err := account.AddBookmark(instapaper.AddParams{URL: "https://example.com/a"})
	require.NoError(t, err)

	_, err = client.UpdateReadProgress(ctx, a.ID, 0.5, 2000)
	require.NoError(t, err)
	updated, err := client.UpdateReadProgress(ctx, a.ID, 0.1, 1000)
	require.NoError(t, err)
	require.Equal(t, 0.5, updated.Progress)
}

func TestGetText(t *testing.T) {
	ctx := context.Background()
	_, account, client := newTestServer(t)
	a, err := account.AddBookmark(instapaper.AddParams{URL: "https://example.com/a", Title: "Title & more"})
	require.NoError(t, err)

	body, err := client.GetText(ctx, a.ID)
	require.NoError(t, err)
	require.Contains(t, body, "<h1>Title &amp; more</h1>")

	require.NoError(t, account.SetText(a.ID, "<p>custom</p>"))
	body, err = client.GetText(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "<p>custom</p>", body)

	require.NoError(t, account.MarkUnavailable(a.ID))
	_, err = client.GetText(ctx, a.ID)
	require.True(t, instapaper.HasCode(err, instapaper.CodeArticleUnavailable))
}

func TestInjectedFaults(t *testing.T) {
	ctx := context.Background()
	ts, _, client := newTestServer(t)

	ts.InjectFault("folders/list", instapaper.CodeRateLimited, 1)
	_, err := client.ListFolders(ctx)
	require.True(t, instapaper.HasCode(err, instapaper.CodeRateLimited))
	_, err = client.ListFolders(ctx)
	require.NoError(t, err)

	ts.InjectFault("folders/list", http.StatusUnauthorized, 1)
	_, err = client.ListFolders(ctx)
	require.True(t, instapaper.IsAuthFailure(err))
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.HTTPServer.Client().Get(ts.HTTPServer.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "healthy"))
}

func TestUnknownConsumerIsRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)

	_, err := ts.Client(oauth.NewClientInformation("nobody", "secret")).AccessToken(context.Background(), "reader@example.com", "hunter2")
	require.True(t, instapaper.IsAuthFailure(err))
}
