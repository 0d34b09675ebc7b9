package articlesync

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/internal/fakeservice"
)

type harness struct {
	t       *testing.T
	server  *fakeservice.TestServer
	account *fakeservice.Account
	store   *instapaperdb.Store
	syncer  *Syncer
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	serviceConfig := fakeservice.DefaultConfig()
	serviceConfig.Logger = logger
	server := fakeservice.NewTestServer(serviceConfig)
	t.Cleanup(server.Close)
	account, client, err := server.SignIn(ctx, "reader@example.com", "password")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := instapaperdb.Open(ctx, db, &instapaperdb.Config{Logger: logger})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "articles")
	config := DefaultConfig(dir)
	config.Logger = logger
	return &harness{
		t:       t,
		server:  server,
		account: account,
		store:   store,
		syncer:  New(store, client, config),
		dir:     dir,
	}
}

// bookmark adds a bookmark on the service and mirrors it locally
func (h *harness) bookmark(rawURL, text string) int64 {
	h.t.Helper()
	remote, err := h.account.AddBookmark(instapaper.AddParams{URL: rawURL, Title: "Title of " + rawURL})
	require.NoError(h.t, err)
	if text != "" {
		require.NoError(h.t, h.account.SetText(remote.ID, text))
	}
	_, err = h.store.AddBookmark(context.Background(), instapaperdb.Bookmark{
		ID:    remote.ID,
		URL:   remote.URL,
		Title: remote.Title,
		Hash:  remote.Hash,
		Time:  remote.Time,
	}, instapaperdb.Server)
	require.NoError(h.t, err)
	return remote.ID
}

func TestSyncArticleWritesBodyAndUpdatesBookmark(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.bookmark("https://example.com/a", `<html><body>
		<p>Some <b>story</b> text.</p>
		<img src="data:image/png;base64,AAAA">
		<img src="https://cdn.example.com/spinner.gif">
		<img src="https://cdn.example.com/hero.jpg">
		<script>var ignored = 1;</script>
	</body></html>`)

	b, err := h.syncer.SyncArticle(ctx, id)
	require.NoError(t, err)
	require.True(t, b.ContentAvailableLocally)
	require.True(t, b.HasImages)
	require.Equal(t, "https://cdn.example.com/hero.jpg", b.FirstImageURL)
	require.Equal(t, "Some story text.", b.ExtractedDescription)
	require.Equal(t, articleFileName(id), b.LocalFolderRelativePath)

	stored, err := h.store.Bookmark(ctx, id)
	require.NoError(t, err)
	require.Equal(t, b, stored)

	written, err := os.ReadFile(filepath.Join(h.dir, b.LocalFolderRelativePath))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(written), "<!DOCTYPE html>"))
	require.Contains(t, string(written), "<body><div>")
}

func TestSyncArticleMarksUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.bookmark("https://example.com/gone", "")
	require.NoError(t, h.account.MarkUnavailable(id))

	b, err := h.syncer.SyncArticle(ctx, id)
	require.NoError(t, err)
	require.True(t, b.ArticleUnavailable)
	require.False(t, b.ContentAvailableLocally)

	_, err = os.Stat(filepath.Join(h.dir, articleFileName(id)))
	require.True(t, os.IsNotExist(err))
}

// textFunc lets a test run code while a body is being downloaded
type textFunc func(ctx context.Context, bookmarkID int64) (string, error)

func (f textFunc) GetText(ctx context.Context, bookmarkID int64) (string, error) {
	return f(ctx, bookmarkID)
}

func TestSyncArticleKeepsProgressReadDuringDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.bookmark("https://example.com/long", "")

	syncer := New(h.store, textFunc(func(ctx context.Context, bookmarkID int64) (string, error) {
		_, err := h.store.UpdateReadProgress(ctx, bookmarkID, 0.75)
		require.NoError(t, err)
		return "<p>Long read.</p>", nil
	}), DefaultConfig(h.dir))

	b, err := syncer.SyncArticle(ctx, id)
	require.NoError(t, err)
	require.True(t, b.ContentAvailableLocally)
	require.Equal(t, 0.75, b.Progress)
	require.NotZero(t, b.ProgressTimestamp)

	stored, err := h.store.Bookmark(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0.75, stored.Progress)
	require.Equal(t, b.ProgressTimestamp, stored.ProgressTimestamp)
	require.True(t, stored.ContentAvailableLocally)

	pending, err := h.store.HasPendingEdits(ctx)
	require.NoError(t, err)
	require.True(t, pending)
}

func TestSyncArticleSurfacesOtherFailures(t *testing.T) {
	h := newHarness(t)

	id := h.bookmark("https://example.com/a", "<p>x</p>")
	h.server.InjectFault("bookmarks/get_text", instapaper.CodeServiceError, 1)

	_, err := h.syncer.SyncArticle(context.Background(), id)
	require.True(t, instapaper.HasCode(err, instapaper.CodeServiceError))

	_, err = h.syncer.SyncArticle(context.Background(), 999999)
	require.ErrorIs(t, err, instapaperdb.ErrNotFound)
}

func TestSyncAllArticlesNotDownloaded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.bookmark("https://example.com/1", "<p>one</p>")
	second := h.bookmark("https://example.com/2", "<p>two</p>")
	gone := h.bookmark("https://example.com/3", "")
	require.NoError(t, h.account.MarkUnavailable(gone))
	_, err := h.store.AddBookmark(ctx, instapaperdb.Bookmark{URL: "https://example.com/local"}, instapaperdb.Local)
	require.NoError(t, err)

	processed, err := h.syncer.SyncAllArticlesNotDownloaded(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, processed)

	for _, id := range []int64{first, second} {
		b, err := h.store.Bookmark(ctx, id)
		require.NoError(t, err)
		require.True(t, b.ContentAvailableLocally)
	}
	b, err := h.store.Bookmark(ctx, gone)
	require.NoError(t, err)
	require.True(t, b.ArticleUnavailable)

	// everything is downloaded or known unavailable now
	processed, err = h.syncer.SyncAllArticlesNotDownloaded(ctx)
	require.NoError(t, err)
	require.Zero(t, processed)
}

func TestSyncAllArticlesStopsWhenCancelled(t *testing.T) {
	h := newHarness(t)
	h.bookmark("https://example.com/1", "<p>one</p>")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.syncer.SyncAllArticlesNotDownloaded(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRemoveFilesForNotPresentArticles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	kept := h.bookmark("https://example.com/kept", "<p>kept</p>")
	_, err := h.syncer.SyncArticle(ctx, kept)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "4242.html"), []byte("stale"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(h.dir, "4242"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "4242", "0.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "notes.html"), []byte("not an article"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "5000.txt"), []byte("other"), 0o644))

	removed, err := h.syncer.RemoveFilesForNotPresentArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"4242.html"}, removed)

	var names []string
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"5000.txt", articleFileName(kept), "notes.html"}, names)
}

func TestRemoveFilesWithoutDirectory(t *testing.T) {
	h := newHarness(t)

	removed, err := h.syncer.RemoveFilesForNotPresentArticles(context.Background())
	require.NoError(t, err)
	require.Empty(t, removed)
}

func TestProcessArticle(t *testing.T) {
	t.Run("youtube links use the video thumbnail", func(t *testing.T) {
		a, err := processArticle("<p>video</p>", "https://www.youtube.com/watch?v=abc123")
		require.NoError(t, err)
		require.Equal(t, "https://img.youtube.com/vi/abc123/hqdefault.jpg", a.FirstImageURL)
	})

	t.Run("no usable images", func(t *testing.T) {
		a, err := processArticle(`<img src="/relative.png"><img src="http://x.test/a.GIF">`, "https://example.com")
		require.NoError(t, err)
		require.Empty(t, a.FirstImageURL)
	})

	t.Run("description is truncated", func(t *testing.T) {
		long := strings.Repeat("é", descriptionLength+50)
		a, err := processArticle("<p>"+long+"</p>", "https://example.com")
		require.NoError(t, err)
		require.Equal(t, descriptionLength, len([]rune(a.Description)))
	})

	t.Run("existing doctype is kept once", func(t *testing.T) {
		a, err := processArticle("<!DOCTYPE html><html><body>hi</body></html>", "https://example.com")
		require.NoError(t, err)
		require.Equal(t, 1, strings.Count(string(a.HTML), "<!DOCTYPE html>"))
		require.Contains(t, string(a.HTML), "<body><div>hi</div></body>")
	})
}
