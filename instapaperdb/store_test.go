package instapaperdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	// Create in-memory SQLite database
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := Open(context.Background(), db, &Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return store
}

// addSyncedFolder adds a folder as if it came from the service
func addSyncedFolder(t *testing.T, s *Store, title, folderID string) Folder {
	t.Helper()
	f, err := s.AddFolder(context.Background(), Folder{Title: title, FolderID: folderID}, Server)
	require.NoError(t, err)
	return f
}

// addSyncedBookmark adds a bookmark as if it came from the service
func addSyncedBookmark(t *testing.T, s *Store, id, folderDBID int64) Bookmark {
	t.Helper()
	b, err := s.AddBookmark(context.Background(), Bookmark{
		ID:         id,
		FolderDBID: folderDBID,
		URL:        fmt.Sprintf("https://example.com/%d", id),
		Title:      "bookmark",
		Time:       id,
	}, Server)
	require.NoError(t, err)
	return b
}

func TestOpenCreatesSchemaAndCommonFolders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Verify tables were created
	for _, table := range []string{"folders", "bookmarks", "pending_edits"} {
		var count int
		err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "Table %s should exist", table)
	}

	// Foreign keys must be enforced
	var foreignKeys int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	folders, err := s.ListCurrentFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 4)
	for i, cf := range CommonFolders {
		require.Equal(t, cf.ID(), folders[i].ID)
		require.Equal(t, cf.FolderID(), folders[i].FolderID)
		require.True(t, folders[i].IsCommon())
	}
	require.Equal(t, "Home", folders[0].Title)
	require.True(t, folders[3].LocalOnly, "orphaned folder is local only")

	orphaned, err := s.FolderByFolderID(ctx, OrphanedFolderID)
	require.NoError(t, err)
	require.Equal(t, Orphaned.ID(), orphaned.ID)
}

func TestOpenIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addSyncedFolder(t, s, "Reading", "100")

	// Opening the same database again keeps existing data
	again, err := Open(ctx, s.DB(), nil)
	require.NoError(t, err)

	folders, err := again.ListCurrentFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 5)
}

func TestOpenRejectsNilDB(t *testing.T) {
	_, err := Open(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestDeletePendingEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddFolder(ctx, Folder{Title: "Later"}, Local)
	require.NoError(t, err)

	edits, err := s.PendingFolderEdits(ctx)
	require.NoError(t, err)
	require.Len(t, edits, 1)

	has, err := s.HasPendingEdits(ctx)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, s.DeletePendingEdit(ctx, edits[0].Seq))
	err = s.DeletePendingEdit(ctx, edits[0].Seq)
	require.ErrorIs(t, err, ErrNotFound)

	has, err = s.HasPendingEdits(ctx)
	require.NoError(t, err)
	require.False(t, has)
}

func TestCorruptPendingEditIsReported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A move without a destination cannot be replayed
	_, err := s.DB().Exec(`INSERT INTO pending_edits (kind, entity_id, payload) VALUES ('bookmark_move', 5, '{"source_folder_dbid":1}')`)
	require.NoError(t, err)

	_, err = s.PendingBookmarkEdits(ctx, 0)
	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	require.Contains(t, corrupt.Reason, "source and destination")

	// Unreadable payloads are corruption too
	_, err = s.DB().Exec(`INSERT INTO pending_edits (kind, entity_id, payload) VALUES ('folder_add', 9, 'not json')`)
	require.NoError(t, err)
	_, err = s.PendingFolderEdits(ctx)
	require.ErrorAs(t, err, &corrupt)
}
