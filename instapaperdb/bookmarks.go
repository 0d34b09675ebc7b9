// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const bookmarkColumns = `bookmark_id, folder_dbid, url, title, description, extracted_description,
	hash, progress, progress_timestamp, time, starred, content_available_locally,
	has_images, first_image_url, article_unavailable, local_folder_relative_path`

func scanBookmark(row rowScanner) (Bookmark, error) {
	var b Bookmark
	var starred, available, hasImages, articleUnavailable int
	err := row.Scan(&b.ID, &b.FolderDBID, &b.URL, &b.Title, &b.Description, &b.ExtractedDescription,
		&b.Hash, &b.Progress, &b.ProgressTimestamp, &b.Time, &starred, &available,
		&hasImages, &b.FirstImageURL, &articleUnavailable, &b.LocalFolderRelativePath)
	if err != nil {
		return Bookmark{}, err
	}
	b.Starred = starred != 0
	b.ContentAvailableLocally = available != 0
	b.HasImages = hasImages != 0
	b.ArticleUnavailable = articleUnavailable != 0
	return b, nil
}

func getBookmark(ctx context.Context, q queryer, id int64) (Bookmark, error) {
	b, err := scanBookmark(q.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE bookmark_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Bookmark{}, bookmarkNotFound(id)
	}
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to load bookmark %d: %w", id, err)
	}
	return b, nil
}

func insertBookmark(ctx context.Context, q queryer, b Bookmark) error {
	_, err := q.ExecContext(ctx, `INSERT INTO bookmarks (`+bookmarkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FolderDBID, b.URL, b.Title, b.Description, b.ExtractedDescription,
		b.Hash, b.Progress, b.ProgressTimestamp, b.Time, boolInt(b.Starred), boolInt(b.ContentAvailableLocally),
		boolInt(b.HasImages), b.FirstImageURL, boolInt(b.ArticleUnavailable), b.LocalFolderRelativePath)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark %d: %w", b.ID, err)
	}
	return nil
}

func validProgress(p float64) bool { return p >= 0 && p <= 1 }

// destinationFolder resolves the folder a bookmark may be placed in
func destinationFolder(ctx context.Context, q queryer, dbid int64) (Folder, error) {
	if dbid == Liked.ID() {
		return Folder{}, ErrInvalidDestinationFolder
	}
	return getFolder(ctx, q, dbid)
}

// Bookmark returns the bookmark with the given id, provisional ids included
func (s *Store) Bookmark(ctx context.Context, id int64) (Bookmark, error) {
	return getBookmark(ctx, s.db, id)
}

// ListCurrentBookmarks returns a snapshot of the bookmarks in a folder, newest
// first. Zero lists every bookmark and Liked lists the starred ones wherever they live.
func (s *Store) ListCurrentBookmarks(ctx context.Context, folderDBID int64) ([]Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks`
	var args []any
	switch folderDBID {
	case 0:
	case Liked.ID():
		query += ` WHERE starred = 1`
	default:
		query += ` WHERE folder_dbid = ?`
		args = append(args, folderDBID)
	}
	query += ` ORDER BY time DESC, bookmark_id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

// AddBookmark stores a bookmark. Local adds get a provisional negative id and a
// pending add; Server adds must carry the service id. A zero FolderDBID means Unread.
func (s *Store) AddBookmark(ctx context.Context, b Bookmark, origin Origin) (Bookmark, error) {
	b.URL = strings.TrimSpace(b.URL)
	if b.URL == "" {
		return Bookmark{}, fmt.Errorf("%w: url required", ErrInvalidBookmark)
	}
	if origin == Server && b.ID <= 0 {
		return Bookmark{}, fmt.Errorf("%w: service bookmark without id", ErrInvalidBookmark)
	}
	if !validProgress(b.Progress) {
		return Bookmark{}, ErrInvalidProgress
	}
	if b.FolderDBID == 0 {
		b.FolderDBID = Unread.ID()
	}

	var added Bookmark
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		if _, err := destinationFolder(ctx, tx, b.FolderDBID); err != nil {
			return change{}, err
		}

		if origin == Local {
			var lowest int64
			if err := tx.QueryRowContext(ctx,
				`SELECT MIN(COALESCE(MIN(bookmark_id), 0), 0) FROM bookmarks`).Scan(&lowest); err != nil {
				return change{}, fmt.Errorf("failed to allocate provisional id: %w", err)
			}
			b.ID = lowest - 1
			if b.Time == 0 {
				b.Time = s.now().Unix()
			}
		}

		if err := insertBookmark(ctx, tx, b); err != nil {
			return change{}, err
		}
		if origin == Local {
			if err := putEdit(ctx, tx, PendingEdit{
				Kind:                  EditBookmarkAdd,
				EntityID:              b.ID,
				URL:                   b.URL,
				Title:                 b.Title,
				Description:           b.Description,
				DestinationFolderDBID: b.FolderDBID,
			}); err != nil {
				return change{}, err
			}
		}

		added = b
		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:             BookmarkAdded,
			BookmarkID:            b.ID,
			Bookmark:              &snapshot,
			DestinationFolderDBID: b.FolderDBID,
			Origin:                origin,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	s.logger.Debug("bookmark added", "bookmark_id", added.ID, "folder_dbid", added.FolderDBID, "origin", origin)
	return added, nil
}

// UpdateBookmark replaces a bookmark's content fields. The owning folder and the
// like flag are kept; they change only through MoveBookmark and Like/UnlikeBookmark.
// No pending edit is recorded.
func (s *Store) UpdateBookmark(ctx context.Context, b Bookmark) (Bookmark, error) {
	return s.modifyBookmark(ctx, b.ID, true, func(existing *Bookmark) {
		url := existing.URL
		*existing = b
		if existing.URL == "" {
			existing.URL = url
		}
	})
}

// ModifyBookmark applies fn to the current row of bookmark id and stores the
// result, all under the write lock, so fields fn leaves alone keep any value
// written since the caller last read the bookmark. The folder and like flag are
// kept. When fn changes nothing, nothing is written and no event fires.
func (s *Store) ModifyBookmark(ctx context.Context, id int64, fn func(b *Bookmark)) (Bookmark, error) {
	return s.modifyBookmark(ctx, id, false, fn)
}

func (s *Store) modifyBookmark(ctx context.Context, id int64, always bool, fn func(b *Bookmark)) (Bookmark, error) {
	var updated Bookmark
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		existing, err := getBookmark(ctx, tx, id)
		if err != nil {
			return change{}, err
		}
		b := existing
		fn(&b)
		b.ID = existing.ID
		b.FolderDBID = existing.FolderDBID
		b.Starred = existing.Starred
		if !validProgress(b.Progress) {
			return change{}, ErrInvalidProgress
		}
		updated = b
		if b == existing && !always {
			return change{}, nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bookmarks SET url = ?, title = ?, description = ?, extracted_description = ?,
				hash = ?, progress = ?, progress_timestamp = ?, time = ?, content_available_locally = ?,
				has_images = ?, first_image_url = ?, article_unavailable = ?, local_folder_relative_path = ?
			WHERE bookmark_id = ?`,
			b.URL, b.Title, b.Description, b.ExtractedDescription,
			b.Hash, b.Progress, b.ProgressTimestamp, b.Time, boolInt(b.ContentAvailableLocally),
			boolInt(b.HasImages), b.FirstImageURL, boolInt(b.ArticleUnavailable), b.LocalFolderRelativePath,
			b.ID); err != nil {
			return change{}, fmt.Errorf("failed to update bookmark %d: %w", b.ID, err)
		}

		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:  BookmarkUpdated,
			BookmarkID: b.ID,
			Bookmark:   &snapshot,
			Origin:     Server,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	return updated, nil
}

// UpdateReadProgress records a local reading position. The progress timestamp
// is set to the current time in milliseconds and the content hash is cleared so
// the next bookmark list reports the change.
func (s *Store) UpdateReadProgress(ctx context.Context, id int64, progress float64) (Bookmark, error) {
	if !validProgress(progress) {
		return Bookmark{}, ErrInvalidProgress
	}

	var updated Bookmark
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		b, err := getBookmark(ctx, tx, id)
		if err != nil {
			return change{}, err
		}
		b.Progress = progress
		b.ProgressTimestamp = s.now().UnixMilli()
		b.Hash = ""

		if _, err := tx.ExecContext(ctx,
			`UPDATE bookmarks SET progress = ?, progress_timestamp = ?, hash = '' WHERE bookmark_id = ?`,
			b.Progress, b.ProgressTimestamp, id); err != nil {
			return change{}, fmt.Errorf("failed to update progress of bookmark %d: %w", id, err)
		}
		if err := putEdit(ctx, tx, PendingEdit{
			Kind:              EditBookmarkProgress,
			EntityID:          id,
			Progress:          b.Progress,
			ProgressTimestamp: b.ProgressTimestamp,
		}); err != nil {
			return change{}, err
		}

		updated = b
		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:  BookmarkUpdated,
			BookmarkID: id,
			Bookmark:   &snapshot,
			Origin:     Local,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	return updated, nil
}

// MoveBookmark puts a bookmark into another folder. Liked is not a valid
// destination. A Local move supersedes earlier pending moves of the bookmark and
// keeps the folder the service last knew as the source. Moving a provisional
// bookmark retargets its pending add instead.
func (s *Store) MoveBookmark(ctx context.Context, id, destinationDBID int64, origin Origin) (Bookmark, error) {
	var moved Bookmark
	var sourceDBID int64
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		b, err := getBookmark(ctx, tx, id)
		if err != nil {
			return change{}, err
		}
		if _, err := destinationFolder(ctx, tx, destinationDBID); err != nil {
			return change{}, err
		}
		sourceDBID = b.FolderDBID

		if b.FolderDBID != destinationDBID {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bookmarks SET folder_dbid = ? WHERE bookmark_id = ?`, destinationDBID, id); err != nil {
				return change{}, fmt.Errorf("failed to move bookmark %d: %w", id, err)
			}
		}

		if origin == Local && b.FolderDBID != destinationDBID {
			if err := s.recordMove(ctx, tx, b, destinationDBID); err != nil {
				return change{}, err
			}
		}

		b.FolderDBID = destinationDBID
		moved = b
		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:             BookmarkMoved,
			BookmarkID:            id,
			Bookmark:              &snapshot,
			SourceFolderDBID:      sourceDBID,
			DestinationFolderDBID: destinationDBID,
			Origin:                origin,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	s.logger.Debug("bookmark moved", "bookmark_id", id, "from", sourceDBID, "to", destinationDBID, "origin", origin)
	return moved, nil
}

func (s *Store) recordMove(ctx context.Context, tx *sql.Tx, b Bookmark, destinationDBID int64) error {
	if b.IsProvisional() {
		add, err := findEdit(ctx, tx, EditBookmarkAdd, b.ID)
		if err != nil {
			return err
		}
		if add != nil {
			_, err := tx.ExecContext(ctx, `UPDATE pending_edits SET payload = json_set(payload, '$.destination_folder_dbid', ?) WHERE seq = ?`,
				destinationDBID, add.Seq)
			if err != nil {
				return fmt.Errorf("failed to retarget pending add of bookmark %d: %w", b.ID, err)
			}
			return nil
		}
	}

	source := b.FolderDBID
	prior, err := findEdit(ctx, tx, EditBookmarkMove, b.ID)
	if err != nil {
		return err
	}
	if prior != nil {
		source = prior.SourceFolderDBID
	}
	if source == destinationDBID {
		// back where the service last saw it
		_, err := deleteEdit(ctx, tx, EditBookmarkMove, b.ID)
		return err
	}
	return putEdit(ctx, tx, PendingEdit{
		Kind:                  EditBookmarkMove,
		EntityID:              b.ID,
		SourceFolderDBID:      source,
		DestinationFolderDBID: destinationDBID,
	})
}

// RemoveBookmark deletes a bookmark. Its pending adds, moves and progress edits
// are dropped; pending likes survive for confirmed bookmarks. A Local removal of a
// confirmed bookmark records a pending delete.
func (s *Store) RemoveBookmark(ctx context.Context, id int64, origin Origin) error {
	return s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		b, err := getBookmark(ctx, tx, id)
		if err != nil {
			return change{}, err
		}

		if b.IsProvisional() {
			_, err = tx.ExecContext(ctx, `DELETE FROM pending_edits WHERE entity_id = ? AND kind IN (?, ?, ?, ?, ?)`,
				id, string(EditBookmarkAdd), string(EditBookmarkMove), string(EditBookmarkProgress),
				string(EditBookmarkLike), string(EditBookmarkUnlike))
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM pending_edits WHERE entity_id = ? AND kind IN (?, ?, ?)`,
				id, string(EditBookmarkAdd), string(EditBookmarkMove), string(EditBookmarkProgress))
		}
		if err != nil {
			return change{}, fmt.Errorf("failed to drop pending edits of bookmark %d: %w", id, err)
		}

		if origin == Local && !b.IsProvisional() {
			if err := putEdit(ctx, tx, PendingEdit{
				Kind:             EditBookmarkDelete,
				EntityID:         id,
				SourceFolderDBID: b.FolderDBID,
			}); err != nil {
				return change{}, err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE bookmark_id = ?`, id); err != nil {
			return change{}, fmt.Errorf("failed to delete bookmark %d: %w", id, err)
		}

		return change{bookmark: &BookmarkChange{
			Operation:        BookmarkDeleted,
			BookmarkID:       id,
			SourceFolderDBID: b.FolderDBID,
			Origin:           origin,
		}}, nil
	})
}

// LikeBookmark stars a bookmark
func (s *Store) LikeBookmark(ctx context.Context, id int64, origin Origin) (Bookmark, error) {
	return s.setStarred(ctx, id, true, origin)
}

// UnlikeBookmark removes a bookmark's star
func (s *Store) UnlikeBookmark(ctx context.Context, id int64, origin Origin) (Bookmark, error) {
	return s.setStarred(ctx, id, false, origin)
}

// setStarred flips the like flag. Locally, undoing a pending opposite edit is
// enough; otherwise an edit is recorded when the flag actually changed.
func (s *Store) setStarred(ctx context.Context, id int64, starred bool, origin Origin) (Bookmark, error) {
	kind, opposite, op := EditBookmarkLike, EditBookmarkUnlike, BookmarkLiked
	if !starred {
		kind, opposite, op = EditBookmarkUnlike, EditBookmarkLike, BookmarkUnliked
	}

	var result Bookmark
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		b, err := getBookmark(ctx, tx, id)
		if err != nil {
			return change{}, err
		}
		changed := b.Starred != starred

		if changed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bookmarks SET starred = ? WHERE bookmark_id = ?`, boolInt(starred), id); err != nil {
				return change{}, fmt.Errorf("failed to update like state of bookmark %d: %w", id, err)
			}
		}

		if origin == Local {
			cancelled, err := deleteEdit(ctx, tx, opposite, id)
			if err != nil {
				return change{}, err
			}
			if !cancelled && changed {
				if err := putEdit(ctx, tx, PendingEdit{Kind: kind, EntityID: id}); err != nil {
					return change{}, err
				}
			}
		}

		b.Starred = starred
		result = b
		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:  op,
			BookmarkID: id,
			Bookmark:   &snapshot,
			Origin:     origin,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	return result, nil
}

// ConfirmBookmarkAdd replaces a provisional bookmark with the one the service
// created for it, in one transaction: the row is re-keyed to the service id, its
// remaining pending edits follow it, and the acknowledged add edit is removed. If
// the service id is already present locally that row is replaced.
func (s *Store) ConfirmBookmarkAdd(ctx context.Context, seq, provisionalID int64, confirmed Bookmark) (Bookmark, error) {
	if confirmed.ID <= 0 {
		return Bookmark{}, fmt.Errorf("%w: service bookmark without id", ErrInvalidBookmark)
	}
	if !validProgress(confirmed.Progress) {
		return Bookmark{}, ErrInvalidProgress
	}

	var result Bookmark
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		provisional, err := getBookmark(ctx, tx, provisionalID)
		if err != nil {
			return change{}, err
		}
		if !provisional.IsProvisional() {
			return change{}, fmt.Errorf("%w: bookmark %d is not provisional", ErrInvalidBookmark, provisionalID)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM pending_edits WHERE seq = ?`, seq)
		if err != nil {
			return change{}, fmt.Errorf("failed to delete pending add %d: %w", seq, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return change{}, &NotFoundError{Kind: "pending edit", ID: seq}
		}

		// edits already queued for the service id lose to the provisional bookmark's
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pending_edits WHERE entity_id = ?
				AND kind IN (SELECT kind FROM pending_edits WHERE entity_id = ?)`,
			confirmed.ID, provisionalID); err != nil {
			return change{}, fmt.Errorf("failed to drop superseded edits of bookmark %d: %w", confirmed.ID, err)
		}
		in, args := kindPlaceholders(bookmarkEditKinds)
		if _, err := tx.ExecContext(ctx,
			`UPDATE pending_edits SET entity_id = ? WHERE entity_id = ? AND kind IN (`+in+`)`,
			append([]any{confirmed.ID, provisionalID}, args...)...); err != nil {
			return change{}, fmt.Errorf("failed to re-key pending edits of bookmark %d: %w", provisionalID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE bookmark_id IN (?, ?)`,
			confirmed.ID, provisionalID); err != nil {
			return change{}, fmt.Errorf("failed to replace bookmark %d: %w", provisionalID, err)
		}

		b := confirmed
		b.FolderDBID = provisional.FolderDBID
		b.Starred = provisional.Starred
		b.ExtractedDescription = provisional.ExtractedDescription
		b.ContentAvailableLocally = provisional.ContentAvailableLocally
		b.HasImages = provisional.HasImages
		b.FirstImageURL = provisional.FirstImageURL
		b.ArticleUnavailable = provisional.ArticleUnavailable
		b.LocalFolderRelativePath = provisional.LocalFolderRelativePath
		if b.URL == "" {
			b.URL = provisional.URL
		}
		if err := insertBookmark(ctx, tx, b); err != nil {
			return change{}, err
		}

		result = b
		snapshot := b
		return change{bookmark: &BookmarkChange{
			Operation:          BookmarkUpdated,
			BookmarkID:         b.ID,
			Bookmark:           &snapshot,
			PreviousBookmarkID: provisionalID,
			Origin:             Server,
		}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	s.logger.Debug("bookmark add confirmed", "bookmark_id", result.ID, "provisional_id", provisionalID)
	return result, nil
}
