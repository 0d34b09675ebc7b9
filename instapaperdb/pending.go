// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// editPayload is the JSON stored in pending_edits.payload
type editPayload struct {
	Title                 string  `json:"title,omitempty"`
	URL                   string  `json:"url,omitempty"`
	Description           string  `json:"description,omitempty"`
	FolderID              string  `json:"folder_id,omitempty"`
	Position              int64   `json:"position,omitempty"`
	SourceFolderDBID      int64   `json:"source_folder_dbid,omitempty"`
	DestinationFolderDBID int64   `json:"destination_folder_dbid,omitempty"`
	Progress              float64 `json:"progress,omitempty"`
	ProgressTimestamp     int64   `json:"progress_timestamp,omitempty"`
}

const editColumns = `seq, kind, entity_id, payload`

var folderEditKinds = []EditKind{EditFolderAdd, EditFolderUpdate, EditFolderDelete}

var bookmarkEditKinds = []EditKind{
	EditBookmarkAdd, EditBookmarkDelete, EditBookmarkMove,
	EditBookmarkLike, EditBookmarkUnlike, EditBookmarkProgress,
}

// putEdit records e, replacing any earlier edit of the same kind for the same
// entity. The replacement takes a new position at the end of the log.
func putEdit(ctx context.Context, q queryer, e PendingEdit) error {
	payload, err := json.Marshal(editPayload{
		Title:                 e.Title,
		URL:                   e.URL,
		Description:           e.Description,
		FolderID:              e.FolderID,
		Position:              e.Position,
		SourceFolderDBID:      e.SourceFolderDBID,
		DestinationFolderDBID: e.DestinationFolderDBID,
		Progress:              e.Progress,
		ProgressTimestamp:     e.ProgressTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pending edit: %w", err)
	}
	if _, err := deleteEdit(ctx, q, e.Kind, e.EntityID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO pending_edits (kind, entity_id, payload) VALUES (?, ?, ?)`,
		string(e.Kind), e.EntityID, string(payload)); err != nil {
		return fmt.Errorf("failed to record %s edit for %d: %w", e.Kind, e.EntityID, err)
	}
	return nil
}

// deleteEdit drops the edit of kind for entityID, reporting whether one existed
func deleteEdit(ctx context.Context, q queryer, kind EditKind, entityID int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM pending_edits WHERE kind = ? AND entity_id = ?`, string(kind), entityID)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s edit for %d: %w", kind, entityID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// findEdit returns the edit of kind for entityID, or nil when there is none
func findEdit(ctx context.Context, q queryer, kind EditKind, entityID int64) (*PendingEdit, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+editColumns+` FROM pending_edits WHERE kind = ? AND entity_id = ?`, string(kind), entityID)
	e, err := scanEdit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdit(row rowScanner) (PendingEdit, error) {
	var (
		e       PendingEdit
		kind    string
		payload string
	)
	if err := row.Scan(&e.Seq, &kind, &e.EntityID, &payload); err != nil {
		return PendingEdit{}, err
	}
	e.Kind = EditKind(kind)

	var p editPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return e, &CorruptionError{Seq: e.Seq, Reason: "unreadable payload: " + err.Error()}
	}
	e.Title = p.Title
	e.URL = p.URL
	e.Description = p.Description
	e.FolderID = p.FolderID
	e.Position = p.Position
	e.SourceFolderDBID = p.SourceFolderDBID
	e.DestinationFolderDBID = p.DestinationFolderDBID
	e.Progress = p.Progress
	e.ProgressTimestamp = p.ProgressTimestamp
	return e, nil
}

// validateEdit reports entries that could not be replayed against the service
func validateEdit(e PendingEdit) error {
	corrupt := func(reason string) error { return &CorruptionError{Seq: e.Seq, Reason: reason} }

	switch e.Kind {
	case EditFolderAdd:
		if e.Title == "" {
			return corrupt("folder add without title")
		}
	case EditFolderUpdate, EditFolderDelete:
		if e.FolderID == "" {
			return corrupt(string(e.Kind) + " without folder id")
		}
	case EditBookmarkAdd:
		if e.EntityID >= 0 {
			return corrupt("bookmark add for a confirmed bookmark id")
		}
		if e.URL == "" {
			return corrupt("bookmark add without url")
		}
	case EditBookmarkDelete:
		if e.EntityID <= 0 {
			return corrupt("bookmark delete for a provisional bookmark")
		}
	case EditBookmarkMove:
		if e.SourceFolderDBID <= 0 || e.DestinationFolderDBID <= 0 {
			return corrupt("bookmark move without source and destination")
		}
	case EditBookmarkLike, EditBookmarkUnlike:
		if e.EntityID == 0 {
			return corrupt(string(e.Kind) + " without bookmark id")
		}
	case EditBookmarkProgress:
		if e.Progress < 0 || e.Progress > 1 || e.ProgressTimestamp <= 0 {
			return corrupt("bookmark progress out of range")
		}
	default:
		return corrupt("unknown kind " + string(e.Kind))
	}
	return nil
}

func kindPlaceholders(kinds []EditKind) (string, []any) {
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = string(k)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ","), args
}

func (s *Store) queryEdits(ctx context.Context, query string, args ...any) ([]PendingEdit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending edits: %w", err)
	}
	defer rows.Close()

	var edits []PendingEdit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		if err := validateEdit(e); err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending edits: %w", err)
	}
	return edits, nil
}

// PendingFolderEdits returns folder edits in the order they were made.
// A malformed entry fails the whole read with a *CorruptionError.
func (s *Store) PendingFolderEdits(ctx context.Context) ([]PendingEdit, error) {
	in, args := kindPlaceholders(folderEditKinds)
	return s.queryEdits(ctx,
		`SELECT `+editColumns+` FROM pending_edits WHERE kind IN (`+in+`) ORDER BY seq`, args...)
}

// PendingBookmarkEdits returns bookmark edits in log order. With folderDBID > 0 only
// edits touching that folder are returned: moves and deletes from or into it, adds
// into it, and edits of bookmarks it currently holds. Liked selects like/unlike edits.
func (s *Store) PendingBookmarkEdits(ctx context.Context, folderDBID int64) ([]PendingEdit, error) {
	in, args := kindPlaceholders(bookmarkEditKinds)
	if folderDBID == 0 {
		return s.queryEdits(ctx,
			`SELECT `+editColumns+` FROM pending_edits WHERE kind IN (`+in+`) ORDER BY seq`, args...)
	}
	if folderDBID == Liked.ID() {
		return s.queryEdits(ctx,
			`SELECT `+editColumns+` FROM pending_edits WHERE kind IN (?, ?) ORDER BY seq`,
			string(EditBookmarkLike), string(EditBookmarkUnlike))
	}

	args = append(args, folderDBID, folderDBID, folderDBID)
	return s.queryEdits(ctx, `
		SELECT `+editColumns+` FROM pending_edits
		WHERE kind IN (`+in+`) AND (
			json_extract(payload, '$.source_folder_dbid') = ?
			OR json_extract(payload, '$.destination_folder_dbid') = ?
			OR entity_id IN (SELECT bookmark_id FROM bookmarks WHERE folder_dbid = ?)
		)
		ORDER BY seq`, args...)
}

// DeletePendingEdit removes an edit the service has acknowledged
func (s *Store) DeletePendingEdit(ctx context.Context, seq int64) error {
	return s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		res, err := tx.ExecContext(ctx, `DELETE FROM pending_edits WHERE seq = ?`, seq)
		if err != nil {
			return change{}, fmt.Errorf("failed to delete pending edit %d: %w", seq, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return change{}, &NotFoundError{Kind: "pending edit", ID: seq}
		}
		return change{}, nil
	})
}

// HasPendingEdits reports whether any local edit is waiting for sync
func (s *Store) HasPendingEdits(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_edits`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count pending edits: %w", err)
	}
	return n > 0, nil
}
