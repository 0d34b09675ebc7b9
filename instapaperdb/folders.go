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

const folderColumns = `id, folder_id, title, position, local_only`

func scanFolder(row rowScanner) (Folder, error) {
	var (
		f         Folder
		folderID  sql.NullString
		localOnly int
	)
	if err := row.Scan(&f.ID, &folderID, &f.Title, &f.Position, &localOnly); err != nil {
		return Folder{}, err
	}
	f.FolderID = folderID.String
	f.LocalOnly = localOnly != 0
	return f, nil
}

func getFolder(ctx context.Context, q queryer, dbid int64) (Folder, error) {
	f, err := scanFolder(q.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, dbid))
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, folderNotFound(dbid)
	}
	if err != nil {
		return Folder{}, fmt.Errorf("failed to load folder %d: %w", dbid, err)
	}
	return f, nil
}

func titleTaken(ctx context.Context, q queryer, title string, exceptID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM folders WHERE title = ? AND id != ?`, title, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check folder title: %w", err)
	}
	return n > 0, nil
}

// Folder returns the folder with local id dbid
func (s *Store) Folder(ctx context.Context, dbid int64) (Folder, error) {
	return getFolder(ctx, s.db, dbid)
}

// FolderByFolderID returns the folder with the given service id
func (s *Store) FolderByFolderID(ctx context.Context, folderID string) (Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE folder_id = ?`, folderID))
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, folderNotFound(folderID)
	}
	if err != nil {
		return Folder{}, fmt.Errorf("failed to load folder %s: %w", folderID, err)
	}
	return f, nil
}

// ListCurrentFolders returns a snapshot of all folders, common folders included, by id
func (s *Store) ListCurrentFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// AddFolder creates a folder. A Local add records a pending folder add, unless a
// folder with the same title is pending deletion, in which case that folder comes
// back with its original ids and the delete is forgotten. Server adds must carry
// the service folder id.
func (s *Store) AddFolder(ctx context.Context, f Folder, origin Origin) (Folder, error) {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return Folder{}, ErrInvalidFolder
	}
	if origin == Server && f.FolderID == "" {
		return Folder{}, fmt.Errorf("%w: service folder without folder id", ErrInvalidFolder)
	}

	var added Folder
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		taken, err := titleTaken(ctx, tx, f.Title, 0)
		if err != nil {
			return change{}, err
		}
		if taken {
			return change{}, fmt.Errorf("%w: %q", ErrDuplicateFolderTitle, f.Title)
		}

		var resurrect *PendingEdit
		if origin == Local {
			f.FolderID = ""
			deletes, err := editsOfKind(ctx, tx, EditFolderDelete)
			if err != nil {
				return change{}, err
			}
			for i := range deletes {
				if deletes[i].Title == f.Title {
					resurrect = &deletes[i]
					break
				}
			}
		}

		if resurrect != nil {
			f.ID = resurrect.EntityID
			f.FolderID = resurrect.FolderID
			if _, err := tx.ExecContext(ctx, `DELETE FROM pending_edits WHERE seq = ?`, resurrect.Seq); err != nil {
				return change{}, fmt.Errorf("failed to drop folder delete edit: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO folders (id, folder_id, title, position, local_only) VALUES (?, ?, ?, ?, ?)`,
				f.ID, nullString(f.FolderID), f.Title, f.Position, boolInt(f.LocalOnly)); err != nil {
				return change{}, fmt.Errorf("failed to restore folder %q: %w", f.Title, err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO folders (folder_id, title, position, local_only) VALUES (?, ?, ?, ?)`,
				nullString(f.FolderID), f.Title, f.Position, boolInt(f.LocalOnly))
			if err != nil {
				return change{}, fmt.Errorf("failed to insert folder %q: %w", f.Title, err)
			}
			if f.ID, err = res.LastInsertId(); err != nil {
				return change{}, fmt.Errorf("failed to read folder id: %w", err)
			}
			if origin == Local && !f.LocalOnly {
				if err := putEdit(ctx, tx, PendingEdit{Kind: EditFolderAdd, EntityID: f.ID, Title: f.Title}); err != nil {
					return change{}, err
				}
			}
		}

		added = f
		snapshot := f
		return change{folder: &FolderChange{
			Operation:  FolderAdded,
			FolderDBID: f.ID,
			Folder:     &snapshot,
			Title:      f.Title,
			Origin:     origin,
		}}, nil
	})
	if err != nil {
		return Folder{}, err
	}
	s.logger.Debug("folder added", "folder_dbid", added.ID, "title", added.Title, "origin", origin)
	return added, nil
}

// UpdateFolder changes a user folder's title or position. Local position changes
// on a folder the service knows about are recorded for sync. Only Server updates
// may assign the service folder id.
func (s *Store) UpdateFolder(ctx context.Context, f Folder, origin Origin) (Folder, error) {
	if IsCommonFolderID(f.ID) {
		return Folder{}, ErrCommonFolder
	}
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return Folder{}, ErrInvalidFolder
	}

	var updated Folder
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		existing, err := getFolder(ctx, tx, f.ID)
		if err != nil {
			return change{}, err
		}
		if f.Title != existing.Title {
			taken, err := titleTaken(ctx, tx, f.Title, f.ID)
			if err != nil {
				return change{}, err
			}
			if taken {
				return change{}, fmt.Errorf("%w: %q", ErrDuplicateFolderTitle, f.Title)
			}
		}

		next := existing
		next.Title = f.Title
		next.Position = f.Position
		if origin == Server && f.FolderID != "" {
			next.FolderID = f.FolderID
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE folders SET folder_id = ?, title = ?, position = ? WHERE id = ?`,
			nullString(next.FolderID), next.Title, next.Position, next.ID); err != nil {
			return change{}, fmt.Errorf("failed to update folder %d: %w", next.ID, err)
		}

		if origin == Local {
			pendingAdd, err := findEdit(ctx, tx, EditFolderAdd, next.ID)
			if err != nil {
				return change{}, err
			}
			switch {
			case pendingAdd != nil && pendingAdd.Title != next.Title:
				pendingAdd.Title = next.Title
				if err := putEdit(ctx, tx, *pendingAdd); err != nil {
					return change{}, err
				}
			case pendingAdd == nil && next.FolderID != "" && next.Position != existing.Position:
				if err := putEdit(ctx, tx, PendingEdit{
					Kind:     EditFolderUpdate,
					EntityID: next.ID,
					FolderID: next.FolderID,
					Position: next.Position,
				}); err != nil {
					return change{}, err
				}
			}
		}

		updated = next
		snapshot := next
		return change{folder: &FolderChange{
			Operation:  FolderUpdated,
			FolderDBID: next.ID,
			Folder:     &snapshot,
			Title:      next.Title,
			Origin:     origin,
		}}, nil
	})
	if err != nil {
		return Folder{}, err
	}
	return updated, nil
}

// RemoveFolder deletes a user folder, moving its bookmarks to Orphaned. Removing a
// folder that was never synced just forgets its pending add; otherwise a Local
// removal records a pending delete carrying the folder's service id and title.
func (s *Store) RemoveFolder(ctx context.Context, dbid int64, origin Origin) error {
	if IsCommonFolderID(dbid) {
		return ErrCommonFolder
	}

	var removed Folder
	err := s.mutate(ctx, func(tx *sql.Tx) (change, error) {
		f, err := getFolder(ctx, tx, dbid)
		if err != nil {
			return change{}, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE bookmarks SET folder_dbid = ? WHERE folder_dbid = ?`, Orphaned.ID(), dbid); err != nil {
			return change{}, fmt.Errorf("failed to orphan bookmarks of folder %d: %w", dbid, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pending_edits
			WHERE kind = ? AND json_extract(payload, '$.destination_folder_dbid') = ?`,
			string(EditBookmarkMove), dbid); err != nil {
			return change{}, fmt.Errorf("failed to drop moves into folder %d: %w", dbid, err)
		}
		if _, err := deleteEdit(ctx, tx, EditFolderUpdate, dbid); err != nil {
			return change{}, err
		}

		hadPendingAdd, err := deleteEdit(ctx, tx, EditFolderAdd, dbid)
		if err != nil {
			return change{}, err
		}
		if origin == Local && !hadPendingAdd && f.FolderID != "" {
			if err := putEdit(ctx, tx, PendingEdit{
				Kind:     EditFolderDelete,
				EntityID: dbid,
				FolderID: f.FolderID,
				Title:    f.Title,
			}); err != nil {
				return change{}, err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, dbid); err != nil {
			return change{}, fmt.Errorf("failed to delete folder %d: %w", dbid, err)
		}

		removed = f
		return change{folder: &FolderChange{
			Operation:  FolderDeleted,
			FolderDBID: dbid,
			Title:      f.Title,
			Origin:     origin,
		}}, nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("folder removed", "folder_dbid", dbid, "folder_id", removed.FolderID, "origin", origin)
	return nil
}

func editsOfKind(ctx context.Context, q queryer, kind EditKind) ([]PendingEdit, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+editColumns+` FROM pending_edits WHERE kind = ? ORDER BY seq`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s edits: %w", kind, err)
	}
	defer rows.Close()

	var edits []PendingEdit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}
