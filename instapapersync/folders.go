// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapapersync

import (
	"context"
	"errors"
	"fmt"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
)

func (r *run) syncFolders(ctx context.Context) error {
	r.emit(Status{Operation: StatusFoldersStart})

	edits, err := r.store.PendingFolderEdits(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending folder edits: %w", err)
	}
	for _, edit := range edits {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.replayFolderEdit(ctx, edit); err != nil {
			if err := r.itemFailed(ctx, err, ItemFailure{
				Operation: string(edit.Kind),
				EntityID:  edit.EntityID,
				FolderID:  edit.FolderID,
			}); err != nil {
				return err
			}
		}
	}

	remote, err := call(ctx, r, r.api.ListFolders)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}

	remoteIDs := make(map[string]bool, len(remote))
	for _, rf := range remote {
		remoteIDs[rf.FolderID] = true
		r.emit(Status{Operation: StatusFolder, Title: rf.Title})
		if err := r.mergeRemoteFolder(ctx, rf); err != nil {
			return err
		}
		r.report.FoldersSynced++
	}

	local, err := r.store.ListCurrentFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local folders: %w", err)
	}
	for _, lf := range local {
		// never synced folders are still waiting on their add
		if lf.IsCommon() || lf.FolderID == "" || remoteIDs[lf.FolderID] {
			continue
		}
		if err := r.store.RemoveFolder(ctx, lf.ID, instapaperdb.Server); err != nil {
			return fmt.Errorf("failed to remove folder %s: %w", lf.FolderID, err)
		}
		r.logger.Debug("folder removed by service", "folder_id", lf.FolderID, "title", lf.Title)
	}

	r.emit(Status{Operation: StatusFoldersEnd})
	return nil
}

func (r *run) replayFolderEdit(ctx context.Context, edit instapaperdb.PendingEdit) error {
	switch edit.Kind {
	case instapaperdb.EditFolderAdd:
		_, err := r.pushFolderAdd(ctx, edit)
		return err

	case instapaperdb.EditFolderDelete:
		err := callErr(ctx, r, func(ctx context.Context) error {
			return r.api.DeleteFolder(ctx, edit.FolderID)
		})
		// already gone
		if err := tolerate(err, instapaper.CodeInvalidFolder, instapaper.CodeUnexpected); err != nil {
			return err
		}

	case instapaperdb.EditFolderUpdate:
		_, err := call(ctx, r, func(ctx context.Context) ([]instapaper.Folder, error) {
			return r.api.SetFolderOrder(ctx, []instapaper.FolderPosition{{FolderID: edit.FolderID, Position: edit.Position}})
		})
		if err := tolerate(err, instapaper.CodeInvalidFolder); err != nil {
			return err
		}
	}
	return r.acknowledge(ctx, edit.Seq)
}

// pushFolderAdd creates the folder on the service and records its id locally.
// A folder with the same title may already exist there; it is adopted.
func (r *run) pushFolderAdd(ctx context.Context, edit instapaperdb.PendingEdit) (instapaperdb.Folder, error) {
	local, err := r.store.Folder(ctx, edit.EntityID)
	if err != nil {
		return instapaperdb.Folder{}, fmt.Errorf("failed to load folder %d: %w", edit.EntityID, err)
	}

	remote, err := call(ctx, r, func(ctx context.Context) (instapaper.Folder, error) {
		return r.api.AddFolder(ctx, edit.Title)
	})
	if instapaper.HasCode(err, instapaper.CodeDuplicateFolder) {
		remote, err = r.findRemoteFolder(ctx, edit.Title, err)
	}
	if err != nil {
		return instapaperdb.Folder{}, err
	}
	if err := r.checkCancelled(ctx); err != nil {
		return instapaperdb.Folder{}, err
	}

	local.FolderID = remote.FolderID
	local.Position = remote.Position
	synced, err := r.store.UpdateFolder(ctx, local, instapaperdb.Server)
	if err != nil {
		return instapaperdb.Folder{}, fmt.Errorf("failed to record folder id %s: %w", remote.FolderID, err)
	}
	if err := r.acknowledge(ctx, edit.Seq); err != nil {
		return instapaperdb.Folder{}, err
	}
	r.logger.Debug("folder add pushed", "folder_dbid", synced.ID, "folder_id", synced.FolderID)
	return synced, nil
}

func (r *run) findRemoteFolder(ctx context.Context, title string, cause error) (instapaper.Folder, error) {
	folders, err := call(ctx, r, r.api.ListFolders)
	if err != nil {
		return instapaper.Folder{}, err
	}
	for _, f := range folders {
		if f.Title == title {
			return f, nil
		}
	}
	return instapaper.Folder{}, cause
}

func (r *run) mergeRemoteFolder(ctx context.Context, rf instapaper.Folder) error {
	lf, err := r.store.FolderByFolderID(ctx, rf.FolderID)
	if errors.Is(err, instapaperdb.ErrNotFound) {
		_, err = r.store.AddFolder(ctx, instapaperdb.Folder{
			FolderID: rf.FolderID,
			Title:    rf.Title,
			Position: rf.Position,
		}, instapaperdb.Server)
		if errors.Is(err, instapaperdb.ErrDuplicateFolderTitle) {
			// a local folder with this title has not been pushed yet
			r.report.Failures = append(r.report.Failures, ItemFailure{
				Operation: "folder_merge",
				FolderID:  rf.FolderID,
				Err:       err,
			})
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to add folder %s: %w", rf.FolderID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up folder %s: %w", rf.FolderID, err)
	}

	if lf.Title == rf.Title && lf.Position == rf.Position {
		return nil
	}
	lf.Title = rf.Title
	lf.Position = rf.Position
	if _, err := r.store.UpdateFolder(ctx, lf, instapaperdb.Server); err != nil {
		return fmt.Errorf("failed to update folder %s: %w", rf.FolderID, err)
	}
	return nil
}
