// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapapersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
)

func (r *run) syncBookmarks(ctx context.Context) error {
	r.emit(Status{Operation: StatusBookmarksStart})

	folders, err := r.foldersToSync(ctx)
	if err != nil {
		return err
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}

	remoteIDs, err := r.remoteFolderIDs(ctx, folders)
	if err != nil {
		return err
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}

	for _, f := range folders {
		if f.ID == instapaperdb.Liked.ID() || f.ID == instapaperdb.Orphaned.ID() {
			continue
		}
		// deleted on the service, or not there yet
		if !f.IsCommon() && !remoteIDs[f.FolderID] {
			continue
		}
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		r.emit(Status{Operation: StatusBookmarkFolder, Title: f.Title})
		if err := r.syncFolderBookmarks(ctx, f); err != nil {
			return err
		}
	}

	if !r.opts.SingleFolder {
		if err := r.replayStrandedEdits(ctx); err != nil {
			return err
		}
	}

	if err := r.checkCancelled(ctx); err != nil {
		return err
	}
	if err := r.syncLikes(ctx); err != nil {
		return err
	}

	if !r.opts.SkipOrphanCleanup && !r.opts.SingleFolder {
		if err := r.removeOrphans(ctx); err != nil {
			return err
		}
	}

	r.emit(Status{Operation: StatusBookmarksEnd})
	return nil
}

// foldersToSync pushes pending adds and returns the folders to list, in order
func (r *run) foldersToSync(ctx context.Context) ([]instapaperdb.Folder, error) {
	if r.opts.SingleFolder {
		f, err := r.store.Folder(ctx, r.opts.Folder)
		if err != nil {
			return nil, fmt.Errorf("failed to load folder %d: %w", r.opts.Folder, err)
		}
		if f.FolderID == "" {
			if f, err = r.pushSingleFolderAdd(ctx, f); err != nil {
				return nil, err
			}
		}
		if err := r.pushBookmarkAdds(ctx, f.ID); err != nil {
			return nil, err
		}
		return []instapaperdb.Folder{f}, nil
	}

	if err := r.pushBookmarkAdds(ctx, 0); err != nil {
		return nil, err
	}
	folders, err := r.store.ListCurrentFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local folders: %w", err)
	}
	instapaperdb.SortFolders(folders)

	if r.opts.Folder != 0 {
		for i, f := range folders {
			if f.ID == r.opts.Folder {
				copy(folders[1:i+1], folders[:i])
				folders[0] = f
				break
			}
		}
	}
	return folders, nil
}

// pushSingleFolderAdd makes sure a never-synced folder exists on the service
// before its bookmarks are synced on their own.
func (r *run) pushSingleFolderAdd(ctx context.Context, f instapaperdb.Folder) (instapaperdb.Folder, error) {
	edits, err := r.store.PendingFolderEdits(ctx)
	if err != nil {
		return f, fmt.Errorf("failed to read pending folder edits: %w", err)
	}
	for _, edit := range edits {
		if edit.Kind == instapaperdb.EditFolderAdd && edit.EntityID == f.ID {
			return r.pushFolderAdd(ctx, edit)
		}
	}
	return f, &instapaperdb.CorruptionError{Reason: fmt.Sprintf("folder %d has no service id and no pending add", f.ID)}
}

func (r *run) remoteFolderIDs(ctx context.Context, folders []instapaperdb.Folder) (map[string]bool, error) {
	ids := make(map[string]bool)
	if r.opts.Folders {
		// the folder pass just made local and service folders agree
		for _, f := range folders {
			if f.FolderID != "" {
				ids[f.FolderID] = true
			}
		}
		return ids, nil
	}

	remote, err := call(ctx, r, r.api.ListFolders)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	for _, f := range remote {
		ids[f.FolderID] = true
	}
	return ids, nil
}

// pushBookmarkAdds sends pending adds, all of them or those destined for one folder
func (r *run) pushBookmarkAdds(ctx context.Context, folderDBID int64) error {
	edits, err := r.store.PendingBookmarkEdits(ctx, folderDBID)
	if err != nil {
		return fmt.Errorf("failed to read pending bookmark edits: %w", err)
	}
	for _, edit := range edits {
		if edit.Kind != instapaperdb.EditBookmarkAdd {
			continue
		}
		if folderDBID != 0 && edit.DestinationFolderDBID != folderDBID {
			continue
		}
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.pushBookmarkAdd(ctx, edit); err != nil {
			if err := r.itemFailed(ctx, err, ItemFailure{Operation: string(edit.Kind), EntityID: edit.EntityID}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) pushBookmarkAdd(ctx context.Context, edit instapaperdb.PendingEdit) error {
	params := instapaper.AddParams{URL: edit.URL, Title: edit.Title, Description: edit.Description}

	archive := false
	switch dest, err := r.store.Folder(ctx, edit.DestinationFolderDBID); {
	case errors.Is(err, instapaperdb.ErrNotFound):
		// destination removed since; the bookmark lands in Unread
	case err != nil:
		return fmt.Errorf("failed to load folder %d: %w", edit.DestinationFolderDBID, err)
	case dest.ID == instapaperdb.Archive.ID():
		archive = true
	case !dest.IsCommon() && dest.FolderID != "":
		params.FolderID = dest.FolderID
	}

	added, err := call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
		return r.api.AddBookmark(ctx, params)
	})
	if err != nil {
		return err
	}
	if archive {
		_, err := call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
			return r.api.ArchiveBookmark(ctx, added.ID)
		})
		if err := tolerate(err, instapaper.CodeInvalidBookmark); err != nil {
			return err
		}
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}

	confirmed, err := r.store.ConfirmBookmarkAdd(ctx, edit.Seq, edit.EntityID, localBookmark(added))
	if err != nil {
		return fmt.Errorf("failed to confirm bookmark add %d: %w", edit.EntityID, err)
	}
	r.emit(Status{Operation: StatusBookmark, Title: confirmed.Title})
	r.logger.Debug("bookmark add pushed", "provisional_id", edit.EntityID, "bookmark_id", confirmed.ID)
	return nil
}

// syncFolderBookmarks replays the folder's pending moves, deletes and progress
// edits, then lists the folder and merges the result.
func (r *run) syncFolderBookmarks(ctx context.Context, f instapaperdb.Folder) error {
	edits, err := r.store.PendingBookmarkEdits(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("failed to read pending bookmark edits: %w", err)
	}
	if err := r.replayEdits(ctx, edits); err != nil {
		return err
	}
	held, err := r.heldBookmarks(ctx)
	if err != nil {
		return err
	}

	local, err := r.store.ListCurrentBookmarks(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("failed to list local bookmarks: %w", err)
	}
	haves := make([]instapaper.Have, 0, len(local))
	for _, b := range local {
		if b.IsProvisional() {
			continue
		}
		haves = append(haves, instapaper.Have{
			ID:                b.ID,
			Hash:              b.Hash,
			Progress:          b.Progress,
			ProgressTimestamp: b.ProgressTimestamp,
			HasProgress:       b.ProgressTimestamp > 0,
		})
	}

	started := time.Now()
	list, err := call(ctx, r, func(ctx context.Context) (*instapaper.BookmarkList, error) {
		return r.api.ListBookmarks(ctx, instapaper.ListParams{
			FolderID: f.FolderID,
			Limit:    r.limitFor(f.FolderID),
			Have:     haves,
		})
	})
	if err != nil {
		return r.itemFailed(ctx, err, ItemFailure{Operation: "bookmark_list", FolderID: f.FolderID})
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}
	r.emit(Status{Operation: StatusBookmarksListed, Title: f.Title, Duration: time.Since(started)})
	r.report.BookmarksListed += len(list.Bookmarks)

	for _, rb := range list.Bookmarks {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.mergeRemoteBookmark(ctx, f, rb, held[rb.ID]); err != nil {
			return err
		}
	}

	for _, id := range list.DeleteIDs {
		b, err := r.store.Bookmark(ctx, id)
		if errors.Is(err, instapaperdb.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load bookmark %d: %w", id, err)
		}
		// only what this folder still claims; elsewhere means it moved since
		if b.FolderDBID != f.ID {
			continue
		}
		// the service has not seen the local move or delete yet
		if held[id].has(instapaperdb.EditBookmarkMove) || held[id].has(instapaperdb.EditBookmarkDelete) {
			continue
		}
		if _, err := r.store.MoveBookmark(ctx, id, instapaperdb.Orphaned.ID(), instapaperdb.Server); err != nil {
			return fmt.Errorf("failed to orphan bookmark %d: %w", id, err)
		}
	}
	return nil
}

func (r *run) limitFor(folderID string) int {
	if limit, ok := r.config.PerFolderBookmarkLimits[folderID]; ok && limit > 0 {
		return limit
	}
	return r.config.DefaultBookmarkLimit
}

// replayEdits sends the moves, deletes and progress updates among edits that
// this pass has not tried yet. Adds and likes have their own phases.
func (r *run) replayEdits(ctx context.Context, edits []instapaperdb.PendingEdit) error {
	for _, edit := range edits {
		switch edit.Kind {
		case instapaperdb.EditBookmarkMove, instapaperdb.EditBookmarkDelete, instapaperdb.EditBookmarkProgress:
		default:
			continue
		}
		if edit.EntityID < 0 || r.replayed[edit.Seq] {
			continue
		}
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		r.replayed[edit.Seq] = true
		if err := r.replayBookmarkEdit(ctx, edit); err != nil {
			if err := r.itemFailed(ctx, err, ItemFailure{Operation: string(edit.Kind), EntityID: edit.EntityID}); err != nil {
				return err
			}
		}
	}
	return nil
}

// replayStrandedEdits sends edits no listed folder picked up, such as a delete
// of a bookmark whose folder was removed locally.
func (r *run) replayStrandedEdits(ctx context.Context) error {
	edits, err := r.store.PendingBookmarkEdits(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to read pending bookmark edits: %w", err)
	}
	return r.replayEdits(ctx, edits)
}

type editKinds map[instapaperdb.EditKind]bool

func (k editKinds) has(kind instapaperdb.EditKind) bool { return k[kind] }

// heldBookmarks maps bookmark ids to the kinds of edits still queued for them
func (r *run) heldBookmarks(ctx context.Context) (map[int64]editKinds, error) {
	edits, err := r.store.PendingBookmarkEdits(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending bookmark edits: %w", err)
	}
	held := make(map[int64]editKinds)
	for _, edit := range edits {
		if held[edit.EntityID] == nil {
			held[edit.EntityID] = make(editKinds)
		}
		held[edit.EntityID][edit.Kind] = true
	}
	return held, nil
}

func (r *run) replayBookmarkEdit(ctx context.Context, edit instapaperdb.PendingEdit) error {
	id := edit.EntityID
	var err error

	switch edit.Kind {
	case instapaperdb.EditBookmarkDelete:
		err = callErr(ctx, r, func(ctx context.Context) error { return r.api.DeleteBookmark(ctx, id) })
		err = tolerate(err, instapaper.CodeInvalidBookmark)

	case instapaperdb.EditBookmarkProgress:
		_, err = call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
			return r.api.UpdateReadProgress(ctx, id, edit.Progress, edit.ProgressTimestamp)
		})
		err = tolerate(err, instapaper.CodeInvalidBookmark)

	case instapaperdb.EditBookmarkMove:
		var handled bool
		if handled, err = r.replayMove(ctx, edit); err == nil && !handled {
			return nil
		}
	}
	if err != nil {
		return err
	}
	return r.acknowledge(ctx, edit.Seq)
}

// replayMove pushes a move. It reports false when the edit must stay queued
// because its destination is not on the service yet.
func (r *run) replayMove(ctx context.Context, edit instapaperdb.PendingEdit) (bool, error) {
	id := edit.EntityID

	switch edit.DestinationFolderDBID {
	case instapaperdb.Archive.ID():
		_, err := call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
			return r.api.ArchiveBookmark(ctx, id)
		})
		return true, tolerate(err, instapaper.CodeInvalidBookmark)

	case instapaperdb.Unread.ID():
		if edit.SourceFolderDBID == instapaperdb.Archive.ID() {
			_, err := call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
				return r.api.UnarchiveBookmark(ctx, id)
			})
			if !instapaper.HasCode(err, instapaper.CodeInvalidBookmark) {
				return true, err
			}
		}
		// adding an existing url again puts it back in Unread
		b, err := r.store.Bookmark(ctx, id)
		if errors.Is(err, instapaperdb.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load bookmark %d: %w", id, err)
		}
		_, err = call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
			return r.api.AddBookmark(ctx, instapaper.AddParams{URL: b.URL})
		})
		return true, err

	default:
		dest, err := r.store.Folder(ctx, edit.DestinationFolderDBID)
		if errors.Is(err, instapaperdb.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load folder %d: %w", edit.DestinationFolderDBID, err)
		}
		if dest.FolderID == "" {
			return false, nil
		}
		_, err = call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
			return r.api.MoveBookmark(ctx, id, dest.FolderID)
		})
		return true, tolerate(err, instapaper.CodeInvalidBookmark, instapaper.CodeInvalidFolder, instapaper.CodeServiceError)
	}
}

// mergeRemoteBookmark brings a listed bookmark into folder f. Nothing is written
// when the local copy already matches. A bookmark with a pending delete is not
// brought back, and one with a pending move stays where the user put it.
func (r *run) mergeRemoteBookmark(ctx context.Context, f instapaperdb.Folder, rb instapaper.Bookmark, pending editKinds) error {
	if pending.has(instapaperdb.EditBookmarkDelete) {
		r.logger.Debug("listed bookmark has a pending delete", "bookmark_id", rb.ID)
		return nil
	}
	r.emit(Status{Operation: StatusBookmark, Title: rb.Title})

	local, err := r.store.Bookmark(ctx, rb.ID)
	if errors.Is(err, instapaperdb.ErrNotFound) {
		b := localBookmark(rb)
		b.FolderDBID = f.ID
		if _, err := r.store.AddBookmark(ctx, b, instapaperdb.Server); err != nil {
			return fmt.Errorf("failed to add bookmark %d: %w", rb.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load bookmark %d: %w", rb.ID, err)
	}

	if local.FolderDBID != f.ID && !pending.has(instapaperdb.EditBookmarkMove) {
		if _, err = r.store.MoveBookmark(ctx, rb.ID, f.ID, instapaperdb.Server); err != nil {
			return fmt.Errorf("failed to move bookmark %d: %w", rb.ID, err)
		}
	}
	return r.mergeFields(ctx, rb)
}

// mergeFields copies the service's view of a bookmark's content, resolving
// read progress with the configured resolver against the current local row.
func (r *run) mergeFields(ctx context.Context, rb instapaper.Bookmark) error {
	_, err := r.store.ModifyBookmark(ctx, rb.ID, func(b *instapaperdb.Bookmark) {
		local := *b
		b.URL = rb.URL
		b.Title = rb.Title
		b.Description = rb.Description
		b.Hash = rb.Hash
		b.Time = rb.Time
		b.Progress, b.ProgressTimestamp, _ = r.config.Resolver.Resolve(local, rb)
	})
	if err != nil {
		return fmt.Errorf("failed to update bookmark %d: %w", rb.ID, err)
	}
	return nil
}

func (r *run) removeOrphans(ctx context.Context) error {
	orphans, err := r.store.ListCurrentBookmarks(ctx, instapaperdb.Orphaned.ID())
	if err != nil {
		return fmt.Errorf("failed to list orphaned bookmarks: %w", err)
	}
	held, err := r.heldBookmarks(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for _, b := range orphans {
		// unconfirmed adds and unsent edits are still local intent
		if b.IsProvisional() || len(held[b.ID]) > 0 {
			continue
		}
		if err := r.store.RemoveBookmark(ctx, b.ID, instapaperdb.Server); err != nil {
			return fmt.Errorf("failed to remove orphaned bookmark %d: %w", b.ID, err)
		}
		removed++
	}
	if removed > 0 {
		r.logger.Debug("orphaned bookmarks removed", "count", removed)
	}
	return nil
}

func localBookmark(rb instapaper.Bookmark) instapaperdb.Bookmark {
	return instapaperdb.Bookmark{
		ID:                rb.ID,
		URL:               rb.URL,
		Title:             rb.Title,
		Description:       rb.Description,
		Hash:              rb.Hash,
		Progress:          rb.Progress,
		ProgressTimestamp: rb.ProgressTimestamp,
		Time:              rb.Time,
		Starred:           rb.Starred,
	}
}
