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

// syncLikes pushes pending likes and unlikes, then lists the service's starred
// bookmarks and mirrors the like flag locally.
func (r *run) syncLikes(ctx context.Context) error {
	edits, err := r.store.PendingBookmarkEdits(ctx, instapaperdb.Liked.ID())
	if err != nil {
		return fmt.Errorf("failed to read pending like edits: %w", err)
	}
	for _, edit := range edits {
		if edit.EntityID < 0 {
			continue
		}
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if err := r.replayLike(ctx, edit); err != nil {
			if err := r.itemFailed(ctx, err, ItemFailure{Operation: string(edit.Kind), EntityID: edit.EntityID}); err != nil {
				return err
			}
		}
	}

	// likes that could not be pushed keep their local state
	stillPending := make(map[int64]bool)
	if edits, err = r.store.PendingBookmarkEdits(ctx, instapaperdb.Liked.ID()); err != nil {
		return fmt.Errorf("failed to read pending like edits: %w", err)
	}
	for _, edit := range edits {
		stillPending[edit.EntityID] = true
	}

	local, err := r.store.ListCurrentBookmarks(ctx, instapaperdb.Liked.ID())
	if err != nil {
		return fmt.Errorf("failed to list liked bookmarks: %w", err)
	}
	haves := make([]instapaper.Have, 0, len(local))
	for _, b := range local {
		if !b.IsProvisional() {
			haves = append(haves, instapaper.Have{ID: b.ID, Hash: b.Hash})
		}
	}

	list, err := call(ctx, r, func(ctx context.Context) (*instapaper.BookmarkList, error) {
		return r.api.ListBookmarks(ctx, instapaper.ListParams{
			FolderID: instapaperdb.LikedFolderID,
			Limit:    r.limitFor(instapaperdb.LikedFolderID),
			Have:     haves,
		})
	})
	if err != nil {
		return r.itemFailed(ctx, err, ItemFailure{Operation: "bookmark_list", FolderID: instapaperdb.LikedFolderID})
	}
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}
	r.report.BookmarksListed += len(list.Bookmarks)

	for _, rb := range list.Bookmarks {
		if stillPending[rb.ID] {
			continue
		}
		local, err := r.setLiked(ctx, rb.ID, true)
		if err != nil {
			return err
		}
		if local == nil {
			continue
		}
		// the like changed the service hash
		if err := r.mergeFields(ctx, rb); err != nil {
			return err
		}
	}
	for _, id := range list.DeleteIDs {
		if stillPending[id] {
			continue
		}
		if _, err := r.setLiked(ctx, id, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) replayLike(ctx context.Context, edit instapaperdb.PendingEdit) error {
	_, err := call(ctx, r, func(ctx context.Context) (instapaper.Bookmark, error) {
		if edit.Kind == instapaperdb.EditBookmarkLike {
			return r.api.StarBookmark(ctx, edit.EntityID)
		}
		return r.api.UnstarBookmark(ctx, edit.EntityID)
	})
	if err := tolerate(err, instapaper.CodeInvalidBookmark); err != nil {
		return err
	}
	return r.acknowledge(ctx, edit.Seq)
}

// setLiked mirrors the service like flag and returns the local bookmark.
// Bookmarks not held locally are skipped and yield nil.
func (r *run) setLiked(ctx context.Context, id int64, liked bool) (*instapaperdb.Bookmark, error) {
	b, err := r.store.Bookmark(ctx, id)
	if errors.Is(err, instapaperdb.ErrNotFound) {
		r.logger.Debug("liked bookmark not held locally", "bookmark_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmark %d: %w", id, err)
	}
	if b.Starred == liked {
		return &b, nil
	}

	if liked {
		b, err = r.store.LikeBookmark(ctx, id, instapaperdb.Server)
	} else {
		b, err = r.store.UnlikeBookmark(ctx, id, instapaperdb.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update like state of bookmark %d: %w", id, err)
	}
	return &b, nil
}
