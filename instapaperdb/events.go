// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

import (
	"github.com/grork/storyvoid/internal/events"
)

// FolderOperation is the kind of folder mutation a FolderChange describes
type FolderOperation string

const (
	FolderAdded   FolderOperation = "add"
	FolderUpdated FolderOperation = "update"
	FolderDeleted FolderOperation = "delete"
)

// BookmarkOperation is the kind of bookmark mutation a BookmarkChange describes
type BookmarkOperation string

const (
	BookmarkAdded   BookmarkOperation = "add"
	BookmarkUpdated BookmarkOperation = "update"
	BookmarkDeleted BookmarkOperation = "delete"
	BookmarkMoved   BookmarkOperation = "move"
	BookmarkLiked   BookmarkOperation = "like"
	BookmarkUnliked BookmarkOperation = "unlike"
)

// FolderChange is emitted once per folder mutation.
// Folder is nil for deletes.
type FolderChange struct {
	Operation  FolderOperation
	FolderDBID int64
	Folder     *Folder
	Title      string
	Origin     Origin
}

// BookmarkChange is emitted once per bookmark mutation.
// Bookmark is nil for deletes.
type BookmarkChange struct {
	Operation             BookmarkOperation
	BookmarkID            int64
	Bookmark              *Bookmark
	SourceFolderDBID      int64 // move, delete
	DestinationFolderDBID int64 // move
	PreviousBookmarkID    int64 // set when a provisional id was replaced by the service id
	Origin                Origin
}

// SubscribeFolders registers fn for folder changes. Listeners run synchronously on
// the mutating goroutine before the mutation returns, and must not mutate the store.
func (s *Store) SubscribeFolders(fn func(FolderChange)) events.Subscription {
	return s.folderEvents.Subscribe(fn)
}

// SubscribeBookmarks registers fn for bookmark changes, with the same delivery rules
// as SubscribeFolders.
func (s *Store) SubscribeBookmarks(fn func(BookmarkChange)) events.Subscription {
	return s.bookmarkEvents.Subscribe(fn)
}

// change is the event a committed mutation dispatches
type change struct {
	folder   *FolderChange
	bookmark *BookmarkChange
}

func (s *Store) dispatch(c change) {
	if c.folder != nil {
		s.folderEvents.Dispatch(*c.folder)
	}
	if c.bookmark != nil {
		s.bookmarkEvents.Dispatch(*c.bookmark)
	}
}
