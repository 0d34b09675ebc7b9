// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"context"
	"fmt"

	"github.com/grork/storyvoid/instapaper"
)

// Account manipulates one account's data directly, the way another device
// signed into the same account would.
type Account struct {
	s    *Service
	user AccountRecord
}

// CreateAccount registers an account with the xAuth credentials
func (s *Service) CreateAccount(ctx context.Context, username, password string) (*Account, error) {
	record, err := s.accounts.Create(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to create account %q: %w", username, err)
	}
	return &Account{s: s, user: record}, nil
}

// Account returns a handle on an existing account
func (s *Service) Account(ctx context.Context, username string) (*Account, error) {
	record, err := s.accounts.ByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account %q: %w", username, err)
	}
	return &Account{s: s, user: record}, nil
}

// User returns the account as the service reports it
func (a *Account) User() instapaper.User {
	return instapaper.User{UserID: a.user.UserID, Username: a.user.Username}
}

// RevokeTokens invalidates every access token issued to the account so far
func (a *Account) RevokeTokens() {
	a.s.tokens.RevokeAll(a.user.UserID)
}

func (a *Account) with(fn func(l *library) error) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return fn(a.s.libraryLocked(a.user))
}

func (a *Account) withBookmark(id int64, fn func(l *library, b *bookmark) error) error {
	return a.with(func(l *library) error {
		b, err := l.bookmark(id)
		if err != nil {
			return err
		}
		return fn(l, b)
	})
}

// AddFolder creates a user folder
func (a *Account) AddFolder(title string) (instapaper.Folder, error) {
	var created instapaper.Folder
	err := a.with(func(l *library) error {
		f, err := l.addFolder(a.s.newFolderID(), title)
		if err != nil {
			return err
		}
		created = f.wire()
		return nil
	})
	return created, err
}

// DeleteFolder removes a user folder, archiving its bookmarks
func (a *Account) DeleteFolder(folderID string) error {
	return a.with(func(l *library) error { return l.deleteFolder(folderID) })
}

// RenameFolder changes a folder title
func (a *Account) RenameFolder(folderID, title string) error {
	return a.with(func(l *library) error {
		f := l.folder(folderID)
		if f == nil {
			return failure(instapaper.CodeInvalidFolder)
		}
		f.Title = title
		return nil
	})
}

// AddBookmark adds a url the same way bookmarks/add does
func (a *Account) AddBookmark(params instapaper.AddParams) (instapaper.Bookmark, error) {
	var added instapaper.Bookmark
	err := a.with(func(l *library) error {
		b, err := a.s.addBookmarkLocked(l, params)
		if err != nil {
			return err
		}
		added = b.wire()
		return nil
	})
	return added, err
}

// MoveBookmark moves a bookmark to "unread", "archive" or a user folder id
func (a *Account) MoveBookmark(id int64, folderID string) error {
	return a.withBookmark(id, func(l *library, b *bookmark) error { return l.moveTo(b, folderID) })
}

// Star sets or clears the like flag
func (a *Account) Star(id int64, starred bool) error {
	return a.withBookmark(id, func(_ *library, b *bookmark) error {
		b.Starred = starred
		return nil
	})
}

// SetProgress records reading progress; older timestamps are ignored
func (a *Account) SetProgress(id int64, progress float64, timestamp int64) error {
	return a.withBookmark(id, func(l *library, b *bookmark) error {
		l.setProgress(b, progress, timestamp)
		return nil
	})
}

// SetText replaces the body returned by bookmarks/get_text
func (a *Account) SetText(id int64, body string) error {
	return a.withBookmark(id, func(_ *library, b *bookmark) error {
		b.Text = body
		return nil
	})
}

// MarkUnavailable makes bookmarks/get_text fail with 1550
func (a *Account) MarkUnavailable(id int64) error {
	return a.withBookmark(id, func(_ *library, b *bookmark) error {
		b.Unavailable = true
		return nil
	})
}

// DeleteBookmark permanently removes a bookmark
func (a *Account) DeleteBookmark(id int64) error {
	return a.withBookmark(id, func(l *library, b *bookmark) error {
		delete(l.bookmarks, b.ID)
		return nil
	})
}

// Folders returns the user folders ordered by position
func (a *Account) Folders() []instapaper.Folder {
	var folders []instapaper.Folder
	_ = a.with(func(l *library) error {
		for _, f := range l.sortedFolders() {
			folders = append(folders, f.wire())
		}
		return nil
	})
	return folders
}

// Bookmarks returns a folder's bookmarks newest first. folderID may be
// "unread", "archive", "starred" or a user folder id.
func (a *Account) Bookmarks(folderID string) []instapaper.Bookmark {
	var bookmarks []instapaper.Bookmark
	_ = a.with(func(l *library) error {
		for _, b := range l.membersOf(folderID) {
			bookmarks = append(bookmarks, b.wire())
		}
		return nil
	})
	return bookmarks
}

// Bookmark returns one bookmark and whether it exists
func (a *Account) Bookmark(id int64) (instapaper.Bookmark, bool) {
	var found instapaper.Bookmark
	err := a.withBookmark(id, func(_ *library, b *bookmark) error {
		found = b.wire()
		return nil
	})
	return found, err == nil
}

// FolderOf reports which folder a bookmark is in
func (a *Account) FolderOf(id int64) (string, bool) {
	var folderID string
	err := a.withBookmark(id, func(_ *library, b *bookmark) error {
		folderID = b.Folder
		return nil
	})
	return folderID, err == nil
}
