// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError
	ErrNotFound                 = errors.New("not found")
	ErrDuplicateFolderTitle     = errors.New("a folder with this title already exists")
	ErrInvalidDestinationFolder = errors.New("bookmarks cannot be moved into this folder")
	ErrCommonFolder             = errors.New("built-in folders cannot be changed or removed")
	ErrInvalidProgress          = errors.New("progress must be between 0.0 and 1.0")
	ErrInvalidFolder            = errors.New("folder title required")
	ErrInvalidBookmark          = errors.New("invalid bookmark")
)

// NotFoundError reports a reference to a folder or bookmark that does not exist
type NotFoundError struct {
	Kind string // "folder" or "bookmark"
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func folderNotFound(id any) error   { return &NotFoundError{Kind: "folder", ID: id} }
func bookmarkNotFound(id any) error { return &NotFoundError{Kind: "bookmark", ID: id} }

// CorruptionError reports a pending-edit log entry that cannot be replayed.
// The entry is left in place for the caller to inspect.
type CorruptionError struct {
	Seq    int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt pending edit %d: %s", e.Seq, e.Reason)
}
