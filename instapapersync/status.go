// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapapersync

import "time"

// StatusOperation names a step of a sync pass
type StatusOperation string

const (
	StatusStart           StatusOperation = "start"
	StatusEnd             StatusOperation = "end"
	StatusFoldersStart    StatusOperation = "foldersStart"
	StatusFoldersEnd      StatusOperation = "foldersEnd"
	StatusFolder          StatusOperation = "folder"
	StatusBookmarksStart  StatusOperation = "bookmarksStart"
	StatusBookmarksEnd    StatusOperation = "bookmarksEnd"
	StatusBookmarkFolder  StatusOperation = "bookmarkFolder"
	StatusBookmark        StatusOperation = "bookmark"
	StatusBookmarksListed StatusOperation = "bookmarksListed"
)

// Status is a progress notification. Title names the folder or bookmark for the
// per-item operations; Duration is set on end and bookmarksListed.
type Status struct {
	Operation StatusOperation
	Title     string
	Duration  time.Duration
}
