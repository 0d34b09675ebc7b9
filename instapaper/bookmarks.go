// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"context"
	"strconv"
	"strings"

	"github.com/grork/storyvoid/oauth"
)

// Have describes a locally held bookmark so the service only returns differences
type Have struct {
	ID                int64
	Hash              string
	Progress          float64
	ProgressTimestamp int64
	HasProgress       bool
}

// String renders id[:hash[:progress:progress_timestamp]]
func (h Have) String() string {
	s := strconv.FormatInt(h.ID, 10)
	withProgress := h.HasProgress && h.ProgressTimestamp > 0
	// the hash slot stays positional when progress follows
	if h.Hash != "" || withProgress {
		s += ":" + h.Hash
	}
	if withProgress {
		s += ":" + strconv.FormatFloat(h.Progress, 'f', -1, 64) + ":" + strconv.FormatInt(h.ProgressTimestamp, 10)
	}
	return s
}

func (h Have) validate() error {
	if h.ID == 0 {
		return &ValidationError{Field: "have", Reason: "bookmark id required"}
	}
	if h.HasProgress && h.Progress > 0 && h.ProgressTimestamp <= 0 {
		return &ValidationError{Field: "have", Reason: "progress requires a progress timestamp"}
	}
	return nil
}

// ListParams filters bookmarks/list
type ListParams struct {
	FolderID string // "unread" when empty
	Limit    int
	Have     []Have
}

// ListBookmarks lists a folder, returning only bookmarks that differ from Have
// plus the ids that are no longer in the folder.
func (c *Client) ListBookmarks(ctx context.Context, params ListParams) (*BookmarkList, error) {
	var data []oauth.Pair
	if params.Limit > 0 {
		data = append(data, oauth.Pair{Key: "limit", Value: strconv.Itoa(params.Limit)})
	}
	if params.FolderID != "" {
		data = append(data, oauth.Pair{Key: "folder_id", Value: params.FolderID})
	}
	if len(params.Have) > 0 {
		haves := make([]string, 0, len(params.Have))
		for _, h := range params.Have {
			if err := h.validate(); err != nil {
				return nil, err
			}
			haves = append(haves, h.String())
		}
		data = append(data, oauth.Pair{Key: "have", Value: strings.Join(haves, ",")})
	}

	items, err := c.sendItems(ctx, "bookmarks/list", data)
	if err != nil {
		return nil, err
	}

	result := &BookmarkList{}
	for _, item := range items {
		switch item.Type {
		case "meta":
			ids, err := parseDeleteIDs(rawID(item.DeleteIDs))
			if err != nil {
				return nil, err
			}
			result.DeleteIDs = ids
		case "user":
			result.User = item.user()
		case "bookmark":
			result.Bookmarks = append(result.Bookmarks, item.bookmark())
		}
	}
	return result, nil
}

// AddParams describes a bookmark to add
type AddParams struct {
	URL         string
	Title       string
	Description string
	FolderID    string
}

// AddBookmark adds a URL. Adding an existing URL moves it back to the top of the
// target folder and returns the existing bookmark.
func (c *Client) AddBookmark(ctx context.Context, params AddParams) (Bookmark, error) {
	if params.URL == "" {
		return Bookmark{}, &ValidationError{Field: "url", Reason: "required"}
	}
	data := []oauth.Pair{{Key: "url", Value: params.URL}}
	if params.Title != "" {
		data = append(data, oauth.Pair{Key: "title", Value: params.Title})
	}
	if params.Description != "" {
		data = append(data, oauth.Pair{Key: "description", Value: params.Description})
	}
	if params.FolderID != "" {
		data = append(data, oauth.Pair{Key: "folder_id", Value: params.FolderID})
	}
	return c.sendBookmark(ctx, "bookmarks/add", data)
}

// DeleteBookmark permanently removes a bookmark
func (c *Client) DeleteBookmark(ctx context.Context, bookmarkID int64) error {
	data, err := bookmarkData(bookmarkID)
	if err != nil {
		return err
	}
	_, err = c.sendItems(ctx, "bookmarks/delete", data)
	return err
}

// MoveBookmark moves a bookmark into a user folder
func (c *Client) MoveBookmark(ctx context.Context, bookmarkID int64, folderID string) (Bookmark, error) {
	data, err := bookmarkData(bookmarkID)
	if err != nil {
		return Bookmark{}, err
	}
	if folderID == "" {
		return Bookmark{}, &ValidationError{Field: "folder_id", Reason: "destination required"}
	}
	data = append(data, oauth.Pair{Key: "folder_id", Value: folderID})
	return c.sendBookmark(ctx, "bookmarks/move", data)
}

// UpdateReadProgress records how far through a bookmark the user has read
func (c *Client) UpdateReadProgress(ctx context.Context, bookmarkID int64, progress float64, progressTimestamp int64) (Bookmark, error) {
	data, err := bookmarkData(bookmarkID)
	if err != nil {
		return Bookmark{}, err
	}
	if progress < 0 || progress > 1 {
		return Bookmark{}, &ValidationError{Field: "progress", Reason: "must be between 0.0 and 1.0"}
	}
	if progressTimestamp <= 0 {
		return Bookmark{}, &ValidationError{Field: "progress_timestamp", Reason: "required"}
	}
	data = append(data,
		oauth.Pair{Key: "progress", Value: strconv.FormatFloat(progress, 'f', -1, 64)},
		oauth.Pair{Key: "progress_timestamp", Value: strconv.FormatInt(progressTimestamp, 10)},
	)
	return c.sendBookmark(ctx, "bookmarks/update_read_progress", data)
}

// StarBookmark likes a bookmark
func (c *Client) StarBookmark(ctx context.Context, bookmarkID int64) (Bookmark, error) {
	return c.bookmarkAction(ctx, "bookmarks/star", bookmarkID)
}

// UnstarBookmark removes the like from a bookmark
func (c *Client) UnstarBookmark(ctx context.Context, bookmarkID int64) (Bookmark, error) {
	return c.bookmarkAction(ctx, "bookmarks/unstar", bookmarkID)
}

// ArchiveBookmark moves a bookmark to the archive
func (c *Client) ArchiveBookmark(ctx context.Context, bookmarkID int64) (Bookmark, error) {
	return c.bookmarkAction(ctx, "bookmarks/archive", bookmarkID)
}

// UnarchiveBookmark moves a bookmark back to unread
func (c *Client) UnarchiveBookmark(ctx context.Context, bookmarkID int64) (Bookmark, error) {
	return c.bookmarkAction(ctx, "bookmarks/unarchive", bookmarkID)
}

// GetText returns the processed article body as HTML
func (c *Client) GetText(ctx context.Context, bookmarkID int64) (string, error) {
	data, err := bookmarkData(bookmarkID)
	if err != nil {
		return "", err
	}
	body, err := c.send(ctx, "bookmarks/get_text", data)
	if err != nil {
		return "", err
	}
	// Errors may also arrive with a 200 status as a JSON envelope
	if apiErr := parseErrorEnvelope(body); apiErr != nil {
		return "", apiErr
	}
	return string(body), nil
}

func (c *Client) bookmarkAction(ctx context.Context, path string, bookmarkID int64) (Bookmark, error) {
	data, err := bookmarkData(bookmarkID)
	if err != nil {
		return Bookmark{}, err
	}
	return c.sendBookmark(ctx, path, data)
}

func bookmarkData(bookmarkID int64) ([]oauth.Pair, error) {
	if bookmarkID <= 0 {
		return nil, &ValidationError{Field: "bookmark_id", Reason: "required"}
	}
	return []oauth.Pair{{Key: "bookmark_id", Value: strconv.FormatInt(bookmarkID, 10)}}, nil
}
