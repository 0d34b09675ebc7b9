// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"context"
	"strconv"
	"strings"

	"github.com/grork/storyvoid/oauth"
)

// ListFolders returns the user's folders (built-in folders are not included)
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	items, err := c.sendItems(ctx, "folders/list", nil)
	if err != nil {
		return nil, err
	}
	return foldersFrom(items), nil
}

// AddFolder creates a folder. The service answers a duplicate title with an empty
// result, which is reported as CodeDuplicateFolder.
func (c *Client) AddFolder(ctx context.Context, title string) (Folder, error) {
	if title == "" {
		return Folder{}, &ValidationError{Field: "title", Reason: "required"}
	}
	items, err := c.sendItems(ctx, "folders/add", []oauth.Pair{{Key: "title", Value: title}})
	if err != nil {
		return Folder{}, err
	}
	folders := foldersFrom(items)
	if len(folders) == 0 || folders[0].FolderID == "" {
		return Folder{}, &APIError{Code: CodeDuplicateFolder, Message: "User already has a folder with this title"}
	}
	return folders[0], nil
}

// DeleteFolder removes a folder and moves its bookmarks to the archive
func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	if folderID == "" {
		return &ValidationError{Field: "folder_id", Reason: "required"}
	}
	_, err := c.sendItems(ctx, "folders/delete", []oauth.Pair{{Key: "folder_id", Value: folderID}})
	return err
}

// SetFolderOrder sets the user-visible order of folders
func (c *Client) SetFolderOrder(ctx context.Context, order []FolderPosition) ([]Folder, error) {
	if len(order) == 0 {
		return nil, &ValidationError{Field: "order", Reason: "at least one folder required"}
	}
	parts := make([]string, 0, len(order))
	for _, p := range order {
		if p.FolderID == "" {
			return nil, &ValidationError{Field: "order", Reason: "folder id required"}
		}
		parts = append(parts, p.FolderID+":"+strconv.FormatInt(p.Position, 10))
	}
	items, err := c.sendItems(ctx, "folders/set_order", []oauth.Pair{{Key: "order", Value: strings.Join(parts, ",")}})
	if err != nil {
		return nil, err
	}
	return foldersFrom(items), nil
}

func foldersFrom(items []wireItem) []Folder {
	folders := make([]Folder, 0, len(items))
	for _, item := range items {
		if item.Type != "folder" {
			continue
		}
		folders = append(folders, item.folder())
	}
	return folders
}
