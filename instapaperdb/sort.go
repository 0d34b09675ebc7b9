// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

import (
	"cmp"
	"slices"
)

// SortFolders orders folders for display: common folders first by id, then user
// folders by position with ties broken by id. The order is total.
func SortFolders(folders []Folder) {
	slices.SortFunc(folders, CompareFolders)
}

// CompareFolders is the comparison SortFolders uses
func CompareFolders(a, b Folder) int {
	ac, bc := a.IsCommon(), b.IsCommon()
	switch {
	case ac && bc:
		return cmp.Compare(a.ID, b.ID)
	case ac:
		return -1
	case bc:
		return 1
	}
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
