// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapapersync

import (
	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
)

// ProgressResolver decides the reading position when the local and service
// copies of a bookmark disagree.
type ProgressResolver interface {
	// Resolve returns the progress to store and whether it is the local value
	Resolve(local instapaperdb.Bookmark, server instapaper.Bookmark) (progress float64, timestamp int64, keepLocal bool)
}

// DefaultProgressResolver keeps whichever side has the newer progress
// timestamp. The service wins ties.
type DefaultProgressResolver struct{}

func (DefaultProgressResolver) Resolve(local instapaperdb.Bookmark, server instapaper.Bookmark) (float64, int64, bool) {
	if local.ProgressTimestamp > server.ProgressTimestamp {
		return local.Progress, local.ProgressTimestamp, true
	}
	return server.Progress, server.ProgressTimestamp, false
}
