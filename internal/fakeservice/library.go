// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/grork/storyvoid/instapaper"
)

// Built-in folder ids accepted by bookmarks/list
const (
	folderUnread  = "unread"
	folderArchive = "archive"
	folderStarred = "starred"
)

const (
	defaultListLimit = 25
	maxListLimit     = 500
)

var errorMessages = map[int]string{
	instapaper.CodeRateLimited:        "Rate-limit exceeded",
	1240:                              "Invalid URL specified",
	instapaper.CodeInvalidBookmark:    "Invalid or missing bookmark_id",
	instapaper.CodeInvalidFolder:      "Invalid or missing folder_id",
	instapaper.CodeUnexpected:         "Unexpected error when saving bookmark",
	instapaper.CodeDuplicateFolder:    "User already has a folder with this title",
	instapaper.CodeServiceError:       "An unexpected error occurred",
	instapaper.CodeArticleUnavailable: "Error generating text version of this URL",
}

// serviceError is rendered as a one-element error array
type serviceError struct {
	Code    int
	Message string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

func failure(code int) *serviceError {
	return &serviceError{Code: code, Message: errorMessages[code]}
}

type folder struct {
	ID           int64
	Title        string
	Position     int64
	SyncToMobile bool
}

func (f *folder) key() string {
	return strconv.FormatInt(f.ID, 10)
}

func (f *folder) wire() instapaper.Folder {
	return instapaper.Folder{
		FolderID:     f.key(),
		Title:        f.Title,
		Position:     f.Position,
		SyncToMobile: f.SyncToMobile,
	}
}

type bookmark struct {
	ID                int64
	URL               string
	Title             string
	Description       string
	Progress          float64
	ProgressTimestamp int64
	Starred           bool
	Time              int64
	Folder            string // unread, archive or a user folder id
	PrivateSource     string
	Text              string
	Unavailable       bool
}

// hash changes whenever a field a client caches changes
func (b *bookmark) hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%g|%d|%t",
		b.URL, b.Title, b.Description, b.Progress, b.ProgressTimestamp, b.Starred)))
	return hex.EncodeToString(sum[:6])
}

func (b *bookmark) wire() instapaper.Bookmark {
	return instapaper.Bookmark{
		ID:                b.ID,
		URL:               b.URL,
		Title:             b.Title,
		Description:       b.Description,
		Hash:              b.hash(),
		Progress:          b.Progress,
		ProgressTimestamp: b.ProgressTimestamp,
		Starred:           b.Starred,
		Time:              b.Time,
		PrivateSource:     b.PrivateSource,
	}
}

func (b *bookmark) in(folderKey string) bool {
	if folderKey == folderStarred {
		return b.Starred
	}
	return b.Folder == folderKey
}

// library is one account's data. The Service mutex guards every field.
type library struct {
	user      AccountRecord
	folders   []*folder
	bookmarks map[int64]*bookmark
}

func newLibrary(user AccountRecord) *library {
	return &library{user: user, bookmarks: make(map[int64]*bookmark)}
}

func (l *library) folder(folderID string) *folder {
	for _, f := range l.folders {
		if f.key() == folderID {
			return f
		}
	}
	return nil
}

func (l *library) bookmark(id int64) (*bookmark, error) {
	b, ok := l.bookmarks[id]
	if !ok {
		return nil, failure(instapaper.CodeInvalidBookmark)
	}
	return b, nil
}

func (l *library) bookmarkByURL(url string) *bookmark {
	for _, b := range l.bookmarks {
		if b.URL == url {
			return b
		}
	}
	return nil
}

// validListFolder accepts the built-in ids and existing user folders
func (l *library) validListFolder(folderID string) bool {
	switch folderID {
	case folderUnread, folderArchive, folderStarred:
		return true
	}
	return l.folder(folderID) != nil
}

// membersOf returns the bookmarks of a folder, newest first
func (l *library) membersOf(folderKey string) []*bookmark {
	var members []*bookmark
	for _, b := range l.bookmarks {
		if b.in(folderKey) {
			members = append(members, b)
		}
	}
	slices.SortFunc(members, func(a, b *bookmark) int {
		if c := cmp.Compare(b.Time, a.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return members
}

func (l *library) sortedFolders() []*folder {
	folders := slices.Clone(l.folders)
	slices.SortFunc(folders, func(a, b *folder) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return folders
}

func (l *library) nextPosition() int64 {
	var position int64
	for _, f := range l.folders {
		position = max(position, f.Position)
	}
	return position + 1
}

// have is one parsed entry of the bookmarks/list have parameter
type have struct {
	ID                int64
	Hash              string
	Progress          float64
	ProgressTimestamp int64
	HasProgress       bool
}

// parseHaves reads "id[:hash[:progress:progress_timestamp]]" entries; malformed
// entries are ignored.
func parseHaves(s string) []have {
	var haves []have
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || id == 0 {
			continue
		}
		h := have{ID: id}
		if len(parts) > 1 {
			h.Hash = parts[1]
		}
		if len(parts) > 3 {
			progress, perr := strconv.ParseFloat(parts[2], 64)
			timestamp, terr := strconv.ParseInt(parts[3], 10, 64)
			if perr == nil && terr == nil {
				h.Progress, h.ProgressTimestamp, h.HasProgress = progress, timestamp, true
			}
		}
		haves = append(haves, h)
	}
	return haves
}

// list answers bookmarks/list. Client progress newer than the service's is
// adopted first. Bookmarks whose hash the client already has are omitted, and
// have ids no longer in the folder are reported for deletion.
func (l *library) list(folderKey string, limit int, haves []have) ([]*bookmark, []int64) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	known := make(map[int64]have, len(haves))
	var deleteIDs []int64
	for _, h := range haves {
		known[h.ID] = h
		b, ok := l.bookmarks[h.ID]
		if !ok || !b.in(folderKey) {
			deleteIDs = append(deleteIDs, h.ID)
			continue
		}
		if h.HasProgress && h.ProgressTimestamp > b.ProgressTimestamp {
			b.Progress, b.ProgressTimestamp = h.Progress, h.ProgressTimestamp
		}
	}

	members := l.membersOf(folderKey)
	if len(members) > limit {
		members = members[:limit]
	}
	var changed []*bookmark
	for _, b := range members {
		if h, ok := known[b.ID]; ok && h.Hash == b.hash() {
			continue
		}
		changed = append(changed, b)
	}
	return changed, deleteIDs
}

func (l *library) setProgress(b *bookmark, progress float64, timestamp int64) {
	if timestamp < b.ProgressTimestamp {
		return
	}
	b.Progress, b.ProgressTimestamp = progress, timestamp
}

func (l *library) addFolder(id int64, title string) (*folder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, failure(instapaper.CodeUnexpected)
	}
	for _, f := range l.folders {
		if strings.EqualFold(f.Title, title) {
			return nil, failure(instapaper.CodeDuplicateFolder)
		}
	}
	f := &folder{ID: id, Title: title, Position: l.nextPosition(), SyncToMobile: true}
	l.folders = append(l.folders, f)
	return f, nil
}

// deleteFolder removes a user folder; its bookmarks go to the archive
func (l *library) deleteFolder(folderID string) error {
	idx := slices.IndexFunc(l.folders, func(f *folder) bool { return f.key() == folderID })
	if idx < 0 {
		return failure(instapaper.CodeInvalidFolder)
	}
	for _, b := range l.bookmarks {
		if b.Folder == folderID {
			b.Folder = folderArchive
		}
	}
	l.folders = slices.Delete(l.folders, idx, idx+1)
	return nil
}

func (l *library) setOrder(order string) error {
	for _, entry := range strings.Split(order, ",") {
		folderID, position, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found {
			return failure(instapaper.CodeUnexpected)
		}
		pos, err := strconv.ParseInt(position, 10, 64)
		if err != nil {
			return failure(instapaper.CodeUnexpected)
		}
		f := l.folder(folderID)
		if f == nil {
			return failure(instapaper.CodeInvalidFolder)
		}
		f.Position = pos
	}
	return nil
}

// moveTo places a bookmark in unread, archive or a user folder
func (l *library) moveTo(b *bookmark, folderID string) error {
	switch folderID {
	case "", folderUnread:
		b.Folder = folderUnread
	case folderArchive:
		b.Folder = folderArchive
	default:
		if l.folder(folderID) == nil {
			return failure(instapaper.CodeInvalidFolder)
		}
		b.Folder = folderID
	}
	return nil
}
