// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaperdb

// CommonFolder is one of the built-in folders. Their local ids are fixed for the
// lifetime of every database.
type CommonFolder int64

const (
	Unread   CommonFolder = 1
	Liked    CommonFolder = 2
	Archive  CommonFolder = 3
	Orphaned CommonFolder = 4
)

// Server-side identifiers of the common folders
const (
	UnreadFolderID   = "unread"
	LikedFolderID    = "starred"
	ArchiveFolderID  = "archive"
	OrphanedFolderID = "orphaned"
)

// ID returns the local database id of the folder
func (c CommonFolder) ID() int64 { return int64(c) }

// FolderID returns the service identifier of the folder
func (c CommonFolder) FolderID() string {
	switch c {
	case Unread:
		return UnreadFolderID
	case Liked:
		return LikedFolderID
	case Archive:
		return ArchiveFolderID
	case Orphaned:
		return OrphanedFolderID
	}
	return ""
}

func (c CommonFolder) title() string {
	switch c {
	case Unread:
		return "Home"
	case Liked:
		return "Liked"
	case Archive:
		return "Archive"
	case Orphaned:
		return "Orphaned"
	}
	return ""
}

// CommonFolders lists the built-in folders in id order
var CommonFolders = []CommonFolder{Unread, Liked, Archive, Orphaned}

// IsCommonFolderID reports whether dbid is a built-in folder
func IsCommonFolderID(dbid int64) bool {
	return dbid >= int64(Unread) && dbid <= int64(Orphaned)
}

// IsCommonServerFolderID reports whether folderID names a built-in folder
func IsCommonServerFolderID(folderID string) bool {
	switch folderID {
	case UnreadFolderID, LikedFolderID, ArchiveFolderID, OrphanedFolderID:
		return true
	}
	return false
}

// Origin says whether a mutation was made locally or is already confirmed by the
// service. Only Local mutations are recorded as pending edits.
type Origin int

const (
	Local Origin = iota
	Server
)

func (o Origin) String() string {
	if o == Server {
		return "server"
	}
	return "local"
}

// Folder is a local folder. FolderID is empty until the folder exists on the service.
type Folder struct {
	ID        int64
	FolderID  string
	Title     string
	Position  int64
	LocalOnly bool
}

// IsCommon reports whether the folder is built in
func (f Folder) IsCommon() bool { return IsCommonFolderID(f.ID) }

// Bookmark is a local bookmark. Bookmarks added locally carry a negative
// provisional id until the service assigns one.
type Bookmark struct {
	ID                      int64
	FolderDBID              int64
	URL                     string
	Title                   string
	Description             string
	ExtractedDescription    string
	Hash                    string
	Progress                float64
	ProgressTimestamp       int64
	Time                    int64
	Starred                 bool
	ContentAvailableLocally bool
	HasImages               bool
	FirstImageURL           string
	ArticleUnavailable      bool
	LocalFolderRelativePath string
}

// IsProvisional reports whether the bookmark has not been confirmed by the service
func (b Bookmark) IsProvisional() bool { return b.ID < 0 }

// EditKind tags an entry of the pending-edit log
type EditKind string

const (
	EditFolderAdd        EditKind = "folder_add"
	EditFolderUpdate     EditKind = "folder_update"
	EditFolderDelete     EditKind = "folder_delete"
	EditBookmarkAdd      EditKind = "bookmark_add"
	EditBookmarkDelete   EditKind = "bookmark_delete"
	EditBookmarkMove     EditKind = "bookmark_move"
	EditBookmarkLike     EditKind = "bookmark_like"
	EditBookmarkUnlike   EditKind = "bookmark_unlike"
	EditBookmarkProgress EditKind = "bookmark_progress"
)

// PendingEdit is a local mutation the service has not acknowledged yet.
// EntityID is the folder's local id for folder edits and the bookmark id otherwise.
type PendingEdit struct {
	Seq      int64
	Kind     EditKind
	EntityID int64

	Title                 string  // folder add/delete, bookmark add
	URL                   string  // bookmark add
	Description           string  // bookmark add
	FolderID              string  // folder update/delete: server id of the folder
	Position              int64   // folder update
	SourceFolderDBID      int64   // bookmark move/delete
	DestinationFolderDBID int64   // bookmark move
	Progress              float64 // bookmark progress
	ProgressTimestamp     int64   // bookmark progress
}

// IsFolderEdit reports whether the edit targets a folder
func (e PendingEdit) IsFolderEdit() bool {
	switch e.Kind {
	case EditFolderAdd, EditFolderUpdate, EditFolderDelete:
		return true
	}
	return false
}
