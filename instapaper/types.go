// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bookmark is a bookmark as reported by the service
type Bookmark struct {
	ID                int64
	URL               string
	Title             string
	Description       string
	Hash              string
	Progress          float64
	ProgressTimestamp int64
	Starred           bool
	Time              int64
	PrivateSource     string
}

// Folder is a user folder as reported by the service
type Folder struct {
	FolderID     string
	Title        string
	Position     int64
	SyncToMobile bool
}

// User is the signed-in account
type User struct {
	UserID   int64
	Username string
}

// TokenPair is the result of an xAuth access token exchange
type TokenPair struct {
	Token       string
	TokenSecret string
}

// FolderPosition is one entry of a folders/set_order request
type FolderPosition struct {
	FolderID string
	Position int64
}

// BookmarkList is the shaped result of bookmarks/list
type BookmarkList struct {
	User      User
	Bookmarks []Bookmark
	DeleteIDs []int64
}

// The service is inconsistent about quoting numbers and booleans, so the wire
// structs accept either representation.

type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	s, ok, err := scalarText(b)
	if err != nil || !ok {
		*i = 0
		return err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("failed to parse integer from %q: %w", s, err)
		}
		v = int64(f)
	}
	*i = flexInt(v)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s, ok, err := scalarText(b)
	if err != nil || !ok {
		*f = 0
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("failed to parse float from %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s, ok, err := scalarText(b)
	if err != nil || !ok {
		*f = false
		return err
	}
	switch strings.ToLower(s) {
	case "1", "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

// scalarText returns the textual value of a JSON string, number or bool.
// ok is false for null or empty input.
func scalarText(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	}
	return string(b), true, nil
}

type wireItem struct {
	Type string `json:"type"`

	// error
	ErrorCode flexInt `json:"error_code"`
	Message   string  `json:"message"`

	// user
	UserID   flexInt `json:"user_id"`
	Username string  `json:"username"`

	// bookmark
	BookmarkID        flexInt   `json:"bookmark_id"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Hash              string    `json:"hash"`
	Progress          flexFloat `json:"progress"`
	ProgressTimestamp flexInt   `json:"progress_timestamp"`
	Starred           flexBool  `json:"starred"`
	Time              flexInt   `json:"time"`
	PrivateSource     string    `json:"private_source"`

	// folder
	FolderID     json.RawMessage `json:"folder_id"`
	Position     flexInt         `json:"position"`
	SyncToMobile flexBool        `json:"sync_to_mobile"`

	// meta
	DeleteIDs json.RawMessage `json:"delete_ids"`
}

func (w wireItem) bookmark() Bookmark {
	return Bookmark{
		ID:                int64(w.BookmarkID),
		URL:               w.URL,
		Title:             w.Title,
		Description:       w.Description,
		Hash:              w.Hash,
		Progress:          float64(w.Progress),
		ProgressTimestamp: int64(w.ProgressTimestamp),
		Starred:           bool(w.Starred),
		Time:              int64(w.Time),
		PrivateSource:     w.PrivateSource,
	}
}

func (w wireItem) folder() Folder {
	return Folder{
		FolderID:     rawID(w.FolderID),
		Title:        w.Title,
		Position:     int64(w.Position),
		SyncToMobile: bool(w.SyncToMobile),
	}
}

func (w wireItem) user() User {
	return User{UserID: int64(w.UserID), Username: w.Username}
}

// rawID renders a folder id that may arrive as a number or a string
func rawID(raw json.RawMessage) string {
	s, ok, err := scalarText(raw)
	if err != nil || !ok {
		return ""
	}
	return s
}

// parseDeleteIDs splits the comma separated delete_ids value of a list meta object
func parseDeleteIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse delete id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
