// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grork/storyvoid/instapaper"
)

type wireError struct {
	Type      string `json:"type"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

type wireUser struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type wireMeta struct {
	Type      string `json:"type"`
	DeleteIDs string `json:"delete_ids"`
}

type wireBookmark struct {
	Type              string  `json:"type"`
	BookmarkID        int64   `json:"bookmark_id"`
	URL               string  `json:"url"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Hash              string  `json:"hash"`
	Progress          float64 `json:"progress"`
	ProgressTimestamp int64   `json:"progress_timestamp"`
	Starred           string  `json:"starred"`
	Time              int64   `json:"time"`
	PrivateSource     string  `json:"private_source"`
}

type wireFolder struct {
	Type         string `json:"type"`
	FolderID     int64  `json:"folder_id"`
	Title        string `json:"title"`
	Position     int64  `json:"position"`
	SyncToMobile int    `json:"sync_to_mobile"`
}

func bookmarkItem(b *bookmark) wireBookmark {
	starred := "0"
	if b.Starred {
		starred = "1"
	}
	return wireBookmark{
		Type:              "bookmark",
		BookmarkID:        b.ID,
		URL:               b.URL,
		Title:             b.Title,
		Description:       b.Description,
		Hash:              b.hash(),
		Progress:          b.Progress,
		ProgressTimestamp: b.ProgressTimestamp,
		Starred:           starred,
		Time:              b.Time,
		PrivateSource:     b.PrivateSource,
	}
}

func folderItem(f *folder) wireFolder {
	syncToMobile := 0
	if f.SyncToMobile {
		syncToMobile = 1
	}
	return wireFolder{Type: "folder", FolderID: f.ID, Title: f.Title, Position: f.Position, SyncToMobile: syncToMobile}
}

func userItem(user AccountRecord) wireUser {
	return wireUser{Type: "user", UserID: user.UserID, Username: user.Username}
}

func writeItems(w http.ResponseWriter, items ...any) {
	if items == nil {
		items = []any{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func writeError(w http.ResponseWriter, err error) {
	var svcErr *serviceError
	if !errors.As(err, &svcErr) {
		svcErr = failure(instapaper.CodeServiceError)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode([]wireError{{Type: "error", ErrorCode: svcErr.Code, Message: svcErr.Message}})
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func formInt(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get(key)), 10, 64)
	return v, err == nil
}

func (s *Service) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	if r.Form.Get("x_auth_mode") != "client_auth" {
		unauthorized(w)
		return
	}
	username := r.Form.Get("x_auth_username")
	password := r.Form.Get("x_auth_password")

	account, err := s.accounts.Authenticate(r.Context(), username, password)
	if errors.Is(err, ErrInvalidCredentials) && s.config.AutoRegister {
		if _, lookupErr := s.accounts.ByUsername(r.Context(), username); errors.Is(lookupErr, ErrAccountNotFound) {
			account, err = s.accounts.Create(r.Context(), username, password)
		}
	}
	if err != nil {
		s.logger.Debug("xauth rejected", "username", username, "error", err)
		unauthorized(w)
		return
	}

	token, secret, err := s.tokens.Issue(account.UserID, account.Username)
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", account.UserID, "error", err)
		writeError(w, err)
		return
	}
	s.logger.Info("access token issued", "user_id", account.UserID, "username", account.Username)

	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, url.Values{
		"oauth_token":        {token},
		"oauth_token_secret": {secret},
	}.Encode())
}

func (s *Service) handleVerifyCredentials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeItems(w, userItem(l.user))
}

func (s *Service) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	folderKey := r.Form.Get("folder_id")
	if folderKey == "" {
		folderKey = folderUnread
	}
	if !l.validListFolder(folderKey) {
		writeError(w, failure(instapaper.CodeInvalidFolder))
		return
	}
	limit, _ := formInt(r, "limit")

	changed, deleteIDs := l.list(folderKey, int(limit), parseHaves(r.Form.Get("have")))
	ids := make([]string, 0, len(deleteIDs))
	for _, id := range deleteIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}

	items := []any{wireMeta{Type: "meta", DeleteIDs: strings.Join(ids, ",")}, userItem(l.user)}
	for _, b := range changed {
		items = append(items, bookmarkItem(b))
	}
	writeItems(w, items...)
}

func (s *Service) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := s.addBookmarkLocked(l, instapaper.AddParams{
		URL:         r.Form.Get("url"),
		Title:       r.Form.Get("title"),
		Description: r.Form.Get("description"),
		FolderID:    r.Form.Get("folder_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeItems(w, bookmarkItem(b))
}

// addBookmarkLocked adds a url, or brings an existing one back to the top of
// the destination folder.
func (s *Service) addBookmarkLocked(l *library, params instapaper.AddParams) (*bookmark, error) {
	u, err := url.Parse(strings.TrimSpace(params.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, failure(1240)
	}

	b := l.bookmarkByURL(u.String())
	if b == nil {
		title := params.Title
		if title == "" {
			title = u.Host
		}
		b = &bookmark{
			ID:          s.newBookmarkID(),
			URL:         u.String(),
			Title:       title,
			Description: params.Description,
			Folder:      folderUnread,
		}
	} else {
		if params.Title != "" {
			b.Title = params.Title
		}
		if params.Description != "" {
			b.Description = params.Description
		}
	}
	if err := l.moveTo(b, params.FolderID); err != nil {
		return nil, err
	}
	b.Time = s.config.Now().Unix()
	l.bookmarks[b.ID] = b
	return b, nil
}

func (s *Service) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, b, err := s.requestBookmark(r)
	if err != nil {
		writeError(w, err)
		return
	}
	delete(l.bookmarks, b.ID)
	writeItems(w)
}

func (s *Service) handleMoveBookmark(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, b, err := s.requestBookmark(r)
	if err != nil {
		writeError(w, err)
		return
	}
	folderID := r.Form.Get("folder_id")
	if l.folder(folderID) == nil {
		writeError(w, failure(instapaper.CodeInvalidFolder))
		return
	}
	if err := l.moveTo(b, folderID); err != nil {
		writeError(w, err)
		return
	}
	writeItems(w, bookmarkItem(b))
}

func (s *Service) handleUpdateReadProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, b, err := s.requestBookmark(r)
	if err != nil {
		writeError(w, err)
		return
	}
	progress, err := strconv.ParseFloat(r.Form.Get("progress"), 64)
	if err != nil || progress < 0 || progress > 1 {
		writeError(w, failure(instapaper.CodeUnexpected))
		return
	}
	timestamp, ok := formInt(r, "progress_timestamp")
	if !ok {
		writeError(w, failure(instapaper.CodeUnexpected))
		return
	}
	l.setProgress(b, progress, timestamp)
	writeItems(w, bookmarkItem(b))
}

func (s *Service) bookmarkAction(apply func(l *library, b *bookmark) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		l, b, err := s.requestBookmark(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := apply(l, b); err != nil {
			writeError(w, err)
			return
		}
		writeItems(w, bookmarkItem(b))
	}
}

func (s *Service) handleGetText(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, b, err := s.requestBookmark(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if b.Unavailable {
		writeError(w, failure(instapaper.CodeArticleUnavailable))
		return
	}

	body := b.Text
	if body == "" {
		body = "<html><head><title>" + html.EscapeString(b.Title) + "</title></head><body>" +
			"<h1>" + html.EscapeString(b.Title) + "</h1>" +
			"<p>" + html.EscapeString(b.Description) + "</p></body></html>"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (s *Service) handleListFolders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeFolders(w, l)
}

func (s *Service) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := l.addFolder(s.newFolderID(), r.Form.Get("title"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeItems(w, folderItem(f))
}

func (s *Service) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := l.deleteFolder(r.Form.Get("folder_id")); err != nil {
		writeError(w, err)
		return
	}
	writeItems(w)
}

func (s *Service) handleSetFolderOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.libraryFor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := l.setOrder(r.Form.Get("order")); err != nil {
		writeError(w, err)
		return
	}
	writeFolders(w, l)
}

func writeFolders(w http.ResponseWriter, l *library) {
	folders := l.sortedFolders()
	items := make([]any, 0, len(folders))
	for _, f := range folders {
		items = append(items, folderItem(f))
	}
	writeItems(w, items...)
}

// requestBookmark resolves the bookmark_id parameter. The caller must hold s.mu.
func (s *Service) requestBookmark(r *http.Request) (*library, *bookmark, error) {
	l, err := s.libraryFor(r.Context())
	if err != nil {
		return nil, nil, err
	}
	id, ok := formInt(r, "bookmark_id")
	if !ok {
		return nil, nil, failure(instapaper.CodeInvalidBookmark)
	}
	b, err := l.bookmark(id)
	if err != nil {
		return nil, nil, err
	}
	return l, b, nil
}
