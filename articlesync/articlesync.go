// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package articlesync downloads article bodies for offline reading. Each body is
// stored as <Dir>/<bookmark id>.html and the bookmark is updated with what was
// learned from the markup.
package articlesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
)

// TextAPI is the part of *instapaper.Client the syncer calls
type TextAPI interface {
	GetText(ctx context.Context, bookmarkID int64) (string, error)
}

var _ TextAPI = (*instapaper.Client)(nil)

// Config holds configuration for article body sync
type Config struct {
	Dir         string
	Concurrency int // 4
	Logger      *slog.Logger
}

// DefaultConfig returns the default configuration with dir as the article folder
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:         dir,
		Concurrency: 4,
		Logger:      slog.Default(),
	}
}

// Syncer downloads and processes article bodies
type Syncer struct {
	store  *instapaperdb.Store
	api    TextAPI
	config *Config
	logger *slog.Logger
}

// New creates a syncer writing into config.Dir
func New(store *instapaperdb.Store, api TextAPI, config *Config) *Syncer {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, api: api, config: config, logger: logger}
}

func articleFileName(id int64) string {
	return strconv.FormatInt(id, 10) + ".html"
}

// SyncArticle downloads one bookmark's body and records the result. A body the
// service cannot provide marks the bookmark ArticleUnavailable and is not an error.
func (s *Syncer) SyncArticle(ctx context.Context, bookmarkID int64) (instapaperdb.Bookmark, error) {
	b, err := s.store.Bookmark(ctx, bookmarkID)
	if err != nil {
		return instapaperdb.Bookmark{}, err
	}

	body, err := s.api.GetText(ctx, bookmarkID)
	if instapaper.HasCode(err, instapaper.CodeArticleUnavailable) {
		s.logger.Info("article unavailable", "bookmark_id", bookmarkID)
		return s.store.ModifyBookmark(ctx, bookmarkID, func(b *instapaperdb.Bookmark) {
			b.ArticleUnavailable = true
		})
	}
	if err != nil {
		return instapaperdb.Bookmark{}, fmt.Errorf("failed to download article %d: %w", bookmarkID, err)
	}
	if err := ctx.Err(); err != nil {
		return instapaperdb.Bookmark{}, err
	}

	article, err := processArticle(body, b.URL)
	if err != nil {
		return instapaperdb.Bookmark{}, fmt.Errorf("failed to process article %d: %w", bookmarkID, err)
	}

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return instapaperdb.Bookmark{}, fmt.Errorf("failed to create article directory: %w", err)
	}
	name := articleFileName(bookmarkID)
	if err := os.WriteFile(filepath.Join(s.config.Dir, name), article.HTML, 0o644); err != nil {
		return instapaperdb.Bookmark{}, fmt.Errorf("failed to write article %d: %w", bookmarkID, err)
	}

	// only the article fields; progress may have moved during the download
	updated, err := s.store.ModifyBookmark(ctx, bookmarkID, func(b *instapaperdb.Bookmark) {
		b.ContentAvailableLocally = true
		b.ArticleUnavailable = false
		b.LocalFolderRelativePath = name
		b.HasImages = article.FirstImageURL != ""
		b.FirstImageURL = article.FirstImageURL
		b.ExtractedDescription = article.Description
	})
	if err != nil {
		return instapaperdb.Bookmark{}, err
	}
	s.logger.Debug("article downloaded", "bookmark_id", bookmarkID, "bytes", len(article.HTML),
		"has_images", updated.HasImages)
	return updated, nil
}

// SyncAllArticlesNotDownloaded fetches every body not yet held locally, common
// folders first and oldest bookmark first within a folder. Individual failures
// are logged and skipped. It returns how many articles were processed.
func (s *Syncer) SyncAllArticlesNotDownloaded(ctx context.Context) (int, error) {
	folders, err := s.store.ListCurrentFolders(ctx)
	if err != nil {
		return 0, err
	}
	instapaperdb.SortFolders(folders)

	var queue []int64
	for _, f := range folders {
		if f.ID == instapaperdb.Liked.ID() || f.ID == instapaperdb.Orphaned.ID() {
			continue
		}
		bookmarks, err := s.store.ListCurrentBookmarks(ctx, f.ID)
		if err != nil {
			return 0, err
		}
		var ids []int64
		for _, b := range bookmarks {
			if b.ContentAvailableLocally || b.ArticleUnavailable || b.IsProvisional() {
				continue
			}
			ids = append(ids, b.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		queue = append(queue, ids...)
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, id := range queue {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.SyncArticle(gctx, id); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("article sync failed", "bookmark_id", id, "error", err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return int(processed.Load()), err
}

// RemoveFilesForNotPresentArticles deletes downloaded bodies, and any directory
// of the same name, whose bookmark is no longer in the store. It returns the
// removed file names.
func (s *Syncer) RemoveFilesForNotPresentArticles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read article directory: %w", err)
	}

	bookmarks, err := s.store.ListCurrentBookmarks(ctx, 0)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]bool, len(bookmarks))
	for _, b := range bookmarks {
		present[b.ID] = true
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".html") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		id, err := strconv.ParseInt(stem, 10, 64)
		if err != nil || present[id] {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.Dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		if err := os.RemoveAll(filepath.Join(s.config.Dir, stem)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", stem, err)
		}
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		s.logger.Info("removed stale articles", "count", len(removed))
	}
	return removed, nil
}
