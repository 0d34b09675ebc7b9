// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package config holds the settings of the storyvoid command line client
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grork/storyvoid/articlesync"
	"github.com/grork/storyvoid/autosync"
	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/instapapersync"
	"github.com/grork/storyvoid/oauth"
)

// Config holds all configuration for the storyvoid client
type Config struct {
	// Storage
	DatabasePath string // ~/.storyvoid/storyvoid.db
	ArticlesDir  string // ~/.storyvoid/articles

	// Service connection
	APIBaseURL     string
	ConsumerKey    string
	ConsumerSecret string
	ProductName    string
	ProductVersion string
	RequestTimeout time.Duration

	// Sync settings
	DefaultBookmarkLimit int
	UnreadBookmarkLimit  int
	RateLimitRetries     int
	ArticleConcurrency   int

	// Auto-sync timing
	DBIdleInterval                time.Duration
	MinTimeInBackgroundBeforeSync time.Duration
	MinTimeOfflineBeforeSync      time.Duration
	MinTimeOfflineBeforeFullSync  time.Duration

	// Logging
	LogLevel slog.Level
	LogJSON  bool
}

// DefaultConfig returns a configuration rooted in the user's home directory
func DefaultConfig() *Config {
	root := ".storyvoid"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".storyvoid")
	}
	return &Config{
		DatabasePath: filepath.Join(root, "storyvoid.db"),
		ArticlesDir:  filepath.Join(root, "articles"),

		APIBaseURL:     instapaper.DefaultBaseURL,
		ProductName:    "Storyvoid",
		ProductVersion: "0.1",
		RequestTimeout: 30 * time.Second,

		DefaultBookmarkLimit: 10,
		UnreadBookmarkLimit:  250,
		RateLimitRetries:     3,
		ArticleConcurrency:   4,

		DBIdleInterval:                5 * time.Second,
		MinTimeInBackgroundBeforeSync: 60 * time.Second,
		MinTimeOfflineBeforeSync:      1 * time.Hour,
		MinTimeOfflineBeforeFullSync:  60 * time.Second,

		LogLevel: slog.LevelInfo,
	}
}

// ApplyEnv overrides fields from STORYVOID_* and INSTAPAPER_CONSUMER_*
// variables. Unset variables leave the field alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []string
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("%s=%q is not a non-negative integer", name, v))
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("%s=%q is not a duration", name, v))
			return
		}
		*dst = d
	}

	str("STORYVOID_DB", &c.DatabasePath)
	str("STORYVOID_ARTICLES_DIR", &c.ArticlesDir)
	str("STORYVOID_API_URL", &c.APIBaseURL)
	str("INSTAPAPER_CONSUMER_KEY", &c.ConsumerKey)
	str("INSTAPAPER_CONSUMER_SECRET", &c.ConsumerSecret)
	str("STORYVOID_PRODUCT_NAME", &c.ProductName)
	str("STORYVOID_PRODUCT_VERSION", &c.ProductVersion)
	dur("STORYVOID_REQUEST_TIMEOUT", &c.RequestTimeout)

	num("STORYVOID_BOOKMARK_LIMIT", &c.DefaultBookmarkLimit)
	num("STORYVOID_UNREAD_LIMIT", &c.UnreadBookmarkLimit)
	num("STORYVOID_RATE_LIMIT_RETRIES", &c.RateLimitRetries)
	num("STORYVOID_ARTICLE_CONCURRENCY", &c.ArticleConcurrency)

	dur("STORYVOID_IDLE_INTERVAL", &c.DBIdleInterval)
	dur("STORYVOID_BACKGROUND_SYNC_AFTER", &c.MinTimeInBackgroundBeforeSync)
	dur("STORYVOID_OFFLINE_SYNC_AFTER", &c.MinTimeOfflineBeforeSync)
	dur("STORYVOID_OFFLINE_FULL_SYNC_AFTER", &c.MinTimeOfflineBeforeFullSync)

	if v := strings.TrimSpace(getenv("STORYVOID_LOG_LEVEL")); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Sprintf("STORYVOID_LOG_LEVEL=%q: %v", v, err))
		}
	}
	if v := strings.TrimSpace(getenv("STORYVOID_LOG_FORMAT")); v != "" {
		switch strings.ToLower(v) {
		case "json":
			c.LogJSON = true
		case "text":
			c.LogJSON = false
		default:
			errs = append(errs, fmt.Sprintf("STORYVOID_LOG_FORMAT=%q must be text or json", v))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports settings the client cannot run with
func (c *Config) Validate() error {
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return fmt.Errorf("INSTAPAPER_CONSUMER_KEY and INSTAPAPER_CONSUMER_SECRET are required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.ArticleConcurrency < 1 {
		return fmt.Errorf("article concurrency must be at least 1")
	}
	return nil
}

// NewLogger builds the process logger
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Consumer returns the application's OAuth identity, without a user token
func (c *Config) Consumer() oauth.ClientInformation {
	return oauth.NewClientInformation(c.ConsumerKey, c.ConsumerSecret).
		WithProduct(c.ProductName, c.ProductVersion)
}

// StoreConfig returns the local store settings
func (c *Config) StoreConfig(logger *slog.Logger) *instapaperdb.Config {
	sc := instapaperdb.DefaultConfig()
	sc.Logger = logger
	return sc
}

// EngineConfig returns the sync engine settings
func (c *Config) EngineConfig(logger *slog.Logger) *instapapersync.Config {
	ec := instapapersync.DefaultConfig()
	ec.DefaultBookmarkLimit = c.DefaultBookmarkLimit
	ec.PerFolderBookmarkLimits = map[string]int{instapaperdb.UnreadFolderID: c.UnreadBookmarkLimit}
	ec.RateLimitRetries = c.RateLimitRetries
	ec.Logger = logger
	return ec
}

// WatcherConfig returns the auto-sync settings
func (c *Config) WatcherConfig(logger *slog.Logger) *autosync.Config {
	wc := autosync.DefaultConfig()
	wc.DBIdleInterval = c.DBIdleInterval
	wc.MinTimeInBackgroundBeforeSync = c.MinTimeInBackgroundBeforeSync
	wc.MinTimeOfflineBeforeSync = c.MinTimeOfflineBeforeSync
	wc.MinTimeOfflineBeforeFullSync = c.MinTimeOfflineBeforeFullSync
	wc.Logger = logger
	return wc
}

// ArticleConfig returns the article download settings
func (c *Config) ArticleConfig(logger *slog.Logger) *articlesync.Config {
	ac := articlesync.DefaultConfig(c.ArticlesDir)
	ac.Concurrency = c.ArticleConcurrency
	ac.Logger = logger
	return ac
}
