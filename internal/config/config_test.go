package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.Contains(t, c.DatabasePath, ".storyvoid")
	require.Equal(t, instapaper.DefaultBaseURL, c.APIBaseURL)
	require.Equal(t, 10, c.DefaultBookmarkLimit)
	require.Equal(t, 250, c.UnreadBookmarkLimit)
	require.Equal(t, 5*time.Second, c.DBIdleInterval)
	require.Equal(t, slog.LevelInfo, c.LogLevel)

	// consumer credentials have no default
	require.Error(t, c.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	c := DefaultConfig()
	err := c.ApplyEnv(envMap(map[string]string{
		"STORYVOID_DB":                  "/tmp/sv.db",
		"STORYVOID_API_URL":             "http://localhost:8080/api/1/",
		"INSTAPAPER_CONSUMER_KEY":       "key",
		"INSTAPAPER_CONSUMER_SECRET":    " secret ",
		"STORYVOID_UNREAD_LIMIT":        "500",
		"STORYVOID_ARTICLE_CONCURRENCY": "2",
		"STORYVOID_IDLE_INTERVAL":       "250ms",
		"STORYVOID_LOG_LEVEL":           "debug",
		"STORYVOID_LOG_FORMAT":          "JSON",
	}))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	require.Equal(t, "/tmp/sv.db", c.DatabasePath)
	require.Equal(t, "http://localhost:8080/api/1/", c.APIBaseURL)
	require.Equal(t, "secret", c.ConsumerSecret)
	require.Equal(t, 500, c.UnreadBookmarkLimit)
	require.Equal(t, 250*time.Millisecond, c.DBIdleInterval)
	require.Equal(t, slog.LevelDebug, c.LogLevel)
	require.True(t, c.LogJSON)

	info := c.Consumer()
	require.Equal(t, "key", info.ConsumerKey)
	require.False(t, info.HasToken())
	require.Equal(t, "Storyvoid/0.1", info.UserAgent())

	ec := c.EngineConfig(slog.Default())
	require.Equal(t, 500, ec.PerFolderBookmarkLimits[instapaperdb.UnreadFolderID])
	require.Equal(t, 250*time.Millisecond, c.WatcherConfig(nil).DBIdleInterval)
	require.Equal(t, 2, c.ArticleConfig(nil).Concurrency)
}

func TestApplyEnvReportsEveryInvalidValue(t *testing.T) {
	c := DefaultConfig()
	err := c.ApplyEnv(envMap(map[string]string{
		"STORYVOID_BOOKMARK_LIMIT":   "-1",
		"STORYVOID_IDLE_INTERVAL":    "soon",
		"STORYVOID_LOG_FORMAT":       "xml",
		"STORYVOID_REQUEST_TIMEOUT":  "5s",
		"INSTAPAPER_CONSUMER_SECRET": "",
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "STORYVOID_BOOKMARK_LIMIT")
	require.Contains(t, err.Error(), "STORYVOID_IDLE_INTERVAL")
	require.Contains(t, err.Error(), "STORYVOID_LOG_FORMAT")

	// valid values are still applied, invalid ones leave the default
	require.Equal(t, 5*time.Second, c.RequestTimeout)
	require.Equal(t, 10, c.DefaultBookmarkLimit)
}
