// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grork/storyvoid/articlesync"
	"github.com/grork/storyvoid/authenticator"
	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/instapapersync"
	"github.com/grork/storyvoid/internal/config"
)

const usage = `storyvoid - offline Instapaper reader

Usage:
  storyvoid [flags] <command> [arguments]

Commands:
  login                      sign in and remember the access token
  logout                     forget the access token
  sync [-folder F] [-only]   synchronize folders and bookmarks
  folders                    list folders
  list [folder]              list bookmarks (default Home)
  add [-folder F] <url> [title]
  move <bookmark> <folder>
  like <bookmark>
  unlike <bookmark>
  delete <bookmark>
  progress <bookmark> <0..1>
  mkfolder <title>
  rmfolder <folder>
  articles                   download article bodies not yet stored
  cleanup                    remove article files of deleted bookmarks
  watch                      sync automatically until interrupted

Flags:
`

// app carries what every command needs
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	store  *instapaperdb.Store
	auth   *authenticator.Authenticator
	creds  *authenticator.SQLiteCredentialStore
}

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database file")
	flag.StringVar(&cfg.ArticlesDir, "articles", cfg.ArticlesDir, "directory for downloaded article bodies")
	flag.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Instapaper API base URL")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	logger := cfg.NewLogger()
	// Ensure packages using slog.Default() share the same handler + level.
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open local database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer a.db.Close()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", cfg.DatabasePath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// writes are serialized by the store
	db.SetMaxOpenConns(1)

	store, err := instapaperdb.Open(ctx, db, cfg.StoreConfig(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	creds, err := authenticator.NewSQLiteCredentialStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	authConfig := authenticator.DefaultConfig(cfg.Consumer())
	authConfig.ClientOptions = clientOptions(cfg, logger)
	authConfig.Logger = logger

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  store,
		auth:   authenticator.New(creds, authConfig),
		creds:  creds,
	}, nil
}

func clientOptions(cfg *config.Config, logger *slog.Logger) []instapaper.Option {
	return []instapaper.Option{
		instapaper.WithBaseURL(cfg.APIBaseURL),
		instapaper.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		instapaper.WithLogger(logger),
	}
}

// client returns an API client for the signed-in user
func (a *app) client(ctx context.Context) (*instapaper.Client, error) {
	info, err := a.auth.StoredCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("not signed in; run `storyvoid login` first")
	}
	return instapaper.NewClient(*info, clientOptions(a.cfg, a.logger)...), nil
}

func (a *app) engine(client *instapaper.Client) *instapapersync.Engine {
	return instapapersync.New(a.store, client, a.cfg.EngineConfig(a.logger))
}

func (a *app) articles(client *instapaper.Client) *articlesync.Syncer {
	return articlesync.New(a.store, client, a.cfg.ArticleConfig(a.logger))
}

// describe turns service failures into the text shown to the user
func describe(err error) string {
	var apiErr *instapaper.APIError
	if errors.As(err, &apiErr) || instapaper.IsTransport(err) {
		return instapaper.FriendlyMessage(err)
	}
	return err.Error()
}
