// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/grork/storyvoid/authenticator"
	"github.com/grork/storyvoid/autosync"
	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/instapaperdb"
	"github.com/grork/storyvoid/instapapersync"
)

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx)
	case "logout":
		return a.auth.SignOut(ctx)
	case "sync":
		return a.sync(ctx, args)
	case "folders":
		return a.folders(ctx)
	case "list":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "move":
		return a.move(ctx, args)
	case "like", "unlike":
		return a.like(ctx, args, command == "like")
	case "delete":
		return a.delete(ctx, args)
	case "progress":
		return a.progress(ctx, args)
	case "mkfolder":
		return a.mkfolder(ctx, args)
	case "rmfolder":
		return a.rmfolder(ctx, args)
	case "articles":
		return a.downloadArticles(ctx)
	case "cleanup":
		return a.cleanup(ctx)
	case "watch":
		return a.watch(ctx, args)
	}
	return errUsage
}

func (a *app) login(ctx context.Context) error {
	in := bufio.NewReader(os.Stdin)
	readLine := func(label string) (string, error) {
		fmt.Print(label)
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	prompt := authenticator.PromptFunc(func(ctx context.Context, attempt int, message string) (authenticator.Credentials, error) {
		if message != "" {
			fmt.Println(message)
		}
		username, err := readLine("Username: ")
		if err != nil {
			return authenticator.Credentials{}, err
		}
		password, err := readLine("Password (leave blank if you don't have one): ")
		if err != nil {
			return authenticator.Credentials{}, err
		}
		return authenticator.Credentials{Username: strings.TrimSpace(username), Password: password}, nil
	})

	if _, err := a.auth.Authenticate(ctx, prompt); err != nil {
		return err
	}
	saved, err := a.creds.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", saved.Username)
	return nil
}

func (a *app) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	folder := fs.String("folder", "", "sync this folder first")
	only := fs.Bool("only", false, "sync only the folder given with -folder")
	keepOrphans := fs.Bool("keep-orphans", false, "do not remove bookmarks missing from every folder")
	bodies := fs.Bool("articles", false, "download article bodies afterwards")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	opts := instapapersync.FullSync
	opts.SkipOrphanCleanup = *keepOrphans
	if *folder != "" {
		f, err := a.resolveFolder(ctx, *folder)
		if err != nil {
			return err
		}
		opts.Folder = f.ID
		opts.SingleFolder = *only
	} else if *only {
		return errUsage
	}

	return a.runSync(ctx, client, opts, *bodies)
}

// runSync runs one pass, prints its summary and optionally fetches bodies
func (a *app) runSync(ctx context.Context, client *instapaper.Client, opts instapapersync.Options, bodies bool) error {
	engine := a.engine(client)
	sub := engine.SubscribeStatus(func(s instapapersync.Status) {
		switch s.Operation {
		case instapapersync.StatusBookmarkFolder:
			fmt.Printf("  syncing %s\n", s.Title)
		case instapapersync.StatusBookmarksListed:
			fmt.Printf("  lists fetched in %s\n", s.Duration.Round(time.Millisecond))
		}
	})
	defer sub.Cancel()

	report, err := engine.Sync(ctx, opts)
	if report != nil {
		for _, f := range report.Failures {
			fmt.Printf("  skipped %s %d: %s\n", f.Operation, f.EntityID, describe(f.Err))
		}
		fmt.Printf("Sync %s: %d folders, %d bookmarks listed, %d skipped\n",
			report.RunID, report.FoldersSynced, report.BookmarksListed, len(report.Failures))
	}
	if err != nil {
		return err
	}
	if bodies {
		return a.downloadWith(ctx, client)
	}
	return nil
}

func (a *app) folders(ctx context.Context) error {
	folders, err := a.store.ListCurrentFolders(ctx)
	if err != nil {
		return err
	}
	instapaperdb.SortFolders(folders)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tFOLDER ID\tBOOKMARKS\t")
	for _, f := range folders {
		bookmarks, err := a.store.ListCurrentBookmarks(ctx, f.ID)
		if err != nil {
			return err
		}
		folderID := f.FolderID
		if folderID == "" {
			folderID = "(pending)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t\n", f.Title, folderID, len(bookmarks))
	}
	return w.Flush()
}

func (a *app) list(ctx context.Context, args []string) error {
	name := "home"
	if len(args) > 0 {
		name = strings.Join(args, " ")
	}
	f, err := a.resolveFolder(ctx, name)
	if err != nil {
		return err
	}
	bookmarks, err := a.store.ListCurrentBookmarks(ctx, f.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREAD\t\tTITLE\tURL\t")
	for _, b := range bookmarks {
		flags := ""
		if b.Starred {
			flags += "*"
		}
		if b.ContentAvailableLocally {
			flags += "o"
		}
		fmt.Fprintf(w, "%d\t%3.0f%%\t%s\t%s\t%s\t\n", b.ID, b.Progress*100, flags, b.Title, b.URL)
	}
	return w.Flush()
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	folder := fs.String("folder", "", "destination folder (default Home)")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}

	b := instapaperdb.Bookmark{URL: fs.Arg(0), Title: strings.Join(fs.Args()[1:], " ")}
	if *folder != "" {
		f, err := a.resolveFolder(ctx, *folder)
		if err != nil {
			return err
		}
		b.FolderDBID = f.ID
	}
	added, err := a.store.AddBookmark(ctx, b, instapaperdb.Local)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d (pending sync)\n", added.ID)
	return nil
}

func (a *app) move(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	f, err := a.resolveFolder(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	_, err = a.store.MoveBookmark(ctx, id, f.ID, instapaperdb.Local)
	return err
}

func (a *app) like(ctx context.Context, args []string, liked bool) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if liked {
		_, err = a.store.LikeBookmark(ctx, id, instapaperdb.Local)
	} else {
		_, err = a.store.UnlikeBookmark(ctx, id, instapaperdb.Local)
	}
	return err
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return a.store.RemoveBookmark(ctx, id, instapaperdb.Local)
}

func (a *app) progress(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	p, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid progress %q", args[1])
	}
	_, err = a.store.UpdateReadProgress(ctx, id, p)
	return err
}

func (a *app) mkfolder(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	_, err := a.store.AddFolder(ctx, instapaperdb.Folder{Title: strings.Join(args, " ")}, instapaperdb.Local)
	return err
}

func (a *app) rmfolder(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	f, err := a.resolveFolder(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return a.store.RemoveFolder(ctx, f.ID, instapaperdb.Local)
}

func (a *app) downloadArticles(ctx context.Context) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	return a.downloadWith(ctx, client)
}

func (a *app) downloadWith(ctx context.Context, client *instapaper.Client) error {
	n, err := a.articles(client).SyncAllArticlesNotDownloaded(ctx)
	fmt.Printf("Processed %d articles\n", n)
	return err
}

func (a *app) cleanup(ctx context.Context) error {
	// the syncer only needs the API for downloads
	removed, err := a.articles(nil).RemoveFilesForNotPresentArticles(ctx)
	if err != nil {
		return err
	}
	for _, name := range removed {
		fmt.Println("removed", name)
	}
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", 15*time.Minute, "sync at least this often; 0 disables")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	watcher := autosync.New(a.store, a.cfg.WatcherConfig(a.logger))
	defer watcher.Close()

	// one pending request is enough; passes are serialized
	requests := make(chan autosync.SyncNeeded, 1)
	sub := watcher.SubscribeSyncNeeded(func(e autosync.SyncNeeded) {
		select {
		case requests <- e:
		default:
		}
	})
	defer sub.Cancel()

	watcher.Request(autosync.ReasonLaunched, true)

	var tick <-chan time.Time
	if *interval > 0 {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			watcher.Request(autosync.ReasonTimer, false)
		case e := <-requests:
			a.logger.Info("sync requested", "reason", e.Reason, "article_bodies", e.ShouldSyncArticleBodies)
			// changes made by the pass itself must not schedule another one
			watcher.PauseWatching()
			err := a.runSync(ctx, client, instapapersync.FullSync, e.ShouldSyncArticleBodies)
			watcher.ResumeWatching()

			switch {
			case err == nil:
				watcher.NetworkStatusChanged(true)
			case errors.Is(err, context.Canceled):
				return nil
			case instapaper.IsTransport(err):
				watcher.NetworkStatusChanged(false)
				fmt.Fprintln(os.Stderr, describe(err))
			case instapaper.IsAuthFailure(err):
				return fmt.Errorf("access token rejected; run `storyvoid login` again: %w", err)
			default:
				fmt.Fprintln(os.Stderr, "sync failed:", describe(err))
			}
		}
	}
}

// resolveFolder finds a folder by title, common name or service folder id
func (a *app) resolveFolder(ctx context.Context, name string) (instapaperdb.Folder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "home", instapaperdb.UnreadFolderID:
		return a.store.Folder(ctx, instapaperdb.Unread.ID())
	case "liked", instapaperdb.LikedFolderID:
		return a.store.Folder(ctx, instapaperdb.Liked.ID())
	case instapaperdb.ArchiveFolderID:
		return a.store.Folder(ctx, instapaperdb.Archive.ID())
	case instapaperdb.OrphanedFolderID:
		return a.store.Folder(ctx, instapaperdb.Orphaned.ID())
	}

	folders, err := a.store.ListCurrentFolders(ctx)
	if err != nil {
		return instapaperdb.Folder{}, err
	}
	for _, f := range folders {
		if strings.EqualFold(f.Title, name) || (f.FolderID != "" && f.FolderID == name) {
			return f, nil
		}
	}
	return instapaperdb.Folder{}, fmt.Errorf("no folder named %q", name)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bookmark id %q", s)
	}
	return id, nil
}
