// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package fakeservice is an in-process, Instapaper-compatible HTTP service.
// It verifies OAuth 1.0a signatures, issues xAuth tokens and keeps every
// account's folders and bookmarks in memory, which makes it suitable for
// end-to-end tests of the client and the sync engine.
package fakeservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/grork/storyvoid/internal/auth"
	"github.com/grork/storyvoid/oauth"
)

// Config holds the fake service settings
type Config struct {
	// Consumers maps accepted consumer keys to their secrets
	Consumers map[string]string
	// TokenSecret signs issued access tokens
	TokenSecret string
	// TokenLifetime bounds access tokens; zero never expires them
	TokenLifetime time.Duration
	// Accounts stores credentials; in-memory when nil
	Accounts Accounts
	// AutoRegister creates unknown accounts on their first xAuth request
	AutoRegister bool
	// RequestLogging logs every request at debug level
	RequestLogging bool
	Now            func() time.Time
	Logger         *slog.Logger
}

// DefaultConfig returns a config accepting a single well-known consumer
func DefaultConfig() *Config {
	return &Config{
		Consumers:   map[string]string{"storyvoid-test": "storyvoid-test-secret"},
		TokenSecret: "fakeservice-token-secret",
		Now:         time.Now,
	}
}

// Service implements the Instapaper API surface
type Service struct {
	config   Config
	accounts Accounts
	tokens   *TokenIssuer
	logger   *slog.Logger

	mu             sync.Mutex
	libraries      map[int64]*library
	nextBookmarkID int64
	nextFolderID   int64
	faults         map[string][]int
}

// New creates a service. A nil config uses DefaultConfig.
func New(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	accounts := cfg.Accounts
	if accounts == nil {
		accounts = NewMemoryAccounts()
	}

	return &Service{
		config:         cfg,
		accounts:       accounts,
		tokens:         NewTokenIssuer(cfg.TokenSecret, cfg.TokenLifetime),
		logger:         cfg.Logger,
		libraries:      make(map[int64]*library),
		nextBookmarkID: 100000,
		nextFolderID:   5000,
		faults:         make(map[string][]int),
	}
}

// Tokens exposes the access token issuer
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Handler returns the HTTP handler serving /api/1/...
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.config.RequestLogging {
		r.Use(s.requestLogger)
	}

	r.Get("/health", handleHealth)

	r.Route("/api/1", func(r chi.Router) {
		r.Use(s.injectFaults)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(false))
			handle(r, "/oauth/access_token", s.handleAccessToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(true))
			handle(r, "/account/verify_credentials", s.handleVerifyCredentials)

			handle(r, "/bookmarks/list", s.handleListBookmarks)
			handle(r, "/bookmarks/add", s.handleAddBookmark)
			handle(r, "/bookmarks/delete", s.handleDeleteBookmark)
			handle(r, "/bookmarks/move", s.handleMoveBookmark)
			handle(r, "/bookmarks/update_read_progress", s.handleUpdateReadProgress)
			handle(r, "/bookmarks/star", s.bookmarkAction(func(l *library, b *bookmark) error { b.Starred = true; return nil }))
			handle(r, "/bookmarks/unstar", s.bookmarkAction(func(l *library, b *bookmark) error { b.Starred = false; return nil }))
			handle(r, "/bookmarks/archive", s.bookmarkAction(func(l *library, b *bookmark) error { return l.moveTo(b, folderArchive) }))
			handle(r, "/bookmarks/unarchive", s.bookmarkAction(func(l *library, b *bookmark) error { return l.moveTo(b, folderUnread) }))
			handle(r, "/bookmarks/get_text", s.handleGetText)

			handle(r, "/folders/list", s.handleListFolders)
			handle(r, "/folders/add", s.handleAddFolder)
			handle(r, "/folders/delete", s.handleDeleteFolder)
			handle(r, "/folders/set_order", s.handleSetFolderOrder)
		})
	})
	return r
}

// handle registers both verbs; every endpoint accepts GET and POST
func handle(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Get(pattern, h)
	r.Post(pattern, h)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "healthy", "service": "storyvoid-fakeservice"}`))
}

// ConsumerSecret implements oauth.SecretLookup
func (s *Service) ConsumerSecret(consumerKey string) (string, bool) {
	secret, ok := s.config.Consumers[consumerKey]
	return secret, ok
}

// TokenSecret implements oauth.SecretLookup
func (s *Service) TokenSecret(token string) (string, bool) {
	return s.tokens.TokenSecret(token)
}

// authenticate verifies the OAuth signature. Endpoints that need a user reject
// requests signed without a token.
func (s *Service) authenticate(requireToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			consumerKey, token, err := oauth.Verify(r, s)
			if err != nil {
				s.logger.Debug("oauth verification failed", "path", r.URL.Path, "error", err)
				unauthorized(w)
				return
			}

			ctx := auth.SetConsumerKey(r.Context(), consumerKey)
			if token == "" {
				if requireToken {
					unauthorized(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := s.tokens.Validate(token)
			if err != nil {
				unauthorized(w)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				unauthorized(w)
				return
			}
			account, err := s.accounts.ByID(r.Context(), userID)
			if err != nil {
				s.logger.Warn("token for unknown account", "user_id", userID, "error", err)
				unauthorized(w)
				return
			}
			ctx = auth.SetAuthContext(ctx, consumerKey, account.UserID, account.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectFault makes the next times requests to path (e.g. "bookmarks/star")
// fail with code before reaching the handler.
func (s *Service) InjectFault(path string, code int, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < times; i++ {
		s.faults[path] = append(s.faults[path], code)
	}
}

// ClearFaults drops every pending injected fault
func (s *Service) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string][]int)
}

func (s *Service) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/1/")

		s.mu.Lock()
		queued := s.faults[path]
		code := 0
		if len(queued) > 0 {
			code = queued[0]
			s.faults[path] = queued[1:]
		}
		s.mu.Unlock()

		switch code {
		case 0:
			next.ServeHTTP(w, r)
		case http.StatusUnauthorized:
			unauthorized(w)
		default:
			s.logger.Debug("injected fault", "path", path, "code", code)
			writeError(w, failure(code))
		}
	})
}

func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// libraryFor returns the signed-in account's data, creating it on first use.
// The caller must hold s.mu.
func (s *Service) libraryFor(ctx context.Context) (*library, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, errors.New("request has no authenticated user")
	}
	username, _ := auth.GetUsername(ctx)
	return s.libraryLocked(AccountRecord{UserID: userID, Username: username}), nil
}

func (s *Service) libraryLocked(user AccountRecord) *library {
	l, ok := s.libraries[user.UserID]
	if !ok {
		l = newLibrary(user)
		s.libraries[user.UserID] = l
	}
	return l
}

func (s *Service) newBookmarkID() int64 {
	s.nextBookmarkID++
	return s.nextBookmarkID
}

func (s *Service) newFolderID() int64 {
	s.nextFolderID++
	return s.nextFolderID
}
