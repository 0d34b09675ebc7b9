// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package authenticator signs a user in with xAuth and keeps the resulting
// access token in a CredentialStore.
package authenticator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/oauth"
)

// Credentials is what a Prompt collects from the user
type Credentials struct {
	Username string
	Password string
}

// Prompt asks the user for credentials. attempt starts at 1; message explains
// why the previous attempt failed and is empty on the first one. Returning an
// error abandons sign-in.
type Prompt interface {
	Credentials(ctx context.Context, attempt int, message string) (Credentials, error)
}

// PromptFunc adapts a function to Prompt
type PromptFunc func(ctx context.Context, attempt int, message string) (Credentials, error)

func (f PromptFunc) Credentials(ctx context.Context, attempt int, message string) (Credentials, error) {
	return f(ctx, attempt, message)
}

// ExhaustedError is returned when every attempt was rejected
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("sign-in failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Config holds configuration for the authenticator
type Config struct {
	Consumer      oauth.ClientInformation // consumer key, secret and product; no token
	ClientOptions []instapaper.Option
	MaxAttempts   int // 3
	Logger        *slog.Logger
}

// DefaultConfig returns the default configuration for consumer
func DefaultConfig(consumer oauth.ClientInformation) *Config {
	return &Config{
		Consumer:    consumer,
		MaxAttempts: 3,
		Logger:      slog.Default(),
	}
}

// Authenticator runs the sign-in flow
type Authenticator struct {
	config *Config
	store  CredentialStore
	logger *slog.Logger
}

// New creates an authenticator persisting tokens in store
func New(store CredentialStore, config *Config) *Authenticator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{config: config, store: store, logger: logger}
}

func (a *Authenticator) client(info oauth.ClientInformation) *instapaper.Client {
	return instapaper.NewClient(info, a.config.ClientOptions...)
}

// StoredCredentials returns the saved client information, or nil when nobody
// is signed in.
func (a *Authenticator) StoredCredentials(ctx context.Context) (*oauth.ClientInformation, error) {
	t, err := a.store.Load(ctx)
	if err != nil || t == nil {
		return nil, err
	}
	info := a.config.Consumer.WithToken(t.Token, t.TokenSecret)
	return &info, nil
}

// Authenticate prompts until the service accepts the credentials or
// MaxAttempts is reached. Rejections are reported to the next prompt with a
// friendly message; connectivity failures end the flow immediately.
func (a *Authenticator) Authenticate(ctx context.Context, prompt Prompt) (oauth.ClientInformation, error) {
	var last error
	message := ""
	for attempt := 1; attempt <= a.config.MaxAttempts; attempt++ {
		creds, err := prompt.Credentials(ctx, attempt, message)
		if err != nil {
			return oauth.ClientInformation{}, err
		}

		info, user, err := a.signIn(ctx, creds)
		if err == nil {
			if err := a.store.Save(ctx, StoredToken{
				Username:    user.Username,
				Token:       info.Token,
				TokenSecret: info.TokenSecret,
			}); err != nil {
				return oauth.ClientInformation{}, err
			}
			a.logger.Info("signed in", "user_id", user.UserID, "username", user.Username, "attempt", attempt)
			return info, nil
		}
		if !retryable(err) {
			return oauth.ClientInformation{}, err
		}

		last = err
		message = friendlyMessage(err)
		a.logger.Warn("sign-in rejected", "attempt", attempt, "error", err)
	}
	return oauth.ClientInformation{}, &ExhaustedError{Attempts: a.config.MaxAttempts, Last: last}
}

func (a *Authenticator) signIn(ctx context.Context, creds Credentials) (oauth.ClientInformation, instapaper.User, error) {
	pair, err := a.client(a.config.Consumer).AccessToken(ctx, creds.Username, creds.Password)
	if err != nil {
		return oauth.ClientInformation{}, instapaper.User{}, err
	}
	info := a.config.Consumer.WithToken(pair.Token, pair.TokenSecret)
	user, err := a.client(info).VerifyCredentials(ctx)
	if err != nil {
		return oauth.ClientInformation{}, instapaper.User{}, err
	}
	return info, user, nil
}

func retryable(err error) bool {
	var apiErr *instapaper.APIError
	var validationErr *instapaper.ValidationError
	return errors.As(err, &apiErr) || errors.As(err, &validationErr)
}

func friendlyMessage(err error) string {
	var validationErr *instapaper.ValidationError
	if errors.As(err, &validationErr) {
		return "Enter your Instapaper username to sign in."
	}
	return instapaper.FriendlyMessage(err)
}

// SignOut forgets the stored token
func (a *Authenticator) SignOut(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	a.logger.Info("signed out")
	return nil
}
