// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated account of a fake-service request.
package auth

import (
	"context"
)

type contextKey string

const (
	consumerKeyKey contextKey = "consumer_key"
	userIDKey      contextKey = "user_id"
	usernameKey    contextKey = "username"
)

// SetConsumerKey sets the OAuth consumer key in the context
func SetConsumerKey(ctx context.Context, consumerKey string) context.Context {
	return context.WithValue(ctx, consumerKeyKey, consumerKey)
}

// GetConsumerKey retrieves the OAuth consumer key from the context
func GetConsumerKey(ctx context.Context) (string, bool) {
	consumerKey, ok := ctx.Value(consumerKeyKey).(string)
	return consumerKey, ok
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

// GetUsername retrieves the username from the context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// SetAuthContext sets the consumer and the signed-in account in one step
func SetAuthContext(ctx context.Context, consumerKey string, userID int64, username string) context.Context {
	ctx = SetConsumerKey(ctx, consumerKey)
	ctx = SetUserID(ctx, userID)
	return context.WithValue(ctx, usernameKey, username)
}
