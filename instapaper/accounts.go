// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"context"
	"fmt"
	"net/url"

	"github.com/grork/storyvoid/oauth"
)

// AccessToken exchanges a username and password for an OAuth token (xAuth)
func (c *Client) AccessToken(ctx context.Context, username, password string) (TokenPair, error) {
	if username == "" {
		return TokenPair{}, &ValidationError{Field: "username", Reason: "required"}
	}

	body, err := c.send(ctx, "oauth/access_token", []oauth.Pair{
		{Key: "x_auth_username", Value: username},
		{Key: "x_auth_password", Value: password},
		{Key: "x_auth_mode", Value: "client_auth"},
	})
	if err != nil {
		return TokenPair{}, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to parse access token response: %w", err)
	}
	pair := TokenPair{
		Token:       values.Get("oauth_token"),
		TokenSecret: values.Get("oauth_token_secret"),
	}
	if pair.Token == "" || pair.TokenSecret == "" {
		if apiErr := parseErrorEnvelope(body); apiErr != nil {
			return TokenPair{}, apiErr
		}
		return TokenPair{}, fmt.Errorf("access token response missing token")
	}
	return pair, nil
}

// VerifyCredentials returns the user the client's token belongs to
func (c *Client) VerifyCredentials(ctx context.Context) (User, error) {
	items, err := c.sendItems(ctx, "account/verify_credentials", nil)
	if err != nil {
		return User{}, err
	}
	for _, item := range items {
		if item.Type == "user" {
			return item.user(), nil
		}
	}
	return User{}, fmt.Errorf("verify_credentials response did not contain a user")
}
