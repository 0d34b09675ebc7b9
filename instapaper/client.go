// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package instapaper is a typed client for the Instapaper full API.
package instapaper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/grork/storyvoid/oauth"
)

// DefaultBaseURL is the production API root
const DefaultBaseURL = "https://www.instapaper.com/api/1/"

// Client issues signed requests against the bookmark, folder and account endpoints
type Client struct {
	info    oauth.ClientInformation
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests, fake service)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client signing requests with info
func NewClient(info oauth.ClientInformation, opts ...Option) *Client {
	c := &Client{
		info:    info,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	return c
}

// ClientInformation returns the credentials the client signs with
func (c *Client) ClientInformation() oauth.ClientInformation {
	return c.info
}

// WithClientInformation returns a copy of the client signing with info
func (c *Client) WithClientInformation(info oauth.ClientInformation) *Client {
	clone := *c
	clone.info = info
	return &clone
}

// send performs one signed POST and classifies failures
func (c *Client) send(ctx context.Context, path string, data []oauth.Pair) ([]byte, error) {
	req := oauth.NewRequest(c.info, c.baseURL+path)
	req.Data = data

	start := time.Now()
	body, err := req.Send(ctx, c.http)
	c.logger.Debug("instapaper request", "path", path, "duration", time.Since(start), "error", err)
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

// sendItems performs a request whose response is a JSON array, surfacing an
// error envelope in element 0 as *APIError.
func (c *Client) sendItems(ctx context.Context, path string, data []oauth.Pair) ([]wireItem, error) {
	body, err := c.send(ctx, path, data)
	if err != nil {
		return nil, err
	}

	var items []wireItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if len(items) > 0 && items[0].Type == "error" {
		return nil, &APIError{Code: int(items[0].ErrorCode), Message: items[0].Message}
	}
	return items, nil
}

// sendBookmark performs a request expected to return exactly one bookmark
func (c *Client) sendBookmark(ctx context.Context, path string, data []oauth.Pair) (Bookmark, error) {
	items, err := c.sendItems(ctx, path, data)
	if err != nil {
		return Bookmark{}, err
	}
	for _, item := range items {
		if item.Type == "bookmark" {
			return item.bookmark(), nil
		}
	}
	return Bookmark{}, fmt.Errorf("%s response did not contain a bookmark", path)
}
