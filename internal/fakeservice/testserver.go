// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"context"
	"fmt"
	"net/http/httptest"

	"github.com/grork/storyvoid/instapaper"
	"github.com/grork/storyvoid/oauth"
)

// TestServer is a Service listening on a local httptest server
type TestServer struct {
	*Service
	HTTPServer *httptest.Server
}

// NewTestServer starts a service on a random local port
func NewTestServer(config *Config) *TestServer {
	svc := New(config)
	return &TestServer{Service: svc, HTTPServer: httptest.NewServer(svc.Handler())}
}

// Close shuts the listener down
func (ts *TestServer) Close() {
	ts.HTTPServer.Close()
}

// BaseURL is the API root to hand to instapaper.WithBaseURL
func (ts *TestServer) BaseURL() string {
	return ts.HTTPServer.URL + "/api/1/"
}

// ClientInformation returns credentials for the first configured consumer
func (ts *TestServer) ClientInformation() oauth.ClientInformation {
	for key, secret := range ts.config.Consumers {
		return oauth.NewClientInformation(key, secret)
	}
	return oauth.NewClientInformation("", "")
}

// Client returns an API client pointed at the server
func (ts *TestServer) Client(info oauth.ClientInformation, opts ...instapaper.Option) *instapaper.Client {
	opts = append([]instapaper.Option{
		instapaper.WithBaseURL(ts.BaseURL()),
		instapaper.WithHTTPClient(ts.HTTPServer.Client()),
		instapaper.WithLogger(ts.logger),
	}, opts...)
	return instapaper.NewClient(info, opts...)
}

// SignIn creates an account and returns a client holding its access token
func (ts *TestServer) SignIn(ctx context.Context, username, password string) (*Account, *instapaper.Client, error) {
	account, err := ts.CreateAccount(ctx, username, password)
	if err != nil {
		return nil, nil, err
	}

	info := ts.ClientInformation()
	pair, err := ts.Client(info).AccessToken(ctx, username, password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to obtain access token for %q: %w", username, err)
	}
	return account, ts.Client(info.WithToken(pair.Token, pair.TokenSecret)), nil
}
