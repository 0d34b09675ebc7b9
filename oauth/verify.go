// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/hmac"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SecretLookup resolves the secrets needed to re-create a signature server side
type SecretLookup interface {
	ConsumerSecret(consumerKey string) (string, bool)
	TokenSecret(token string) (string, bool)
}

// ParseAuthorizationHeader splits an "OAuth k="v", ..." header into decoded pairs
func ParseAuthorizationHeader(header string) ([]Pair, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "OAuth ")
	if !ok {
		return nil, ErrMissingAuthorization
	}

	var pairs []Pair
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("malformed authorization parameter %q", part)
		}
		value = strings.Trim(value, `"`)

		k, err := url.PathUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode authorization key %q: %w", key, err)
		}
		v, err := url.PathUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode authorization value for %q: %w", k, err)
		}
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	return pairs, nil
}

// Verify checks the OAuth signature of an incoming request against the query and
// form parameters it carries. It returns the consumer key and token (possibly empty)
// the request was signed with.
func Verify(r *http.Request, lookup SecretLookup) (consumerKey, token string, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", ErrMissingAuthorization
	}
	authParams, err := ParseAuthorizationHeader(header)
	if err != nil {
		return "", "", err
	}

	var signature string
	params := make([]Pair, 0, len(authParams))
	for _, p := range authParams {
		switch p.Key {
		case "oauth_signature":
			signature = p.Value
			continue
		case "oauth_signature_method":
			if p.Value != signatureMethod {
				return "", "", ErrUnsupportedMethod
			}
		case "oauth_consumer_key":
			consumerKey = p.Value
		case "oauth_token":
			token = p.Value
		}
		params = append(params, p)
	}

	consumerSecret, ok := lookup.ConsumerSecret(consumerKey)
	if !ok {
		return "", "", ErrUnknownConsumer
	}
	tokenSecret := ""
	if token != "" {
		if tokenSecret, ok = lookup.TokenSecret(token); !ok {
			return "", "", ErrUnknownToken
		}
	}

	if err := r.ParseForm(); err != nil {
		return "", "", fmt.Errorf("failed to parse request parameters: %w", err)
	}
	for key, values := range r.Form {
		for _, v := range values {
			params = append(params, Pair{Key: key, Value: v})
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := scheme + "://" + r.Host + r.URL.Path

	expected := Signature(r.Method, base, params, consumerSecret, tokenSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", ErrInvalidSignature
	}
	return consumerKey, token, nil
}
