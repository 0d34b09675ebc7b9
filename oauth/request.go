// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const signatureMethod = "HMAC-SHA1"

// Request is a single OAuth-signed HTTP request.
// Nonce and Timestamp are generated when left empty; tests pin them.
type Request struct {
	Info      ClientInformation
	Method    string // http.MethodGet or http.MethodPost
	URL       string // without query string
	Data      []Pair
	Nonce     string
	Timestamp int64
}

// NewRequest creates a POST request, which is what every Instapaper endpoint expects
func NewRequest(info ClientInformation, url string) *Request {
	return &Request{Info: info, Method: http.MethodPost, URL: url}
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(r.Method)
}

func (r *Request) oauthParams() []Pair {
	nonce := r.Nonce
	if nonce == "" {
		nonce = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	timestamp := r.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	params := []Pair{
		{Key: "oauth_consumer_key", Value: r.Info.ConsumerKey},
		{Key: "oauth_nonce", Value: nonce},
		{Key: "oauth_signature_method", Value: signatureMethod},
		{Key: "oauth_timestamp", Value: strconv.FormatInt(timestamp, 10)},
		{Key: "oauth_version", Value: "1.0"},
	}
	if r.Info.HasToken() {
		params = append(params, Pair{Key: "oauth_token", Value: r.Info.Token})
	}
	return params
}

// AuthorizationParams returns the signed OAuth parameters as they appear after the
// "OAuth " scheme prefix: quoted values joined with ", ".
func (r *Request) AuthorizationParams() string {
	params := r.oauthParams()
	signature := Signature(r.method(), r.URL, append(append([]Pair{}, params...), r.Data...),
		r.Info.ConsumerSecret, r.Info.TokenSecret)

	header := ParameterEncoder{Delimiter: ", ", QuoteValues: true}
	return header.Encode([]Pair{{Key: "oauth_signature", Value: signature}}, params)
}

// AuthorizationHeader returns the full Authorization header value
func (r *Request) AuthorizationHeader() string {
	return "OAuth " + r.AuthorizationParams()
}

// Signature computes the base64 HMAC-SHA1 signature for the given method, URL and the
// combined OAuth + request parameters (oauth_signature excluded).
func Signature(method, url string, params []Pair, consumerSecret, tokenSecret string) string {
	parameterString := ParameterEncoder{}.Encode(params)
	base := strings.ToUpper(method) + "&" + Escape(url) + "&" + Escape(parameterString)
	key := Escape(consumerSecret) + "&" + Escape(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Send signs and dispatches the request. GET data goes in the query string,
// POST data in a form-encoded body. Non-2xx responses return *RequestError,
// failures to get any response return *TransportError.
func (r *Request) Send(ctx context.Context, client *http.Client) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	method := r.method()
	target := r.URL
	var body io.Reader
	payload := ""
	if len(r.Data) > 0 {
		payload = ParameterEncoder{}.Encode(r.Data)
	}
	if payload != "" {
		if method == http.MethodGet {
			target += "?" + payload
		} else {
			body = strings.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", r.AuthorizationHeader())
	req.Header.Set("User-Agent", r.Info.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Status: resp.StatusCode, Body: buf.Bytes()}
	}
	return buf.Bytes(), nil
}
