// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"errors"
	"fmt"
)

// RequestError is returned when the server answered with a non-2xx status
type RequestError struct {
	Status int
	Body   []byte
}

func (e *RequestError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, body)
}

// TransportError is returned when no HTTP response was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Verification errors
var (
	ErrMissingAuthorization = errors.New("missing OAuth authorization header")
	ErrUnsupportedMethod    = errors.New("unsupported oauth_signature_method")
	ErrUnknownConsumer      = errors.New("unknown consumer key")
	ErrUnknownToken         = errors.New("unknown token")
	ErrInvalidSignature     = errors.New("invalid signature")
)
