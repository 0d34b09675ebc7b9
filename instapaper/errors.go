// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/grork/storyvoid/oauth"
)

// Service error codes the client and sync engine react to
const (
	CodeRateLimited          = 1040
	CodeInvalidBookmark      = 1241
	CodeInvalidFolder        = 1242
	CodeUnexpected           = 1250
	CodeDuplicateFolder      = 1251
	CodeServiceError         = 1500
	CodeArticleUnavailable   = 1550
	CodeInvalidCredentials   = http.StatusUnauthorized
	CodeSubscriptionRequired = http.StatusPaymentRequired
)

// ValidationError is returned before any request is issued when an argument is invalid
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APIError is a structured rejection from the service
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("instapaper error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("instapaper error %d", e.Code)
}

// HasCode reports whether err is an *APIError with one of the given codes
func HasCode(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return false
}

// IsAuthFailure reports whether err means the credentials were rejected
func IsAuthFailure(err error) bool {
	return HasCode(err, CodeInvalidCredentials)
}

// IsTransport reports whether err is a connectivity failure
func IsTransport(err error) bool {
	var transportErr *oauth.TransportError
	return errors.As(err, &transportErr)
}

// classify converts oauth-level failures into the client's taxonomy.
// Transport errors pass through untouched.
func classify(err error) error {
	var reqErr *oauth.RequestError
	if !errors.As(err, &reqErr) {
		return err
	}
	if apiErr := parseErrorEnvelope(reqErr.Body); apiErr != nil {
		return apiErr
	}
	return &APIError{Code: reqErr.Status, Message: strings.TrimSpace(string(reqErr.Body))}
}

// parseErrorEnvelope returns the error carried in element 0 of a response array, if any
func parseErrorEnvelope(body []byte) *APIError {
	var items []wireItem
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return nil
	}
	if items[0].Type != "error" {
		return nil
	}
	return &APIError{Code: int(items[0].ErrorCode), Message: items[0].Message}
}
