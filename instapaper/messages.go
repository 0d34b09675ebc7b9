// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package instapaper

import (
	"errors"
	"fmt"
)

// FriendlyMessage maps an error to text suitable for showing the user.
// A nil error maps to the empty string.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsTransport(err) {
		return "We couldn't reach Instapaper. Check your connection, and we'll try again shortly."
	}

	code := 0
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	return MessageForCode(code)
}

// MessageForCode returns the user-facing message for a service error code
func MessageForCode(code int) string {
	switch code {
	case 0:
		return ""
	case CodeInvalidCredentials:
		return "Looks like you've entered the wrong username, or password for Instapaper. Check them, and give it another try!"
	case CodeSubscriptionRequired:
		return "You don't appear to be an Instapaper Subscriber, which you need to be to use your account on non-iOS devices. Sorry :("
	default:
		return fmt.Sprintf("Uh oh! Something went wrong, and we're not sure what. Give it a few moments, check your username & password, and try again. If it still doesn't work, please contact us and mention error code: '%d'", code)
	}
}
