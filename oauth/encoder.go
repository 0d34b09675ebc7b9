// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements OAuth 1.0a (RFC 5849) HMAC-SHA1 request signing,
// along with the parameter encoding rules the signature depends on.
package oauth

import (
	"sort"
	"strings"
)

// Pair is a single key/value parameter
type Pair struct {
	Key   string
	Value string
}

// ParameterEncoder serializes parameters into a sorted, percent-encoded string.
// The zero value joins with "&" and leaves values unquoted.
type ParameterEncoder struct {
	Delimiter   string // defaults to "&"
	QuoteValues bool   // key="value" instead of key=value
}

// Encode flattens all groups, escapes every key and value, sorts by escaped key and
// joins the result. Sorting is stable so duplicate keys keep their encounter order.
func (e ParameterEncoder) Encode(groups ...[]Pair) string {
	var encoded []Pair
	for _, group := range groups {
		for _, p := range group {
			encoded = append(encoded, Pair{Key: Escape(p.Key), Value: Escape(p.Value)})
		}
	}

	sort.SliceStable(encoded, func(i, j int) bool {
		return encoded[i].Key < encoded[j].Key
	})

	delimiter := e.Delimiter
	if delimiter == "" {
		delimiter = "&"
	}

	var b strings.Builder
	for i, p := range encoded {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		if e.QuoteValues {
			b.WriteByte('"')
			b.WriteString(p.Value)
			b.WriteByte('"')
		} else {
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// Escape percent-encodes s per RFC 3986: only unreserved characters pass through.
func Escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
