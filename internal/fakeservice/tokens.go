// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "storyvoid-fakeservice"

// TokenClaims are carried by every access token the service hands out
type TokenClaims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// UserID parses the numeric account id from the subject claim
func (c *TokenClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sub (user ID) in token: %w", err)
	}
	return id, nil
}

// TokenIssuer mints OAuth access tokens as HS256 JWTs. The matching token
// secret is derived from the token itself, so nothing has to be stored.
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration

	mu      sync.Mutex
	revoked map[int64]time.Time // tokens issued at or before this time are rejected
}

// NewTokenIssuer creates an issuer; a zero lifetime issues non-expiring tokens
func NewTokenIssuer(secret string, lifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		revoked:  make(map[int64]time.Time),
	}
}

// Issue returns a new token and token secret for the account
func (ti *TokenIssuer) Issue(userID int64, username string) (token, tokenSecret string, err error) {
	now := time.Now()
	claims := &TokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.New().String(),
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   tokenIssuer,
			Subject:  strconv.FormatInt(userID, 10),
		},
	}
	if ti.lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ti.lifetime))
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, ti.secretFor(token), nil
}

// Validate parses a token and returns its claims
func (ti *TokenIssuer) Validate(token string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	ti.mu.Lock()
	cutoff, revoked := ti.revoked[userID]
	ti.mu.Unlock()
	if revoked && claims.IssuedAt != nil && !claims.IssuedAt.After(cutoff) {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

// TokenSecret returns the secret paired with a valid token
func (ti *TokenIssuer) TokenSecret(token string) (string, bool) {
	if _, err := ti.Validate(token); err != nil {
		return "", false
	}
	return ti.secretFor(token), true
}

// RevokeAll invalidates every token issued to the account so far
func (ti *TokenIssuer) RevokeAll(userID int64) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	// IssuedAt has second granularity
	ti.revoked[userID] = time.Now().Truncate(time.Second)
}

func (ti *TokenIssuer) secretFor(token string) string {
	mac := hmac.New(sha256.New, ti.secret)
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
