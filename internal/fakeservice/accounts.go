// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fakeservice

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AccountRecord identifies a registered account
type AccountRecord struct {
	UserID   int64
	Username string
}

// Accounts stores the credentials accepted by the xAuth endpoint
type Accounts interface {
	Create(ctx context.Context, username, password string) (AccountRecord, error)
	Authenticate(ctx context.Context, username, password string) (AccountRecord, error)
	ByID(ctx context.Context, userID int64) (AccountRecord, error)
	ByUsername(ctx context.Context, username string) (AccountRecord, error)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func hashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(normalizeUsername(username) + "\x00" + password))
	return hex.EncodeToString(sum[:])
}

func passwordMatches(stored, username, password string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hashPassword(username, password))) == 1
}

// MemoryAccounts keeps accounts in process memory
type MemoryAccounts struct {
	mu       sync.Mutex
	nextID   int64
	byName   map[string]memoryAccount
	nameByID map[int64]string
}

type memoryAccount struct {
	record       AccountRecord
	passwordHash string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		nextID:   1000,
		byName:   make(map[string]memoryAccount),
		nameByID: make(map[int64]string),
	}
}

func (m *MemoryAccounts) Create(_ context.Context, username, password string) (AccountRecord, error) {
	key := normalizeUsername(username)
	if key == "" {
		return AccountRecord{}, ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[key]; exists {
		return AccountRecord{}, ErrAccountExists
	}
	m.nextID++
	record := AccountRecord{UserID: m.nextID, Username: strings.TrimSpace(username)}
	m.byName[key] = memoryAccount{record: record, passwordHash: hashPassword(username, password)}
	m.nameByID[record.UserID] = key
	return record, nil
}

func (m *MemoryAccounts) Authenticate(_ context.Context, username, password string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byName[normalizeUsername(username)]
	if !ok || !passwordMatches(account.passwordHash, username, password) {
		return AccountRecord{}, ErrInvalidCredentials
	}
	return account.record, nil
}

func (m *MemoryAccounts) ByID(_ context.Context, userID int64) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.nameByID[userID]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return m.byName[key].record, nil
}

func (m *MemoryAccounts) ByUsername(_ context.Context, username string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byName[normalizeUsername(username)]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return account.record, nil
}
