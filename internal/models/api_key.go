// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"

	"github.com/autobrr/prowlink/internal/dbinterface"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrInvalidAPIKey  = errors.New("invalid api key")
)

// APIKey is a named credential for the HTTP API. The plaintext key is
// shown once at creation; only an argon2id hash is stored.
type APIKey struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

type APIKeyStore struct {
	db dbinterface.Querier
}

func NewAPIKeyStore(db dbinterface.Querier) *APIKeyStore {
	return &APIKeyStore{db: db}
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func hashKey(key string, salt []byte) []byte {
	return argon2.IDKey([]byte(key), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func encodeHash(salt, hash []byte) string {
	return base64.RawStdEncoding.EncodeToString(salt) + ":" + base64.RawStdEncoding.EncodeToString(hash)
}

func verifyKey(key, encoded string) bool {
	salt64, hash64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(salt64)
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(hash64)
	if err != nil {
		return false
	}
	candidate := hashKey(key, salt)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

// Create generates a new random key under the given name and returns it
// with the plaintext Key populated.
func (s *APIKeyStore) Create(ctx context.Context, name string) (*APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("api key name is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, errors.Wrap(err, "generate api key")
	}
	key := hex.EncodeToString(raw)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}

	var apiKey APIKey
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key_hash) VALUES (?, ?)
		RETURNING id, name, created_at`,
		name, encodeHash(salt, hashKey(key, salt)),
	).Scan(&apiKey.ID, &apiKey.Name, &apiKey.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	apiKey.Key = key
	return &apiKey, nil
}

// Validate checks a presented key against every stored hash and returns the
// matching record. Callers should cache positive results; argon2id is
// deliberately slow.
func (s *APIKeyStore) Validate(ctx context.Context, key string) (*APIKey, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, key_hash, created_at, last_used_at FROM api_keys`)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var apiKey APIKey
		var hash string
		var lastUsed sql.NullTime
		if err := rows.Scan(&apiKey.ID, &apiKey.Name, &hash, &apiKey.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if !verifyKey(key, hash) {
			continue
		}
		if lastUsed.Valid {
			apiKey.LastUsedAt = &lastUsed.Time
		}
		return &apiKey, nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nil, ErrInvalidAPIKey
}

// Touch records that a key was used.
func (s *APIKeyStore) Touch(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

func (s *APIKeyStore) List(ctx context.Context) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, last_used_at FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*APIKey, 0)
	for rows.Next() {
		var apiKey APIKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&apiKey.ID, &apiKey.Name, &apiKey.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			apiKey.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, &apiKey)
	}
	return keys, rows.Err()
}

func (s *APIKeyStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete api key %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
