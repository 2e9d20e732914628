// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/autobrr/prowlink/internal/dbinterface"
)

var ErrSiteNotFound = errors.New("site not found")

// Site is one registry record, synced from a Prowlarr indexer and keyed by
// domain. Cookie and user agent are operator-editable columns that survive
// sync upserts.
type Site struct {
	ID              int        `json:"id"`
	IndexerKey      string     `json:"indexer_key"`
	Name            string     `json:"name"`
	Domain          string     `json:"domain"`
	URL             string     `json:"url"`
	Public          bool       `json:"public"`
	Priority        int        `json:"priority"`
	ResultLimit     int        `json:"result_limit"`
	Timeout         int        `json:"timeout"`
	Proxy           bool       `json:"proxy"`
	CookieEncrypted string     `json:"-"`
	UserAgent       string     `json:"user_agent,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SiteStore persists the site registry. Cookies are encrypted at rest with
// AES-GCM under the configured encryption secret.
type SiteStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewSiteStore(db dbinterface.Querier, encryptionKey []byte) (*SiteStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	return &SiteStore{db: db, encryptionKey: encryptionKey}, nil
}

func (s *SiteStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *SiteStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("malformed ciphertext")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

const siteColumns = `id, indexer_key, name, domain, url, public, priority, result_limit,
	timeout, proxy, cookie_encrypted, user_agent, enabled, last_synced_at, created_at, updated_at`

func scanSite(row interface{ Scan(dest ...any) error }) (*Site, error) {
	var site Site
	var lastSynced sql.NullTime
	err := row.Scan(
		&site.ID, &site.IndexerKey, &site.Name, &site.Domain, &site.URL,
		&site.Public, &site.Priority, &site.ResultLimit, &site.Timeout,
		&site.Proxy, &site.CookieEncrypted, &site.UserAgent, &site.Enabled,
		&lastSynced, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		site.LastSyncedAt = &lastSynced.Time
	}
	return &site, nil
}

// Upsert inserts or refreshes a synced registry record, keyed by domain.
// Operator-owned columns (cookie, user agent, enabled) are preserved on
// update; everything the aggregator owns is overwritten.
func (s *SiteStore) Upsert(ctx context.Context, site *Site) (*Site, error) {
	domain := strings.ToLower(strings.TrimSpace(site.Domain))
	if domain == "" {
		return nil, errors.New("site domain is required")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sites (indexer_key, name, domain, url, public, priority, result_limit, timeout, proxy, enabled, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (domain) DO UPDATE SET
			indexer_key = excluded.indexer_key,
			name = excluded.name,
			url = excluded.url,
			public = excluded.public,
			priority = excluded.priority,
			result_limit = excluded.result_limit,
			timeout = excluded.timeout,
			proxy = excluded.proxy,
			last_synced_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		RETURNING `+siteColumns,
		site.IndexerKey, site.Name, domain, site.URL, site.Public,
		site.Priority, site.ResultLimit, site.Timeout, site.Proxy,
	)

	stored, err := scanSite(row)
	if err != nil {
		return nil, fmt.Errorf("upsert site %s: %w", domain, err)
	}
	return stored, nil
}

// Get returns the site with the given ID.
func (s *SiteStore) Get(ctx context.Context, id int) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}
	return site, nil
}

// GetByDomain returns the site registered for a domain (case-insensitive).
func (s *SiteStore) GetByDomain(ctx context.Context, domain string) (*Site, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE domain = ?`, domain)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}
	return site, nil
}

// List returns registry records ordered by priority then name. A non-empty
// search term fuzzy-filters on name and domain.
func (s *SiteStore) List(ctx context.Context, search string, limit int) ([]*Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY priority DESC, name COLLATE NOCASE`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	search = strings.TrimSpace(search)
	sites := make([]*Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		if search != "" && !fuzzy.MatchFold(search, site.Name) && !fuzzy.MatchFold(search, site.Domain) {
			continue
		}
		sites = append(sites, site)
		if limit > 0 && len(sites) >= limit {
			break
		}
	}
	return sites, rows.Err()
}

// ListEnabled returns every enabled registry record.
func (s *SiteStore) ListEnabled(ctx context.Context) ([]*Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE enabled = 1 ORDER BY priority DESC`)
	if err != nil {
		return nil, fmt.Errorf("list enabled sites: %w", err)
	}
	defer rows.Close()

	sites := make([]*Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Count returns the number of registry records.
func (s *SiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a registry record. A deleted site is re-created at the
// next sync if its indexer is still enabled on the aggregator.
func (s *SiteStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// UpdateCredentials sets the operator-owned cookie and user agent columns.
func (s *SiteStore) UpdateCredentials(ctx context.Context, id int, cookie, userAgent string) error {
	encrypted := ""
	if cookie != "" {
		var err error
		encrypted, err = s.encrypt(cookie)
		if err != nil {
			return errors.Wrap(err, "encrypt cookie")
		}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sites SET cookie_encrypted = ?, user_agent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		encrypted, userAgent, id,
	)
	if err != nil {
		return fmt.Errorf("update site %d credentials: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// SetEnabled toggles a site in or out of the delegation path.
func (s *SiteStore) SetEnabled(ctx context.Context, id int, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sites SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("update site %d enabled: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// GetDecryptedCookie returns the site's cookie in plaintext, or "" when no
// cookie is stored.
func (s *SiteStore) GetDecryptedCookie(site *Site) (string, error) {
	if site == nil || site.CookieEncrypted == "" {
		return "", nil
	}
	cookie, err := s.decrypt(site.CookieEncrypted)
	if err != nil {
		return "", errors.Wrap(err, "decrypt cookie")
	}
	return cookie, nil
}
