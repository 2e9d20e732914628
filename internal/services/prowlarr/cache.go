// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
)

const defaultCacheTTL = time.Hour

// domainCache memoizes URL-to-domain derivation; the same base URLs come
// around on every refresh cycle.
var domainCache = ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(5 * time.Minute))

// Entry maps one local site onto one remote indexer.
type Entry struct {
	SiteID      int    `json:"site_id"`
	RemoteID    int    `json:"remote_id"`
	DisplayName string `json:"name"`
	BaseURL     string `json:"url"`
	Domain      string `json:"domain"`
}

// generation is one immutable build of the mapping. byRemote is derived
// from bySite in the same build, never populated independently, so the two
// directions can't drift apart.
type generation struct {
	bySite    map[int]Entry
	byRemote  map[int]Entry
	expiresAt time.Time
}

// IndexerCache is a TTL-bounded mapping from local site identity to remote
// indexer identity. Rebuild swaps the whole generation atomically, so a
// concurrent reader sees either the fully-old or fully-new entry set.
type IndexerCache struct {
	ttl time.Duration
	gen atomic.Pointer[generation]
}

func NewIndexerCache(ttl time.Duration) *IndexerCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &IndexerCache{ttl: ttl}
}

// Expired reports whether the cache needs a rebuild. A cache that has never
// been built is expired.
func (c *IndexerCache) Expired(now time.Time) bool {
	gen := c.gen.Load()
	return gen == nil || !now.Before(gen.expiresAt)
}

// ExpiresAt returns the current generation's expiry, or the zero time when
// no generation exists yet.
func (c *IndexerCache) ExpiresAt() time.Time {
	if gen := c.gen.Load(); gen != nil {
		return gen.expiresAt
	}
	return time.Time{}
}

// Rebuild constructs a fresh generation from the given indexers and swaps
// it in. Disabled indexers are excluded; indexers without a resolvable
// domain or a matching local site are skipped with a log line, never stored
// partially. Two indexers resolving to the same domain overwrite each other
// in listing order (last processed wins).
//
// Returns the number of entries built. A failed listing should simply not
// call Rebuild: the previous generation stays live until it can be replaced.
func (c *IndexerCache) Rebuild(indexers []Indexer, resolve func(domain string) (SiteRef, bool)) int {
	bySite := make(map[int]Entry, len(indexers))

	for _, idx := range indexers {
		if !idx.Enable {
			continue
		}

		baseURL := idx.BaseURL()
		domain := DeriveDomain(baseURL)
		if domain == "" {
			// No usable base URL; the definition name doubles as a
			// domain surrogate for indexers without one.
			domain = strings.ToLower(strings.TrimSpace(idx.DefinitionName))
		}
		if domain == "" {
			log.Debug().
				Int("indexer_id", idx.ID).
				Str("indexer", idx.Name).
				Msg("Skipping indexer without resolvable domain")
			continue
		}

		site, ok := resolve(domain)
		if !ok {
			log.Debug().
				Int("indexer_id", idx.ID).
				Str("domain", domain).
				Msg("Skipping indexer without matching local site")
			continue
		}

		bySite[site.ID] = Entry{
			SiteID:      site.ID,
			RemoteID:    idx.ID,
			DisplayName: idx.Name,
			BaseURL:     baseURL,
			Domain:      domain,
		}
	}

	byRemote := make(map[int]Entry, len(bySite))
	for _, entry := range bySite {
		byRemote[entry.RemoteID] = entry
	}

	c.gen.Store(&generation{
		bySite:    bySite,
		byRemote:  byRemote,
		expiresAt: time.Now().Add(c.ttl),
	})

	return len(bySite)
}

// Lookup returns the entry for a local site ID.
func (c *IndexerCache) Lookup(siteID int) (Entry, bool) {
	gen := c.gen.Load()
	if gen == nil {
		return Entry{}, false
	}
	entry, ok := gen.bySite[siteID]
	return entry, ok
}

// LookupRemote returns the entry for a remote indexer ID.
func (c *IndexerCache) LookupRemote(remoteID int) (Entry, bool) {
	gen := c.gen.Load()
	if gen == nil {
		return Entry{}, false
	}
	entry, ok := gen.byRemote[remoteID]
	return entry, ok
}

// Entries returns a copy of the current generation's entries.
func (c *IndexerCache) Entries() []Entry {
	gen := c.gen.Load()
	if gen == nil {
		return nil
	}
	entries := make([]Entry, 0, len(gen.bySite))
	for _, entry := range gen.bySite {
		entries = append(entries, entry)
	}
	return entries
}

// Len returns the number of entries in the current generation.
func (c *IndexerCache) Len() int {
	gen := c.gen.Load()
	if gen == nil {
		return 0
	}
	return len(gen.bySite)
}

// DeriveDomain extracts the lowercased host component from a URL. It is
// pure per input: scheme, port and trailing slashes don't change the
// result. Returns "" when no host can be extracted.
func DeriveDomain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	if cached, ok := domainCache.Get(rawURL); ok {
		return cached
	}

	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}

	domain := ""
	if parsed, err := url.Parse(candidate); err == nil {
		domain = strings.ToLower(strings.Trim(parsed.Hostname(), "[]"))
	}

	domainCache.Set(rawURL, domain, ttlcache.DefaultTTL)
	return domain
}
