// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexerWithBaseURL(id int, name, baseURL string, enable bool) Indexer {
	return Indexer{
		ID:             id,
		Name:           name,
		DefinitionName: name,
		Enable:         enable,
		Fields:         []IndexerField{{Name: "baseUrl", Value: baseURL}},
	}
}

func TestDeriveDomain(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{name: "plain_https", rawURL: "https://tracker.example.org/", want: "tracker.example.org"},
		{name: "uppercase_host", rawURL: "https://Tracker.Example.ORG", want: "tracker.example.org"},
		{name: "port_stripped", rawURL: "http://tracker.example.org:8080/path", want: "tracker.example.org"},
		{name: "no_scheme", rawURL: "tracker.example.org/announce", want: "tracker.example.org"},
		{name: "trailing_slashes", rawURL: "https://tracker.example.org///", want: "tracker.example.org"},
		{name: "whitespace", rawURL: "  https://tracker.example.org  ", want: "tracker.example.org"},
		{name: "empty", rawURL: "", want: ""},
		{name: "blank", rawURL: "   ", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveDomain(tt.rawURL))
		})
	}
}

func TestDeriveDomainDeterministic(t *testing.T) {
	variants := []string{
		"https://tracker.example.org",
		"http://tracker.example.org",
		"https://tracker.example.org:443",
		"tracker.example.org",
	}

	for _, v := range variants {
		assert.Equal(t, "tracker.example.org", DeriveDomain(v), "variant %q", v)
	}
}

func TestIndexerCacheRebuild(t *testing.T) {
	cache := NewIndexerCache(time.Hour)

	sites := map[string]SiteRef{
		"alpha.example.org": {ID: 1, Name: "Alpha", Domain: "alpha.example.org"},
		"beta.example.org":  {ID: 2, Name: "Beta", Domain: "beta.example.org"},
	}
	resolve := func(domain string) (SiteRef, bool) {
		site, ok := sites[domain]
		return site, ok
	}

	indexers := []Indexer{
		indexerWithBaseURL(10, "Alpha", "https://alpha.example.org", true),
		indexerWithBaseURL(11, "Beta", "https://beta.example.org", true),
		indexerWithBaseURL(12, "Disabled", "https://alpha.example.org", false),
		indexerWithBaseURL(13, "Unknown", "https://unknown.example.org", true),
	}

	count := cache.Rebuild(indexers, resolve)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, cache.Len())

	entry, ok := cache.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 10, entry.RemoteID)
	assert.Equal(t, "alpha.example.org", entry.Domain)

	remote, ok := cache.LookupRemote(11)
	require.True(t, ok)
	assert.Equal(t, 2, remote.SiteID)

	_, ok = cache.Lookup(99)
	assert.False(t, ok)
	_, ok = cache.LookupRemote(12)
	assert.False(t, ok, "disabled indexer must not be mapped")
	_, ok = cache.LookupRemote(13)
	assert.False(t, ok, "unresolved domain must not be mapped")
}

func TestIndexerCacheDefinitionNameFallback(t *testing.T) {
	cache := NewIndexerCache(time.Hour)

	resolve := func(domain string) (SiteRef, bool) {
		if domain == "gamma" {
			return SiteRef{ID: 3, Domain: domain}, true
		}
		return SiteRef{}, false
	}

	indexers := []Indexer{
		{ID: 20, Name: "Gamma", DefinitionName: "Gamma", Enable: true},
	}

	count := cache.Rebuild(indexers, resolve)
	require.Equal(t, 1, count)

	entry, ok := cache.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "gamma", entry.Domain)
}

func TestIndexerCacheLastWinsOnDomainCollision(t *testing.T) {
	cache := NewIndexerCache(time.Hour)

	resolve := func(domain string) (SiteRef, bool) {
		return SiteRef{ID: 7, Domain: domain}, true
	}

	indexers := []Indexer{
		indexerWithBaseURL(30, "First", "https://shared.example.org", true),
		indexerWithBaseURL(31, "Second", "https://shared.example.org", true),
	}

	count := cache.Rebuild(indexers, resolve)
	assert.Equal(t, 1, count)

	entry, ok := cache.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, 31, entry.RemoteID, "later indexer in listing order wins")

	_, ok = cache.LookupRemote(30)
	assert.False(t, ok, "overwritten entry must not linger in the reverse index")
	_, ok = cache.LookupRemote(31)
	assert.True(t, ok)
}

func TestIndexerCacheExpiry(t *testing.T) {
	cache := NewIndexerCache(time.Hour)

	now := time.Now()
	assert.True(t, cache.Expired(now), "never-built cache is expired")
	assert.True(t, cache.ExpiresAt().IsZero())

	cache.Rebuild(nil, func(string) (SiteRef, bool) { return SiteRef{}, false })

	assert.False(t, cache.Expired(now))
	assert.True(t, cache.Expired(now.Add(2*time.Hour)))
	assert.False(t, cache.ExpiresAt().IsZero())
}

func TestIndexerCacheConcurrentReadsDuringRebuild(t *testing.T) {
	cache := NewIndexerCache(time.Hour)

	resolve := func(domain string) (SiteRef, bool) {
		return SiteRef{ID: 1, Domain: domain}, true
	}

	build := func(gen int) []Indexer {
		return []Indexer{
			indexerWithBaseURL(gen, "Gen", fmt.Sprintf("https://gen%d.example.org", gen), true),
		}
	}

	cache.Rebuild(build(0), resolve)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				entry, ok := cache.Lookup(1)
				if !ok {
					t.Error("reader observed an empty generation")
					return
				}
				// Forward and reverse indexes must come from the
				// same generation.
				reverse, ok := cache.LookupRemote(entry.RemoteID)
				if !ok || reverse.SiteID != 1 {
					t.Error("reader observed a torn generation")
					return
				}
			}
		}()
	}

	for gen := 1; gen <= 100; gen++ {
		cache.Rebuild(build(gen), resolve)
	}
	close(stop)
	wg.Wait()
}

func TestIndexerCacheEntries(t *testing.T) {
	cache := NewIndexerCache(time.Hour)
	assert.Nil(t, cache.Entries())

	resolve := func(domain string) (SiteRef, bool) {
		return SiteRef{ID: 5, Domain: domain}, true
	}
	cache.Rebuild([]Indexer{indexerWithBaseURL(50, "Solo", "https://solo.example.org", true)}, resolve)

	entries := cache.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].SiteID)
	assert.Equal(t, 50, entries[0].RemoteID)
}
