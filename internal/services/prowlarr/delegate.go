// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultSearchLimit = 100

// searchClient is the slice of the Prowlarr client the delegator needs.
type searchClient interface {
	ListIndexers(ctx context.Context) ([]Indexer, error)
	Search(ctx context.Context, query string, indexerIDs []int, limit int) ([]SearchResult, error)
}

// SiteResolver finds the local site registered for a domain.
type SiteResolver interface {
	ResolveByDomain(ctx context.Context, domain string) (SiteRef, bool)
}

// MetricsRecorder receives delegation and sync outcomes. Implementations
// must tolerate concurrent calls; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordDelegation(outcome string, handled, remaining int)
	RecordSearch(err error, duration time.Duration)
	RecordSyncRun(status string, registered, mapped int, duration time.Duration)
	RecordCacheSize(entries int)
}

// Delegation is the two-outcome contract of a delegated search: results for
// the sites this service answered, plus every candidate it did not. The
// caller keeps processing Remaining through its own pipeline, so no site is
// silently dropped even when delegation fails.
type Delegation struct {
	Handled   []TorrentResult `json:"results"`
	Remaining []SiteRef       `json:"remainingSites"`
}

// Delegator partitions search candidates between the aggregator and the
// caller, issuing at most one batched remote query per delegation.
type Delegator struct {
	client  searchClient
	cache   *IndexerCache
	sites   SiteResolver
	limit   int
	metrics MetricsRecorder
}

// NewDelegator wires a delegator over a client, mapping cache and site
// registry. limit bounds the batched remote query; <= 0 uses the default
// of 100.
func NewDelegator(client searchClient, cache *IndexerCache, sites SiteResolver, limit int, metrics MetricsRecorder) *Delegator {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &Delegator{
		client:  client,
		cache:   cache,
		sites:   sites,
		limit:   limit,
		metrics: metrics,
	}
}

// Delegate answers the given keyword search for every candidate site that
// maps onto a remote indexer and hands the rest back.
//
// An expired cache is rebuilt synchronously first: the partition is only
// correct against a fresh mapping, and the added latency is accepted. A
// failed rebuild keeps the previous generation; delegation then proceeds
// against it. A failed remote search degrades to "nothing handled, all
// candidates remaining" and never propagates an error to the caller.
func (d *Delegator) Delegate(ctx context.Context, keyword string, candidates []SiteRef) Delegation {
	if d.cache.Expired(time.Now()) {
		d.refreshCache(ctx)
	}

	var (
		delegated = make([]SiteRef, 0, len(candidates))
		remaining = make([]SiteRef, 0, len(candidates))
		remoteIDs = make([]int, 0, len(candidates))
		bindings  = make(map[int]SiteRef, len(candidates))
	)

	for _, site := range candidates {
		entry, ok := d.cache.Lookup(site.ID)
		if !ok {
			remaining = append(remaining, site)
			continue
		}
		delegated = append(delegated, site)
		remoteIDs = append(remoteIDs, entry.RemoteID)
		bindings[entry.RemoteID] = site
	}

	if len(delegated) == 0 {
		// Nothing maps to the aggregator; skip the round trip entirely.
		d.recordDelegation("unmapped", 0, len(candidates))
		return Delegation{Handled: nil, Remaining: candidates}
	}

	searchStarted := time.Now()
	rawResults, err := d.client.Search(ctx, keyword, remoteIDs, d.limit)
	d.recordSearch(err, time.Since(searchStarted))
	if err != nil {
		log.Error().
			Err(err).
			Str("keyword", keyword).
			Int("indexers", len(remoteIDs)).
			Msg("Delegated search failed, returning all candidates to caller")
		d.recordDelegation("error", 0, len(candidates))
		return Delegation{Handled: nil, Remaining: candidates}
	}

	bind := func(remoteID int) (SiteRef, bool) {
		site, ok := bindings[remoteID]
		return site, ok
	}

	handled := make([]TorrentResult, 0, len(rawResults))
	for _, raw := range rawResults {
		result, err := normalizeResult(raw, bind)
		if err != nil {
			log.Debug().
				Err(err).
				Str("title", raw.Title).
				Msg("Dropping search result without site mapping")
			continue
		}
		handled = append(handled, result)
	}

	log.Debug().
		Str("keyword", keyword).
		Int("delegated", len(delegated)).
		Int("remaining", len(remaining)).
		Int("results", len(handled)).
		Msg("Search delegation complete")

	d.recordDelegation("ok", len(handled), len(remaining))
	return Delegation{Handled: handled, Remaining: remaining}
}

// refreshCache rebuilds the mapping from a fresh indexer listing. A network
// failure is logged and leaves the previous generation untouched.
func (d *Delegator) refreshCache(ctx context.Context) {
	indexers, err := d.client.ListIndexers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cache refresh failed, delegating against previous generation")
		return
	}

	count := d.cache.Rebuild(indexers, func(domain string) (SiteRef, bool) {
		return d.sites.ResolveByDomain(ctx, domain)
	})
	if d.metrics != nil {
		d.metrics.RecordCacheSize(count)
	}
	log.Debug().Int("entries", count).Msg("Rebuilt indexer mapping cache before delegation")
}

func (d *Delegator) recordDelegation(outcome string, handled, remaining int) {
	if d.metrics != nil {
		d.metrics.RecordDelegation(outcome, handled, remaining)
	}
}

func (d *Delegator) recordSearch(err error, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordSearch(err, elapsed)
	}
}
