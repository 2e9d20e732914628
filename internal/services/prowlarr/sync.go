// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/prowlink/internal/models"
)

const (
	defaultSiteResultLimit    = 100
	defaultSiteTimeoutSeconds = 30
)

type indexerLister interface {
	ListIndexers(ctx context.Context) ([]Indexer, error)
}

// SiteRegistry is the slice of the site store the sync pass writes to.
type SiteRegistry interface {
	Upsert(ctx context.Context, site *models.Site) (*models.Site, error)
	GetByDomain(ctx context.Context, domain string) (*models.Site, error)
}

// RunRecorder persists sync outcomes.
type RunRecorder interface {
	Record(ctx context.Context, run *models.SyncRun) error
	Prune(ctx context.Context, keep int) error
}

// SyncService pulls the indexer list from the aggregator, registers each
// enabled indexer as a site keyed by domain, and rebuilds the in-memory
// mapping cache from the refreshed registry.
type SyncService struct {
	client    indexerLister
	cache     *IndexerCache
	sites     SiteRegistry
	runs      RunRecorder
	overrides *Overrides
	// proxy is the client-level proxy flag; every registered site inherits
	// it unless a per-domain override flips it.
	proxy   bool
	metrics MetricsRecorder

	mu  sync.Mutex
	log zerolog.Logger
}

func NewSyncService(client indexerLister, cache *IndexerCache, sites SiteRegistry, runs RunRecorder, overrides *Overrides, proxy bool, metrics MetricsRecorder) *SyncService {
	return &SyncService{
		client:    client,
		cache:     cache,
		sites:     sites,
		runs:      runs,
		overrides: overrides,
		proxy:     proxy,
		metrics:   metrics,
		log:       log.With().Str("module", "prowlarr-sync").Logger(),
	}
}

// Run executes one synchronization pass. Runs are serialized; a run that
// cannot reach the aggregator leaves the registry and cache untouched.
// The returned run is also recorded, so callers can ignore the store.
func (s *SyncService) Run(ctx context.Context) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()

	indexers, err := s.client.ListIndexers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list indexers, keeping previous registry state")
		run := &models.SyncRun{
			StartedAt:  started,
			FinishedAt: time.Now(),
			Status:     models.SyncStatusFailed,
			Error:      err.Error(),
		}
		s.record(ctx, run)
		return run, err
	}

	registered := 0
	failed := 0
	for _, indexer := range indexers {
		if !indexer.Enable {
			continue
		}

		site := s.siteFor(indexer)
		if site == nil {
			continue
		}

		if _, err := s.sites.Upsert(ctx, site); err != nil {
			failed++
			s.log.Error().Err(err).
				Str("domain", site.Domain).
				Str("indexerKey", site.IndexerKey).
				Msg("Failed to register site, skipping")
			continue
		}
		registered++
	}

	mapped := s.cache.Rebuild(indexers, func(domain string) (SiteRef, bool) {
		return s.resolveDomain(ctx, domain)
	})

	status := models.SyncStatusSuccess
	if failed > 0 {
		status = models.SyncStatusPartial
	}

	run := &models.SyncRun{
		StartedAt:       started,
		FinishedAt:      time.Now(),
		Status:          status,
		IndexersSeen:    len(indexers),
		SitesRegistered: registered,
		EntriesMapped:   mapped,
		Signature:       Signature(indexers),
	}
	s.record(ctx, run)

	if s.metrics != nil {
		s.metrics.RecordSyncRun(status, registered, mapped, run.FinishedAt.Sub(started))
		s.metrics.RecordCacheSize(mapped)
	}

	s.log.Info().
		Str("status", status).
		Int("indexers", len(indexers)).
		Int("registered", registered).
		Int("mapped", mapped).
		Uint64("signature", run.Signature).
		Dur("elapsed", run.FinishedAt.Sub(started)).
		Msg("Indexer sync finished")

	return run, nil
}

// RebuildCache refreshes the mapping cache from the aggregator without
// touching the registry.
func (s *SyncService) RebuildCache(ctx context.Context) (int, error) {
	indexers, err := s.client.ListIndexers(ctx)
	if err != nil {
		return 0, err
	}

	mapped := s.cache.Rebuild(indexers, func(domain string) (SiteRef, bool) {
		return s.resolveDomain(ctx, domain)
	})
	if s.metrics != nil {
		s.metrics.RecordCacheSize(mapped)
	}
	return mapped, nil
}

// siteFor maps an enabled indexer onto a registry record, or nil when an
// override excludes its domain.
func (s *SyncService) siteFor(indexer Indexer) *models.Site {
	baseURL := indexer.BaseURL()
	domain := DeriveDomain(baseURL)
	if domain == "" {
		domain = strings.ToLower(strings.TrimSpace(indexer.DefinitionName))
	}
	if domain == "" {
		s.log.Warn().Int("indexerId", indexer.ID).Str("name", indexer.Name).Msg("Indexer has no usable domain, skipping")
		return nil
	}

	site := &models.Site{
		IndexerKey:  IndexerKey(indexer.ID),
		Name:        indexer.Name,
		Domain:      domain,
		URL:         baseURL,
		Public:      indexer.Public(),
		Priority:    indexer.Priority,
		ResultLimit: defaultSiteResultLimit,
		Timeout:     defaultSiteTimeoutSeconds,
		Proxy:       s.proxy,
	}

	if s.overrides != nil {
		if !s.overrides.Apply(site) {
			s.log.Debug().Str("domain", domain).Msg("Domain excluded by override")
			return nil
		}
	}

	return site
}

func (s *SyncService) resolveDomain(ctx context.Context, domain string) (SiteRef, bool) {
	return resolveSiteRef(ctx, s.sites, domain)
}

func (s *SyncService) record(ctx context.Context, run *models.SyncRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Record(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("Failed to record sync run")
		return
	}
	if err := s.runs.Prune(ctx, 100); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune sync run history")
	}
}

// Signature folds every indexer's identity into one order-independent hash.
// Two listings with the same set of indexers produce the same signature no
// matter how the aggregator orders them.
func Signature(indexers []Indexer) uint64 {
	var signature uint64
	for _, indexer := range indexers {
		key := fmt.Sprintf("%d|%s|%s|%t|%d",
			indexer.ID, indexer.DefinitionName, indexer.BaseURL(), indexer.Enable, indexer.Priority)
		signature ^= xxhash.Sum64String(key)
	}
	return signature
}
