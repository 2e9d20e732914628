// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/prowlink/internal/metrics"
	"github.com/autobrr/prowlink/internal/models"
	"github.com/autobrr/prowlink/internal/services/prowlarr"
)

const defaultSyncRunsLimit = 20

// ProwlarrHandler exposes the delegation, sync, and cache endpoints.
type ProwlarrHandler struct {
	client    *prowlarr.Client
	delegator *prowlarr.Delegator
	cache     *prowlarr.IndexerCache
	syncer    *prowlarr.SyncService
	siteStore *models.SiteStore
	runStore  *models.SyncRunStore
	metrics   *metrics.Manager
}

func NewProwlarrHandler(client *prowlarr.Client, delegator *prowlarr.Delegator, cache *prowlarr.IndexerCache, syncer *prowlarr.SyncService, siteStore *models.SiteStore, runStore *models.SyncRunStore, metricsManager *metrics.Manager) *ProwlarrHandler {
	return &ProwlarrHandler{
		client:    client,
		delegator: delegator,
		cache:     cache,
		syncer:    syncer,
		siteStore: siteStore,
		runStore:  runStore,
		metrics:   metricsManager,
	}
}

func (h *ProwlarrHandler) Routes(r chi.Router) {
	r.Post("/search/delegate", h.Delegate)
	r.Get("/search", h.Search)
	r.Post("/sync", h.TriggerSync)
	r.Get("/sync/runs", h.ListSyncRuns)
	r.Post("/cache/refresh", h.RefreshCache)
	r.Get("/cache", h.GetCache)
	r.Get("/test-connection", h.TestConnection)
	r.Get("/indexers", h.ListIndexers)
}

// DelegateRequest carries a keyword and the candidate site identities a
// caller wants searched.
type DelegateRequest struct {
	Query string             `json:"query"`
	Sites []prowlarr.SiteRef `json:"sites"`
}

// Delegate godoc
// @Summary Delegate a search across candidate sites
// @Description Partitions candidates into aggregator-handled and remaining sites, searches the handled ones in one batched call, and returns normalized results.
// @Tags search
// @Accept json
// @Produce json
// @Param request body DelegateRequest true "Delegation request"
// @Success 200 {object} prowlarr.Delegation
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /api/search/delegate [post]
func (h *ProwlarrHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	var req DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Failed to decode delegation request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	RespondJSON(w, http.StatusOK, h.delegator.Delegate(r.Context(), req.Query, req.Sites))
}

// Search godoc
// @Summary Search with candidates resolved from the registry
// @Description Same delegation core as /search/delegate, but candidate sites are looked up by ID from the local registry. Omitting sites uses every enabled site.
// @Tags search
// @Produce json
// @Param query query string true "Search keyword"
// @Param sites query string false "Comma-separated site IDs"
// @Success 200 {object} prowlarr.Delegation
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /api/search [get]
func (h *ProwlarrHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	candidates, err := h.resolveCandidates(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, h.delegator.Delegate(r.Context(), query, candidates))
}

func (h *ProwlarrHandler) resolveCandidates(r *http.Request) ([]prowlarr.SiteRef, error) {
	sitesParam := strings.TrimSpace(r.URL.Query().Get("sites"))

	var sites []*models.Site
	if sitesParam == "" {
		var err error
		sites, err = h.siteStore.ListEnabled(r.Context())
		if err != nil {
			return nil, err
		}
	} else {
		for _, part := range strings.Split(sitesParam, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, errors.New("sites must be a comma-separated list of site IDs")
			}
			site, err := h.siteStore.Get(r.Context(), id)
			if err != nil {
				if err == models.ErrSiteNotFound {
					continue
				}
				return nil, err
			}
			sites = append(sites, site)
		}
	}

	candidates := make([]prowlarr.SiteRef, 0, len(sites))
	for _, site := range sites {
		cookie, err := h.siteStore.GetDecryptedCookie(site)
		if err != nil {
			log.Warn().Err(err).Str("domain", site.Domain).Msg("Failed to decrypt site cookie")
		}
		candidates = append(candidates, prowlarr.SiteRef{
			ID:        site.ID,
			Name:      site.Name,
			Domain:    site.Domain,
			Priority:  site.Priority,
			Cookie:    cookie,
			UserAgent: site.UserAgent,
			Proxy:     site.Proxy,
		})
	}
	return candidates, nil
}

// TriggerSync godoc
// @Summary Run an indexer sync pass now
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncRun
// @Failure 502 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync [post]
func (h *ProwlarrHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncer.Run(r.Context())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordUpstreamError("indexer")
		}
		RespondJSON(w, http.StatusBadGateway, run)
		return
	}

	RespondJSON(w, http.StatusOK, run)
}

// ListSyncRuns returns persisted sync history, newest first.
func (h *ProwlarrHandler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultSyncRunsLimit
	if limitParam := strings.TrimSpace(r.URL.Query().Get("limit")); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runStore.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sync runs")
		RespondError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}

	RespondJSON(w, http.StatusOK, runs)
}

// RefreshCache godoc
// @Summary Force a mapping cache rebuild
// @Tags cache
// @Produce json
// @Success 200 {object} CacheStatus
// @Failure 502 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /api/cache/refresh [post]
func (h *ProwlarrHandler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	entries, err := h.syncer.RebuildCache(r.Context())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordUpstreamError("indexer")
		}
		log.Error().Err(err).Msg("Failed to rebuild indexer cache")
		RespondError(w, http.StatusBadGateway, "Failed to rebuild cache")
		return
	}

	RespondJSON(w, http.StatusOK, CacheStatus{
		Entries:   entries,
		ExpiresAt: h.cache.ExpiresAt(),
	})
}

// CacheStatus describes the current cache generation.
type CacheStatus struct {
	Entries   int              `json:"entries"`
	ExpiresAt time.Time        `json:"expires_at"`
	Mappings  []prowlarr.Entry `json:"mappings,omitempty"`
}

// GetCache returns the live cache generation for diagnostics.
func (h *ProwlarrHandler) GetCache(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, CacheStatus{
		Entries:   h.cache.Len(),
		ExpiresAt: h.cache.ExpiresAt(),
		Mappings:  h.cache.Entries(),
	})
}

// TestConnection godoc
// @Summary Probe aggregator connectivity
// @Description Calls the aggregator status endpoint with a short timeout. Always returns 200; the body carries the outcome.
// @Tags diagnostics
// @Produce json
// @Success 200 {object} prowlarr.ConnectionStatus
// @Security ApiKeyAuth
// @Router /api/test-connection [get]
func (h *ProwlarrHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	status := h.client.TestConnection(r.Context())
	if !status.OK && h.metrics != nil {
		h.metrics.RecordUpstreamError("system/status")
	}
	RespondJSON(w, http.StatusOK, status)
}

// ListIndexers proxies the raw enabled indexer listing for diagnostics.
func (h *ProwlarrHandler) ListIndexers(w http.ResponseWriter, r *http.Request) {
	indexers, err := h.client.ListIndexers(r.Context())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordUpstreamError("indexer")
		}
		log.Error().Err(err).Msg("Failed to list indexers")
		RespondError(w, http.StatusBadGateway, "Failed to list indexers")
		return
	}

	enabled := make([]prowlarr.Indexer, 0, len(indexers))
	for _, indexer := range indexers {
		if indexer.Enable {
			enabled = append(enabled, indexer)
		}
	}

	RespondJSON(w, http.StatusOK, enabled)
}
