// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/prowlink/internal/models"
)

// SitesHandler manages the synced site registry. Records are created by the
// sync pass; operators can inspect, tune credentials, toggle, and delete.
type SitesHandler struct {
	siteStore *models.SiteStore
}

func NewSitesHandler(siteStore *models.SiteStore) *SitesHandler {
	return &SitesHandler{siteStore: siteStore}
}

func (h *SitesHandler) Routes(r chi.Router) {
	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.ListSites)
		r.Route("/{siteID}", func(r chi.Router) {
			r.Get("/", h.GetSite)
			r.Patch("/", h.UpdateSite)
			r.Delete("/", h.DeleteSite)
		})
	})
}

// ListSites godoc
// @Summary List registry sites
// @Description Lists synced sites ordered by priority. A search term fuzzy-filters on name and domain.
// @Tags sites
// @Produce json
// @Param search query string false "Fuzzy filter"
// @Param limit query int false "Maximum records"
// @Success 200 {array} models.Site
// @Failure 500 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sites [get]
func (h *SitesHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	limit := 0
	if limitParam := strings.TrimSpace(r.URL.Query().Get("limit")); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sites, err := h.siteStore.List(r.Context(), search, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sites")
		RespondError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}

	RespondJSON(w, http.StatusOK, sites)
}

func (h *SitesHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "siteID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid site ID")
		return
	}

	site, err := h.siteStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			RespondError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Error().Err(err).Int("site_id", id).Msg("Failed to get site")
		RespondError(w, http.StatusInternalServerError, "Failed to get site")
		return
	}

	RespondJSON(w, http.StatusOK, site)
}

// UpdateSite adjusts the operator-owned columns. Aggregator-owned fields
// are overwritten by the next sync pass and cannot be edited here.
func (h *SitesHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "siteID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid site ID")
		return
	}

	var req struct {
		Cookie    *string `json:"cookie"`
		UserAgent *string `json:"user_agent"`
		Enabled   *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Cookie != nil || req.UserAgent != nil {
		site, err := h.siteStore.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrSiteNotFound) {
				RespondError(w, http.StatusNotFound, "Site not found")
				return
			}
			log.Error().Err(err).Int("site_id", id).Msg("Failed to load site")
			RespondError(w, http.StatusInternalServerError, "Failed to update site")
			return
		}

		cookie := ""
		if req.Cookie != nil {
			cookie = *req.Cookie
		} else {
			cookie, err = h.siteStore.GetDecryptedCookie(site)
			if err != nil {
				log.Error().Err(err).Int("site_id", id).Msg("Failed to decrypt existing cookie")
				RespondError(w, http.StatusInternalServerError, "Failed to update site")
				return
			}
		}

		userAgent := site.UserAgent
		if req.UserAgent != nil {
			userAgent = *req.UserAgent
		}

		if err := h.siteStore.UpdateCredentials(r.Context(), id, cookie, userAgent); err != nil {
			log.Error().Err(err).Int("site_id", id).Msg("Failed to update site credentials")
			RespondError(w, http.StatusInternalServerError, "Failed to update site")
			return
		}
	}

	if req.Enabled != nil {
		if err := h.siteStore.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
			if errors.Is(err, models.ErrSiteNotFound) {
				RespondError(w, http.StatusNotFound, "Site not found")
				return
			}
			log.Error().Err(err).Int("site_id", id).Msg("Failed to toggle site")
			RespondError(w, http.StatusInternalServerError, "Failed to update site")
			return
		}
	}

	site, err := h.siteStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			RespondError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Error().Err(err).Int("site_id", id).Msg("Failed to reload site")
		RespondError(w, http.StatusInternalServerError, "Failed to update site")
		return
	}

	RespondJSON(w, http.StatusOK, site)
}

// DeleteSite removes a registry record. The next sync pass re-creates it if
// the indexer is still enabled upstream.
func (h *SitesHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "siteID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid site ID")
		return
	}

	if err := h.siteStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			RespondError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Error().Err(err).Int("site_id", id).Msg("Failed to delete site")
		RespondError(w, http.StatusInternalServerError, "Failed to delete site")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
