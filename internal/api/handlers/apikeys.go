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

// APIKeysHandler manages named API keys.
type APIKeysHandler struct {
	keyStore *models.APIKeyStore
}

func NewAPIKeysHandler(keyStore *models.APIKeyStore) *APIKeysHandler {
	return &APIKeysHandler{keyStore: keyStore}
}

func (h *APIKeysHandler) Routes(r chi.Router) {
	r.Route("/apikeys", func(r chi.Router) {
		r.Get("/", h.ListAPIKeys)
		r.Post("/", h.CreateAPIKey)
		r.Delete("/{keyID}", h.DeleteAPIKey)
	})
}

func (h *APIKeysHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keyStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list api keys")
		RespondError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	RespondJSON(w, http.StatusOK, keys)
}

// CreateAPIKey generates a key under the given name. The plaintext key is
// only in this response; it cannot be retrieved again.
func (h *APIKeysHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	key, err := h.keyStore.Create(r.Context(), req.Name)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to create api key")
		RespondError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	RespondJSON(w, http.StatusCreated, key)
}

func (h *APIKeysHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "keyID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	if err := h.keyStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrAPIKeyNotFound) {
			RespondError(w, http.StatusNotFound, "API key not found")
			return
		}
		log.Error().Err(err).Int("key_id", id).Msg("Failed to delete api key")
		RespondError(w, http.StatusInternalServerError, "Failed to delete API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
