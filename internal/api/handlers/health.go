// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/prowlink/internal/services/prowlarr"
)

const readinessTimeout = 10 * time.Second

type pinger interface {
	Ping() error
}

// HealthHandler answers the unauthenticated health probes.
type HealthHandler struct {
	db     pinger
	client *prowlarr.Client
}

func NewHealthHandler(db pinger, client *prowlarr.Client) *HealthHandler {
	return &HealthHandler{db: db, client: client}
}

// HandleHealth is the simple liveness body used by the root /health route.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleReady reports ready only when both the database and the aggregator
// are reachable. The two probes run concurrently.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := h.db.Ping(); err != nil {
			return errors.Wrap(err, "database")
		}
		return nil
	})

	g.Go(func() error {
		if !h.client.Configured() {
			// An unconfigured upstream is a setup state, not an outage.
			return nil
		}
		if status := h.client.TestConnection(gctx); !status.OK {
			return errors.Errorf("prowlarr: %s", status.Detail)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
