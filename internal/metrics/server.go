// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Server serves /metrics on its own listener, separate from the API port.
type Server struct {
	manager *Manager
	host    string
	port    int
	users   map[string]string

	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds a metrics server. basicAuthUsers is a comma-separated
// "user:bcryptHash" list; when empty the endpoint is unauthenticated.
func NewServer(manager *Manager, host string, port int, basicAuthUsers string) *Server {
	users := make(map[string]string)
	for _, pair := range strings.Split(basicAuthUsers, ",") {
		user, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || user == "" || hash == "" {
			continue
		}
		users[user] = hash
	}

	return &Server{
		manager: manager,
		host:    host,
		port:    port,
		users:   users,
		log:     log.With().Str("module", "metrics").Logger(),
	}
}

func (s *Server) ListenAndServe() error {
	r := chi.NewRouter()
	if len(s.users) > 0 {
		r.Use(s.basicAuth)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.manager.Registry(), promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.log.Info().Str("addr", addr).Bool("auth", len(s.users) > 0).Msg("Starting metrics server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !s.validCredentials(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validCredentials(user, pass string) bool {
	hash, ok := s.users[user]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
}
