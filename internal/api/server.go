// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/prowlink/internal/api/handlers"
	"github.com/autobrr/prowlink/internal/api/middleware"
	"github.com/autobrr/prowlink/internal/config"
	"github.com/autobrr/prowlink/internal/database"
	"github.com/autobrr/prowlink/internal/metrics"
	"github.com/autobrr/prowlink/internal/models"
	"github.com/autobrr/prowlink/internal/services/prowlarr"
	"github.com/autobrr/prowlink/internal/update"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	db             *database.DB
	prowlarrClient *prowlarr.Client
	delegator      *prowlarr.Delegator
	indexerCache   *prowlarr.IndexerCache
	syncService    *prowlarr.SyncService
	siteStore      *models.SiteStore
	syncRunStore   *models.SyncRunStore
	apiKeyStore    *models.APIKeyStore
	updateService  *update.Service
	metricsManager *metrics.Manager
}

type Dependencies struct {
	Config         *config.AppConfig
	Version        string
	DB             *database.DB
	ProwlarrClient *prowlarr.Client
	Delegator      *prowlarr.Delegator
	IndexerCache   *prowlarr.IndexerCache
	SyncService    *prowlarr.SyncService
	SiteStore      *models.SiteStore
	SyncRunStore   *models.SyncRunStore
	APIKeyStore    *models.APIKeyStore
	UpdateService  *update.Service
	MetricsManager *metrics.Manager
}

func NewServer(deps *Dependencies) *Server {
	s := Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:         log.Logger.With().Str("module", "api").Logger(),
		config:         deps.Config,
		version:        deps.Version,
		db:             deps.DB,
		prowlarrClient: deps.ProwlarrClient,
		delegator:      deps.Delegator,
		indexerCache:   deps.IndexerCache,
		syncService:    deps.SyncService,
		siteStore:      deps.SiteStore,
		syncRunStore:   deps.SyncRunStore,
		apiKeyStore:    deps.APIKeyStore,
		updateService:  deps.UpdateService,
		metricsManager: deps.MetricsManager,
	}

	return &s
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}
	clickableURL := fmt.Sprintf("http://%s%s", host, s.config.Config.BaseURL)

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: %s", clickableURL)

	handler, err := s.Handler()
	if err != nil {
		listener.Close()
		return fmt.Errorf("build API router: %w", err)
	}

	s.server.Handler = handler

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID) // Must be before logger to capture request ID
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// HTTP compression - handles gzip, brotli, zstd, deflate automatically
	// Use faster compression levels for better proxy performance
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),                        // Only compress responses >= 1KB
		httpcompression.GzipCompressionLevel(2),              // Use gzip level 2 (fast) instead of 6 (default)
		httpcompression.Prefer(httpcompression.PreferServer), // Let server choose best compression
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	// CORS - mirror autobrr's permissive credentials setup
	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
		Debug:            false,
	})
	r.Use(corsMiddleware.Handler)

	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.db, s.prowlarrClient)
	prowlarrHandler := handlers.NewProwlarrHandler(s.prowlarrClient, s.delegator, s.indexerCache, s.syncService, s.siteStore, s.syncRunStore, s.metricsManager)
	sitesHandler := handlers.NewSitesHandler(s.siteStore)
	apiKeysHandler := handlers.NewAPIKeysHandler(s.apiKeyStore)
	versionHandler := handlers.NewVersionHandler(s.updateService)

	// API routes
	apiRouter := chi.NewRouter()

	apiRouter.Group(func(r chi.Router) {
		r.Use(middleware.Logger(s.logger))
		r.Use(middleware.RequireAPIKey(s.config.Config.APIToken, s.apiKeyStore))

		prowlarrHandler.Routes(r)
		sitesHandler.Routes(r)
		apiKeysHandler.Routes(r)

		r.Get("/version", versionHandler.GetVersion)
	})

	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	// Health endpoints stay unauthenticated for orchestrator probes
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/healthz/readiness", healthHandler.HandleReady)
	r.Get("/healthz/liveness", healthHandler.HandleLiveness)

	r.Mount(baseURL+"api", apiRouter)

	if baseURL != "/" {
		r.Get("/", func(w http.ResponseWriter, request *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Must use baseUrl: " + s.config.Config.BaseURL + " instead of /"))
		})
	}

	return r, nil
}
