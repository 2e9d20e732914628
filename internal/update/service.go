// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package update

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const checkInterval = 2 * time.Hour

// Service periodically looks for newer releases and caches the result for
// the version endpoint.
type Service struct {
	updater *Updater
	log     zerolog.Logger

	mu            sync.RWMutex
	enabled       bool
	latestRelease *selfupdate.Release
}

func NewService(currentVersion string, enabled bool) *Service {
	return &Service{
		updater: NewUpdater(currentVersion),
		enabled: enabled,
		log:     log.With().Str("module", "update").Logger(),
	}
}

// SetEnabled toggles update checks, typically on config reload.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.log.Debug().Bool("enabled", enabled).Msg("Update checks toggled")
}

// Start blocks until ctx is cancelled, checking on an interval. Run it in
// its own goroutine.
func (s *Service) Start(ctx context.Context) {
	s.checkUpdates(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkUpdates(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// GetLatestRelease returns the most recently discovered newer release, or
// nil when up to date or checks are disabled.
func (s *Service) GetLatestRelease(ctx context.Context) *selfupdate.Release {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestRelease
}

func (s *Service) checkUpdates(ctx context.Context) {
	s.mu.RLock()
	enabled := s.enabled
	s.mu.RUnlock()
	if !enabled {
		return
	}

	var release *selfupdate.Release
	err := retry.Do(
		func() error {
			var err error
			release, err = s.updater.CheckUpdateAvailable(ctx)
			return err
		},
		retry.Attempts(3),
		retry.Delay(5*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to check for updates")
		return
	}

	s.mu.Lock()
	s.latestRelease = release
	s.mu.Unlock()

	if release != nil {
		s.log.Info().Str("version", release.Version()).Msg("New release available")
	}
}
