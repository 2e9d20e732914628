// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package update checks GitHub releases for newer builds and can replace
// the running binary in place.
package update

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const repositorySlug = "autobrr/prowlink"

type Updater struct {
	currentVersion string
	log            zerolog.Logger
}

func NewUpdater(currentVersion string) *Updater {
	return &Updater{
		currentVersion: currentVersion,
		log:            log.With().Str("module", "update").Logger(),
	}
}

// CheckUpdateAvailable returns the latest release when it is newer than the
// running build, or nil when already up to date.
func (u *Updater) CheckUpdateAvailable(ctx context.Context) (*selfupdate.Release, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repositorySlug))
	if err != nil {
		return nil, errors.Wrap(err, "detect latest release")
	}
	if !found {
		return nil, errors.Errorf("no release found for %s", repositorySlug)
	}

	current, err := version.NewVersion(u.currentVersion)
	if err != nil {
		// Dev builds carry non-semver versions; treat them as current.
		u.log.Debug().Str("version", u.currentVersion).Msg("Unparseable running version, skipping update check")
		return nil, nil
	}

	remote, err := version.NewVersion(latest.Version())
	if err != nil {
		return nil, errors.Wrapf(err, "parse release version %q", latest.Version())
	}

	if remote.LessThanOrEqual(current) {
		return nil, nil
	}
	return latest, nil
}

// Run replaces the running executable with the latest release binary.
func (u *Updater) Run(ctx context.Context) error {
	release, err := u.CheckUpdateAvailable(ctx)
	if err != nil {
		return err
	}
	if release == nil {
		u.log.Info().Str("version", u.currentVersion).Msg("Already running the latest version")
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return errors.Wrap(err, "locate executable")
	}

	if err := selfupdate.UpdateTo(ctx, release.AssetURL, release.AssetName, exe); err != nil {
		return errors.Wrapf(err, "update binary to %s", release.Version())
	}

	u.log.Info().Msg(fmt.Sprintf("Successfully updated to version %s", release.Version()))
	return nil
}
