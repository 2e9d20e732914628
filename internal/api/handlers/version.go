// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/prowlink/internal/buildinfo"
	"github.com/autobrr/prowlink/internal/update"
)

// VersionHandler reports the running build and any newer release found by
// the update service.
type VersionHandler struct {
	updateService *update.Service
}

func NewVersionHandler(updateService *update.Service) *VersionHandler {
	return &VersionHandler{updateService: updateService}
}

type versionResponse struct {
	Version       string `json:"version"`
	Commit        string `json:"commit,omitempty"`
	Date          string `json:"date,omitempty"`
	LatestVersion string `json:"latest_version,omitempty"`
}

func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	resp := versionResponse{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Date:    buildinfo.Date,
	}

	if h.updateService != nil {
		if release := h.updateService.GetLatestRelease(r.Context()); release != nil {
			resp.LatestVersion = release.Version()
		}
	}

	RespondJSON(w, http.StatusOK, resp)
}
