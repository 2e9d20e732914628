// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"fmt"
	"strings"
)

// Privacy values reported by Prowlarr for an indexer.
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

// Indexer is a configured search source as returned by GET /api/v1/indexer.
type Indexer struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	DefinitionName string         `json:"definitionName"`
	Enable         bool           `json:"enable"`
	Privacy        string         `json:"privacy"`
	Priority       int            `json:"priority"`
	Protocol       string         `json:"protocol"`
	Fields         []IndexerField `json:"fields"`
}

// IndexerField is one entry of the indexer's raw definition field list.
// Values are schema-dependent, so they stay untyped until read.
type IndexerField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// BaseURL returns the indexer's baseUrl field, or "" when the definition
// doesn't carry one.
func (i Indexer) BaseURL() string {
	for _, f := range i.Fields {
		if f.Name != "baseUrl" {
			continue
		}
		if s, ok := f.Value.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Public reports whether the indexer is open access. Prowlarr also knows
// "semiPrivate"; anything that isn't strictly private counts as public here.
func (i Indexer) Public() bool {
	return i.Privacy != PrivacyPrivate
}

// SearchResult is a raw record from GET /api/v1/search. Missing numeric
// fields decode to 0, which is also their canonical default.
type SearchResult struct {
	IndexerID   int    `json:"indexerId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DownloadURL string `json:"downloadUrl"`
	InfoURL     string `json:"infoUrl"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Grabs       int    `json:"grabs"`
	PublishDate string `json:"publishDate"`
	IMDBID      string `json:"imdbId"`
	// Categories elements vary by indexer (ints, strings, or objects);
	// they are coerced to strings during normalization.
	Categories []any `json:"categories"`
}

// SiteRef is the local identity of a search source, resolved from the site
// registry. It carries the per-site fields copied onto every result.
type SiteRef struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Priority  int    `json:"priority"`
	Cookie    string `json:"cookie,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Proxy     bool   `json:"proxy"`
}

// TorrentResult is the canonical result shape handed back to callers.
// Optional strings use omitempty so "unknown" is absent rather than "".
type TorrentResult struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	DownloadEnclosure string   `json:"download_enclosure"`
	PageURL           string   `json:"page_url"`
	SizeBytes         int64    `json:"size_bytes"`
	Seeders           int      `json:"seeders"`
	Leechers          int      `json:"leechers"`
	Peers             int      `json:"peers"`
	GrabCount         int      `json:"grab_count"`
	PublishDate       string   `json:"publish_date,omitempty"`
	IMDBID            string   `json:"imdb_id,omitempty"`
	Categories        []string `json:"categories"`

	SiteID        int    `json:"site_id"`
	SiteName      string `json:"site_name"`
	SitePriority  int    `json:"site_priority"`
	SiteCookie    string `json:"site_cookie,omitempty"`
	SiteUserAgent string `json:"site_user_agent,omitempty"`
	SiteProxy     bool   `json:"site_proxy_flag"`
}

// ConnectionStatus is the outcome of a connectivity probe. Detail carries
// the server version on success, or the status code / transport message on
// failure.
type ConnectionStatus struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// systemStatus is element 0 of the GET /api/v1/system/status response.
type systemStatus struct {
	Version string `json:"version"`
	AppName string `json:"appName"`
}

// IndexerKey is the registry key derived from a remote indexer identity.
func IndexerKey(remoteID int) string {
	return fmt.Sprintf("prowlarr_%d", remoteID)
}
