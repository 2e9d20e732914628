// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"fmt"
	"strconv"
)

// normalizeResult converts one raw aggregator record into the canonical
// result shape. bind resolves the record's indexer ID back to the local
// site that owns it; a record whose indexer can't be bound is rejected with
// a MappingError rather than emitted with incomplete site identity.
func normalizeResult(raw SearchResult, bind func(remoteID int) (SiteRef, bool)) (TorrentResult, error) {
	site, ok := bind(raw.IndexerID)
	if !ok {
		return TorrentResult{}, &MappingError{IndexerID: raw.IndexerID}
	}

	categories := make([]string, 0, len(raw.Categories))
	for _, cat := range raw.Categories {
		if s := stringifyCategory(cat); s != "" {
			categories = append(categories, s)
		}
	}

	return TorrentResult{
		Title:             raw.Title,
		Description:       raw.Description,
		DownloadEnclosure: raw.DownloadURL,
		PageURL:           raw.InfoURL,
		SizeBytes:         raw.Size,
		Seeders:           raw.Seeders,
		Leechers:          raw.Leechers,
		Peers:             raw.Leechers,
		GrabCount:         raw.Grabs,
		PublishDate:       raw.PublishDate,
		IMDBID:            raw.IMDBID,
		Categories:        categories,

		SiteID:        site.ID,
		SiteName:      site.Name,
		SitePriority:  site.Priority,
		SiteCookie:    site.Cookie,
		SiteUserAgent: site.UserAgent,
		SiteProxy:     site.Proxy,
	}, nil
}

// stringifyCategory coerces one heterogeneous category element to a string.
// Indexers variously report ints, strings, or {id,name} objects.
func stringifyCategory(v any) string {
	switch cat := v.(type) {
	case string:
		return cat
	case float64:
		// encoding/json decodes untyped numbers to float64
		return strconv.FormatInt(int64(cat), 10)
	case int:
		return strconv.Itoa(cat)
	case map[string]any:
		if name, ok := cat["name"].(string); ok && name != "" {
			return name
		}
		if id, ok := cat["id"].(float64); ok {
			return strconv.FormatInt(int64(id), 10)
		}
		return ""
	case nil:
		return ""
	default:
		return fmt.Sprint(cat)
	}
}
